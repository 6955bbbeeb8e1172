package models

import (
	"encoding/json"
	"time"
)

type Notification struct {
	ID         string          `json:"id"`
	Category   string          `json:"category"`
	Payload    json.RawMessage `json:"payload"`
	Read       bool            `json:"read"`
	ReceivedAt time.Time       `json:"received_at"`
}
