package sync

import "tradewind/internal/models"

// MergeConversations collapses raw conversation records into one canonical
// entry per unique participant set. The upstream occasionally creates the same
// two participants under different record ids; the first record encountered
// wins, so input order (newest-first from the API) decides which duplicate is
// kept. That tie-break is input-order dependent and pinned by tests; don't
// change it silently.
//
// Pure and idempotent: merging an already merged list returns it unchanged.
// Records without participant ids are not deduplicable and pass through.
func MergeConversations(raw []models.Conversation) []models.Conversation {
	out := make([]models.Conversation, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for _, c := range raw {
		key := c.ParticipantKey()
		if key == "" {
			out = append(out, c)
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, c)
	}
	return out
}
