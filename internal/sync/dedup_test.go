package sync

import (
	"reflect"
	"testing"

	"tradewind/internal/models"
)

func conv(id string, participants ...string) models.Conversation {
	return models.Conversation{ID: id, ParticipantIDs: participants}
}

func ids(list []models.Conversation) []string {
	out := make([]string, len(list))
	for i, c := range list {
		out[i] = c.ID
	}
	return out
}

func TestMergeKeepsFirstPerParticipantSet(t *testing.T) {
	raw := []models.Conversation{
		conv("c1", "alice", "bob"),
		conv("c2", "alice", "carol"),
		conv("c3", "bob", "alice"), // duplicate of c1, different order
	}
	got := ids(MergeConversations(raw))
	want := []string{"c1", "c2"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("merged = %v, want %v", got, want)
	}
}

func TestMergeDeterministicForSameInputOrder(t *testing.T) {
	raw := []models.Conversation{
		conv("newest", "a", "b"),
		conv("older", "b", "a"),
		conv("oldest", "a", "b"),
	}
	first := ids(MergeConversations(raw))
	second := ids(MergeConversations(raw))
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("two runs differ: %v vs %v", first, second)
	}
	if first[0] != "newest" {
		t.Fatalf("winner = %q, want the first record in input order", first[0])
	}
}

func TestMergeIdempotent(t *testing.T) {
	inputs := [][]models.Conversation{
		nil,
		{conv("only", "a", "b")},
		{conv("c1", "a", "b"), conv("c2", "b", "a"), conv("c3", "c", "d")},
		{{ID: "nop1"}, {ID: "nop2"}},
	}
	for _, raw := range inputs {
		once := MergeConversations(raw)
		twice := MergeConversations(once)
		if !reflect.DeepEqual(once, twice) {
			t.Fatalf("merge not idempotent for %v: %v vs %v", ids(raw), ids(once), ids(twice))
		}
	}
}

func TestMergeKeepsRecordsWithoutParticipants(t *testing.T) {
	raw := []models.Conversation{
		{ID: "no-participants-1"},
		{ID: "no-participants-2"},
		conv("c1", "a", "b"),
	}
	got := MergeConversations(raw)
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3 (participant-less records are non-duplicable)", len(got))
	}
}
