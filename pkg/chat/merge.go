package chat

import (
	"slices"
	"time"
)

// MergeByTime returns messages followed by events, stably sorted by creation
// time. Entries with equal timestamps keep their relative order, so a chat
// message sorts before an event created in the same instant.
func MergeByTime(messages []ChatMessage, events []EventMessage) []Message {
	all := make([]Message, 0, len(messages)+len(events))
	for _, m := range messages {
		all = append(all, m)
	}
	for _, e := range events {
		all = append(all, e)
	}

	slices.SortStableFunc(all, func(a, b Message) int {
		return timestamp(a.Time()).Compare(timestamp(b.Time()))
	})
	return all
}

// timestamp maps an unset time to the Unix epoch so that undated entries sort
// first instead of far in the past.
func timestamp(t time.Time) time.Time {
	if t.IsZero() {
		return time.Unix(0, 0)
	}
	return t
}
