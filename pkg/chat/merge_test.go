package chat_test

import (
	"time"

	"github.com/killallgit/chatstream/pkg/chat"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("MergeByTime", func() {
	var base time.Time

	BeforeEach(func() {
		base = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	})

	at := func(sec int) time.Time {
		return base.Add(time.Duration(sec) * time.Second)
	}

	ids := func(all []chat.Message) []string {
		out := make([]string, len(all))
		for i, m := range all {
			out[i] = m.MessageID()
		}
		return out
	}

	It("should interleave events between chat messages by timestamp", func() {
		m1 := chat.ChatMessage{ID: "m1", Role: chat.RoleUser, Type: chat.KindChat, CreatedAt: at(5)}
		m2 := chat.ChatMessage{ID: "m2", Role: chat.RoleAssistant, Type: chat.KindChat, CreatedAt: at(10)}
		e1 := chat.EventMessage{ID: "e1", Type: chat.KindEvent, CreatedAt: at(7)}

		all := chat.MergeByTime([]chat.ChatMessage{m1, m2}, []chat.EventMessage{e1})
		Expect(ids(all)).To(Equal([]string{"m1", "e1", "m2"}))
	})

	It("should keep insertion order on ties with messages before events", func() {
		e1 := chat.EventMessage{ID: "e1", Type: chat.KindEvent, CreatedAt: at(1)}
		m1 := chat.ChatMessage{ID: "m1", Type: chat.KindChat, CreatedAt: at(1)}
		m2 := chat.ChatMessage{ID: "m2", Type: chat.KindChat, CreatedAt: at(1)}

		all := chat.MergeByTime([]chat.ChatMessage{m2, m1}, []chat.EventMessage{e1})
		Expect(ids(all)).To(Equal([]string{"m2", "m1", "e1"}))
	})

	It("should place undated entries first", func() {
		m1 := chat.ChatMessage{ID: "m1", Type: chat.KindChat, CreatedAt: at(1)}
		e1 := chat.EventMessage{ID: "e1", Type: chat.KindEvent}

		all := chat.MergeByTime([]chat.ChatMessage{m1}, []chat.EventMessage{e1})
		Expect(ids(all)).To(Equal([]string{"e1", "m1"}))
	})

	It("should handle empty inputs", func() {
		Expect(chat.MergeByTime(nil, nil)).To(BeEmpty())
	})

	It("should not mutate its inputs", func() {
		m1 := chat.ChatMessage{ID: "m1", CreatedAt: at(9)}
		m2 := chat.ChatMessage{ID: "m2", CreatedAt: at(1)}
		msgs := []chat.ChatMessage{m1, m2}

		chat.MergeByTime(msgs, nil)
		Expect(msgs[0].ID).To(Equal("m1"))
	})
})
