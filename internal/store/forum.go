package store

import (
	"sort"

	"github.com/agentctl/agentctl/internal/journal"
)

// Message is an append-only coordination record (spec §3 "Forum message").
type Message struct {
	Topic     string `json:"topic"`
	Author    string `json:"author"`
	Body      string `json:"body"`
	CreatedAt int64  `json:"created_at"`
}

func (s *Store) applyForumRecord(line []byte) error {
	msg, err := journal.DecodeJSON[Message](line)
	if err != nil {
		return err
	}
	s.forum = append(s.forum, &msg)
	return nil
}

// Post appends a forum message.
func (s *Store) Post(topic, body, author string) (*Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg := &Message{Topic: topic, Author: author, Body: body, CreatedAt: nowMs()}
	if err := s.forumLog.Append(msg); err != nil {
		return nil, err
	}
	s.forum = append(s.forum, msg)
	out := *msg
	return &out, nil
}

// Read returns at most limit messages on topic, in chronological order.
func (s *Store) Read(topic string, limit int) []*Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Message
	for _, m := range s.forum {
		if m.Topic == topic {
			copy := *m
			out = append(out, &copy)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

// TopicSummary is one entry in Topics' grouped listing.
type TopicSummary struct {
	Topic    string `json:"topic"`
	Messages int    `json:"messages"`
	LastAt   int64  `json:"last_at"`
}

// Topics groups forum messages by topic, optionally filtered by a prefix,
// sorted by most recently active first.
func (s *Store) Topics(prefix string) []TopicSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byTopic := make(map[string]*TopicSummary)
	var order []string
	for _, m := range s.forum {
		if prefix != "" && !hasPrefix(m.Topic, prefix) {
			continue
		}
		sum, ok := byTopic[m.Topic]
		if !ok {
			sum = &TopicSummary{Topic: m.Topic}
			byTopic[m.Topic] = sum
			order = append(order, m.Topic)
		}
		sum.Messages++
		if m.CreatedAt > sum.LastAt {
			sum.LastAt = m.CreatedAt
		}
	}

	out := make([]TopicSummary, 0, len(order))
	for _, t := range order {
		out = append(out, *byTopic[t])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastAt > out[j].LastAt })
	return out
}
