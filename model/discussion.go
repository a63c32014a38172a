package model

import "time"

// Message is one chat message inside a discussion.
type Message struct {
	ID       string    `json:"id"`
	SenderID string    `json:"sender_id"`
	Text     string    `json:"text"`
	SentAt   time.Time `json:"sent_at"`
}

// Discussion is a group conversation around a planned meetup.
type Discussion struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	CreatorID    string    `json:"creator_id"`
	Participants []string  `json:"participants"`
	Messages     []Message `json:"messages"`
	CreatedAt    time.Time `json:"created_at"`
}

// DiscussionFromFields decodes a discussion document.
func DiscussionFromFields(id string, f map[string]any) *Discussion {
	d := &Discussion{
		ID:           id,
		Name:         stringField(f, "name"),
		CreatorID:    stringField(f, "creator_id"),
		Participants: StringsFromField(f["participants"]),
		Messages:     messagesFromField(f["messages"]),
	}
	if ts, err := time.Parse(time.RFC3339Nano, stringField(f, "created_at")); err == nil {
		d.CreatedAt = ts
	}
	return d
}

// Fields encodes the full discussion document.
func (d *Discussion) Fields() map[string]any {
	return map[string]any{
		"name":         d.Name,
		"creator_id":   d.CreatorID,
		"participants": StringsToField(d.Participants),
		"messages":     messagesToField(d.Messages),
		"created_at":   d.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

// HasParticipant reports whether accountID is a member of the discussion.
func (d *Discussion) HasParticipant(accountID string) bool {
	for _, p := range d.Participants {
		if p == accountID {
			return true
		}
	}
	return false
}

func messagesFromField(v any) []Message {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]Message, 0, len(list))
	for _, raw := range list {
		m, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		msg := Message{
			ID:       stringField(m, "id"),
			SenderID: stringField(m, "sender_id"),
			Text:     stringField(m, "text"),
		}
		if ts, err := time.Parse(time.RFC3339Nano, stringField(m, "sent_at")); err == nil {
			msg.SentAt = ts
		}
		out = append(out, msg)
	}
	return out
}

func messagesToField(list []Message) []any {
	out := make([]any, len(list))
	for i, m := range list {
		out[i] = map[string]any{
			"id":        m.ID,
			"sender_id": m.SenderID,
			"text":      m.Text,
			"sent_at":   m.SentAt.UTC().Format(time.RFC3339Nano),
		}
	}
	return out
}
