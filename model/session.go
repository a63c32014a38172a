package model

import "time"

// Session is a planned game session: who is coming, where and when.
// Sessions may be tied to the discussion they were organized in.
type Session struct {
	ID           string    `json:"id"`
	DiscussionID string    `json:"discussion_id"`
	Name         string    `json:"name"`
	Location     string    `json:"location"`
	StartsAt     time.Time `json:"starts_at"`
	Participants []string  `json:"participants"`
	CreatedAt    time.Time `json:"created_at"`
}

// SessionFromFields decodes a session document.
func SessionFromFields(id string, f map[string]any) *Session {
	s := &Session{
		ID:           id,
		DiscussionID: stringField(f, "discussion_id"),
		Name:         stringField(f, "name"),
		Location:     stringField(f, "location"),
		Participants: StringsFromField(f["participants"]),
	}
	if ts, err := time.Parse(time.RFC3339Nano, stringField(f, "starts_at")); err == nil {
		s.StartsAt = ts
	}
	if ts, err := time.Parse(time.RFC3339Nano, stringField(f, "created_at")); err == nil {
		s.CreatedAt = ts
	}
	return s
}

// Fields encodes the full session document.
func (s *Session) Fields() map[string]any {
	return map[string]any{
		"discussion_id": s.DiscussionID,
		"name":          s.Name,
		"location":      s.Location,
		"starts_at":     s.StartsAt.UTC().Format(time.RFC3339Nano),
		"participants":  StringsToField(s.Participants),
		"created_at":    s.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

// HasParticipant reports whether accountID has joined the session.
func (s *Session) HasParticipant(accountID string) bool {
	for _, p := range s.Participants {
		if p == accountID {
			return true
		}
	}
	return false
}
