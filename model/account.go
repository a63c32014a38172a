package model

import (
	"encoding/json"
	"time"
)

// Preview summarizes the last message of a discussion for an account,
// plus how many messages the account has not seen yet.
type Preview struct {
	LastMessage string    `json:"last_message"`
	LastSender  string    `json:"last_sender"`
	UnreadCount int       `json:"unread_count"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Account is a registered user as held in the accounts collection.
// Relationships, Notifications and Previews are owned substate mutated by
// the engines; everything else is plain profile data.
type Account struct {
	ID            string                        `json:"id"`
	Handle        string                        `json:"handle"`
	Name          string                        `json:"name"`
	Email         string                        `json:"email"`
	Phone         string                        `json:"phone"`
	PasswordHash  string                        `json:"-"`
	Relationships map[string]RelationshipStatus `json:"relationships"`
	Notifications []Notification                `json:"notifications"`
	Previews      map[string]Preview            `json:"previews"`
	CreatedAt     time.Time                     `json:"created_at"`
}

// AccountFromFields decodes an account document.
func AccountFromFields(id string, f map[string]any) *Account {
	a := &Account{
		ID:            id,
		Handle:        stringField(f, "handle"),
		Name:          stringField(f, "name"),
		Email:         stringField(f, "email"),
		Phone:         stringField(f, "phone"),
		PasswordHash:  stringField(f, "password_hash"),
		Relationships: relationshipsFromField(f["relationships"]),
		Notifications: NotificationsFromField(f["notifications"]),
		Previews:      previewsFromField(f["previews"]),
	}
	if ts, err := time.Parse(time.RFC3339Nano, stringField(f, "created_at")); err == nil {
		a.CreatedAt = ts
	}
	return a
}

// Fields encodes the full account document.
func (a *Account) Fields() map[string]any {
	return map[string]any{
		"handle":        a.Handle,
		"name":          a.Name,
		"email":         a.Email,
		"phone":         a.Phone,
		"password_hash": a.PasswordHash,
		"relationships": relationshipsToField(a.Relationships),
		"notifications": NotificationsToField(a.Notifications),
		"previews":      previewsToField(a.Previews),
		"created_at":    a.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

// RelationshipsField encodes only the relationships map, for partial writes.
func (a *Account) RelationshipsField() map[string]any {
	return map[string]any{"relationships": relationshipsToField(a.Relationships)}
}

// NotificationsField encodes only the notification list, for partial writes.
func (a *Account) NotificationsField() map[string]any {
	return map[string]any{"notifications": NotificationsToField(a.Notifications)}
}

// PreviewsField encodes only the previews map, for partial writes.
func (a *Account) PreviewsField() map[string]any {
	return map[string]any{"previews": previewsToField(a.Previews)}
}

func previewsFromField(v any) map[string]Preview {
	out := make(map[string]Preview)
	m, ok := v.(map[string]any)
	if !ok {
		return out
	}
	for discussionID, raw := range m {
		pm, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		p := Preview{
			LastMessage: stringField(pm, "last_message"),
			LastSender:  stringField(pm, "last_sender"),
			UnreadCount: intField(pm, "unread_count"),
		}
		if ts, err := time.Parse(time.RFC3339Nano, stringField(pm, "updated_at")); err == nil {
			p.UpdatedAt = ts
		}
		out[discussionID] = p
	}
	return out
}

func previewsToField(m map[string]Preview) map[string]any {
	out := make(map[string]any, len(m))
	for discussionID, p := range m {
		out[discussionID] = map[string]any{
			"last_message": p.LastMessage,
			"last_sender":  p.LastSender,
			"unread_count": p.UnreadCount,
			"updated_at":   p.UpdatedAt.UTC().Format(time.RFC3339Nano),
		}
	}
	return out
}

// ---- shared field decoding helpers ----

func stringField(m map[string]any, key string) string {
	if s, ok := m[key].(string); ok {
		return s
	}
	return ""
}

func boolField(m map[string]any, key string) bool {
	if b, ok := m[key].(bool); ok {
		return b
	}
	return false
}

// intField tolerates the numeric types JSON decoding produces.
func intField(m map[string]any, key string) int {
	switch v := m[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return int(i)
		}
	}
	return 0
}

// StringsFromField decodes a JSON string array document field.
func StringsFromField(v any) []string {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, raw := range list {
		if s, ok := raw.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// StringsToField encodes a string array for document storage.
func StringsToField(list []string) []any {
	out := make([]any, len(list))
	for i, s := range list {
		out[i] = s
	}
	return out
}
