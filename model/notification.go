package model

import "time"

// NotificationType tags the pending state transition a notification
// carries. Execution dispatches on this tag.
type NotificationType string

const (
	NotifFriendRequest  NotificationType = "friend_request"
	NotifJoinDiscussion NotificationType = "join_discussion"
	NotifJoinSession    NotificationType = "join_session"
)

// Valid reports whether t is a known notification type.
func (t NotificationType) Valid() bool {
	switch t {
	case NotifFriendRequest, NotifJoinDiscussion, NotifJoinSession:
		return true
	}
	return false
}

// Notification is a stored, typed record representing a pending or
// completed cross-account event. SenderOrDiscussionID is polymorphic: an
// account id for friend requests, a discussion/session id for invites.
type Notification struct {
	ID                   string           `json:"id"`
	ReceiverID           string           `json:"receiver_id"`
	SenderOrDiscussionID string           `json:"sender_or_discussion_id"`
	Type                 NotificationType `json:"type"`
	Read                 bool             `json:"read"`
	CreatedAt            time.Time        `json:"created_at"`

	// executed is deliberately not persisted: it guards against repeated
	// execution through this handle only. The underlying operations are
	// themselves idempotent in effect, which is the authoritative net.
	executed bool
}

// Executed reports whether this handle has already run its side effect.
func (n *Notification) Executed() bool { return n.executed }

// MarkExecuted records that this handle has run its side effect.
func (n *Notification) MarkExecuted() { n.executed = true }

// notificationToField encodes one notification for document storage.
func notificationToField(n Notification) map[string]any {
	return map[string]any{
		"id":                      n.ID,
		"receiver_id":             n.ReceiverID,
		"sender_or_discussion_id": n.SenderOrDiscussionID,
		"type":                    string(n.Type),
		"read":                    n.Read,
		"created_at":              n.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

// notificationFromField decodes one stored notification entry.
func notificationFromField(v any) (Notification, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		return Notification{}, false
	}
	n := Notification{
		ID:                   stringField(m, "id"),
		ReceiverID:           stringField(m, "receiver_id"),
		SenderOrDiscussionID: stringField(m, "sender_or_discussion_id"),
		Type:                 NotificationType(stringField(m, "type")),
		Read:                 boolField(m, "read"),
	}
	if ts, err := time.Parse(time.RFC3339Nano, stringField(m, "created_at")); err == nil {
		n.CreatedAt = ts
	}
	if n.ID == "" || !n.Type.Valid() {
		return Notification{}, false
	}
	return n, true
}

// NotificationsFromField decodes the ordered "notifications" document field.
func NotificationsFromField(v any) []Notification {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]Notification, 0, len(list))
	for _, raw := range list {
		if n, ok := notificationFromField(raw); ok {
			out = append(out, n)
		}
	}
	return out
}

// NotificationsToField encodes an ordered notification list for storage.
func NotificationsToField(list []Notification) []any {
	out := make([]any, len(list))
	for i, n := range list {
		out[i] = notificationToField(n)
	}
	return out
}
