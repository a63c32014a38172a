package model

// RelationshipStatus is the directional label one account holds about
// another. Absence of an entry means "no relationship".
type RelationshipStatus string

const (
	// StatusSent: I requested, awaiting their decision.
	StatusSent RelationshipStatus = "sent"
	// StatusPending: they requested, awaiting my decision.
	StatusPending RelationshipStatus = "pending"
	// StatusFriend: mutual.
	StatusFriend RelationshipStatus = "friend"
	// StatusBlocked: I blocked them. The peer's side is cleared, not set.
	StatusBlocked RelationshipStatus = "blocked"
)

// Valid reports whether s is one of the four known statuses.
func (s RelationshipStatus) Valid() bool {
	switch s {
	case StatusSent, StatusPending, StatusFriend, StatusBlocked:
		return true
	}
	return false
}

// relationshipsFromField decodes the "relationships" document field
// (peer id → status) as it comes back from JSON storage.
func relationshipsFromField(v any) map[string]RelationshipStatus {
	out := make(map[string]RelationshipStatus)
	m, ok := v.(map[string]any)
	if !ok {
		return out
	}
	for peer, raw := range m {
		if s, ok := raw.(string); ok && RelationshipStatus(s).Valid() {
			out[peer] = RelationshipStatus(s)
		}
	}
	return out
}

// relationshipsToField encodes a relationship map for document storage.
func relationshipsToField(m map[string]RelationshipStatus) map[string]any {
	out := make(map[string]any, len(m))
	for peer, s := range m {
		out[peer] = string(s)
	}
	return out
}
