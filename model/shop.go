package model

// Shop is a game shop / venue profile. Shops are plain field-level
// entities: they carry no owned substate and are written through the
// offline cache manager, which makes them the canonical entity for the
// change-map replay path.
type Shop struct {
	ID      string `json:"id"`
	OwnerID string `json:"owner_id"`
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Email   string `json:"email"`
	Website string `json:"website"`
	Address string `json:"address"`
}

// ShopFromFields decodes a shop document.
func ShopFromFields(id string, f map[string]any) *Shop {
	return &Shop{
		ID:      id,
		OwnerID: stringField(f, "owner_id"),
		Name:    stringField(f, "name"),
		Phone:   stringField(f, "phone"),
		Email:   stringField(f, "email"),
		Website: stringField(f, "website"),
		Address: stringField(f, "address"),
	}
}

// Fields encodes the full shop document.
func (s *Shop) Fields() map[string]any {
	return map[string]any{
		"owner_id": s.OwnerID,
		"name":     s.Name,
		"phone":    s.Phone,
		"email":    s.Email,
		"website":  s.Website,
		"address":  s.Address,
	}
}
