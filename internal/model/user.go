package model

// User anchors an authenticated identity to its per-user collections. It is
// written once at signup and never mutated; the controller resolves it to
// build the owner's collection paths.
type User struct {
	ID       string `json:"id"`
	Identity string `json:"identity"`
}

func (u *User) Fields() map[string]any {
	return map[string]any{
		"identity": u.Identity,
	}
}

func DecodeUser(id string, fields map[string]any) (*User, error) {
	u := &User{ID: id}
	var err error

	if u.Identity, err = stringField(fields, "identity"); err != nil {
		return nil, err
	}
	return u, nil
}
