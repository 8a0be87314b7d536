package model

// GroceryList is a named shopping list. Items keep their insertion order;
// duplicates and blank entries are allowed (a blank line is an in-progress
// edit, not an error).
type GroceryList struct {
	ID    string   `json:"id"`
	Name  string   `json:"name"`
	Items []string `json:"items"`
	Owner string   `json:"owner"`
}

func (l *GroceryList) Fields() map[string]any {
	items := make([]any, len(l.Items))
	for i, item := range l.Items {
		items[i] = item
	}
	return map[string]any{
		"name":  l.Name,
		"items": items,
		"owner": l.Owner,
	}
}

func DecodeGroceryList(id string, fields map[string]any) (*GroceryList, error) {
	l := &GroceryList{ID: id}
	var err error

	if l.Name, err = stringField(fields, "name"); err != nil {
		return nil, err
	}
	if l.Items, err = stringSliceField(fields, "items"); err != nil {
		return nil, err
	}
	if l.Owner, err = stringField(fields, "owner"); err != nil {
		return nil, err
	}
	return l, nil
}
