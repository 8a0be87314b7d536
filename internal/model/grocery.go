package model

import "time"

// Category classifies a grocery into one of the fixed fridge sections.
type Category int

const (
	CategoryDairy Category = iota
	CategoryFruitsVegetables
	CategoryMeat
	CategorySeafood
	CategoryCondiments
	CategoryOther
)

func (c Category) String() string {
	switch c {
	case CategoryDairy:
		return "Dairy"
	case CategoryFruitsVegetables:
		return "Fruits & Vegetables"
	case CategoryMeat:
		return "Meat"
	case CategorySeafood:
		return "Seafood"
	case CategoryCondiments:
		return "Condiments"
	default:
		return "Other"
	}
}

// Valid reports whether c is one of the defined categories.
func (c Category) Valid() bool {
	return c >= CategoryDairy && c <= CategoryOther
}

// Grocery is a perishable item in a user's fridge. Order is the item's
// position in the owner's display ordering and must stay a dense zero-based
// permutation across the owner's collection.
type Grocery struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Category Category  `json:"category"`
	Expiry   time.Time `json:"expiry"`
	Amount   string    `json:"amount"`
	Owner    string    `json:"owner"`
	Order    int       `json:"order"`
}

// Fields returns the document representation stored in the document store.
// The ID is document identity, not a field.
func (g *Grocery) Fields() map[string]any {
	return map[string]any{
		"name":     g.Name,
		"category": int(g.Category),
		"expiry":   g.Expiry.UTC().Format(time.RFC3339),
		"amount":   g.Amount,
		"owner":    g.Owner,
		"order":    g.Order,
	}
}

// DecodeGrocery converts a raw document into a Grocery. Every field is
// checked; the first missing or malformed field aborts the decode.
func DecodeGrocery(id string, fields map[string]any) (*Grocery, error) {
	g := &Grocery{ID: id}
	var err error

	if g.Name, err = stringField(fields, "name"); err != nil {
		return nil, err
	}
	cat, err := intField(fields, "category")
	if err != nil {
		return nil, err
	}
	g.Category = Category(cat)
	if !g.Category.Valid() {
		return nil, &FieldError{Field: "category", Reason: "out of range"}
	}
	if g.Expiry, err = timeField(fields, "expiry"); err != nil {
		return nil, err
	}
	if g.Amount, err = stringField(fields, "amount"); err != nil {
		return nil, err
	}
	if g.Owner, err = stringField(fields, "owner"); err != nil {
		return nil, err
	}
	if g.Order, err = intField(fields, "order"); err != nil {
		return nil, err
	}
	if g.Order < 0 {
		return nil, &FieldError{Field: "order", Reason: "negative"}
	}
	return g, nil
}
