package controller

import "fridgeio/internal/model"

// Category names the one notification stream an observer cares about.
type Category int

const (
	CategoryAuth Category = iota
	CategoryGroceries
	CategoryGroceryLists
)

func (c Category) String() string {
	switch c {
	case CategoryAuth:
		return "auth"
	case CategoryGroceries:
		return "groceries"
	case CategoryGroceryLists:
		return "groceryLists"
	default:
		return "unknown"
	}
}

// Listener observes controller notifications. Every observer implements the
// full interface; the controller invokes only the callback matching the
// observer's declared category, so the others are expected to be no-ops.
// Callbacks run on the controller's own execution context and must not call
// back into the controller synchronously.
type Listener interface {
	Category() Category
	OnAuthChange(success bool, message string)
	OnGroceriesChange(groceries []model.Grocery)
	OnGroceryListsChange(lists []model.GroceryList)
}

// FuncListener adapts plain functions into a Listener. Nil callbacks are
// no-ops, so observers only fill in the slot for their category.
type FuncListener struct {
	Cat          Category
	Auth         func(success bool, message string)
	Groceries    func(groceries []model.Grocery)
	GroceryLists func(lists []model.GroceryList)
}

func (l *FuncListener) Category() Category { return l.Cat }

func (l *FuncListener) OnAuthChange(success bool, message string) {
	if l.Auth != nil {
		l.Auth(success, message)
	}
}

func (l *FuncListener) OnGroceriesChange(groceries []model.Grocery) {
	if l.Groceries != nil {
		l.Groceries(groceries)
	}
}

func (l *FuncListener) OnGroceryListsChange(lists []model.GroceryList) {
	if l.GroceryLists != nil {
		l.GroceryLists(lists)
	}
}
