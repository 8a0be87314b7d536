package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"fridgeio/internal/authn"
	"fridgeio/internal/docstore"
	"fridgeio/internal/model"
)

const usersCollection = "users"

var (
	// ErrNotSignedIn is returned by mutations attempted before the per-user
	// collections have been resolved.
	ErrNotSignedIn = errors.New("not signed in")
	// ErrClosed is returned once the controller has been shut down.
	ErrClosed = errors.New("controller closed")
	// ErrDuplicateListName is returned when a grocery list name collides with
	// a cached list. The check is advisory only; concurrent creation can
	// still produce duplicates.
	ErrDuplicateListName = errors.New("a grocery list with that name already exists")
)

// Controller is the single source of truth for one authenticated user's
// groceries and grocery lists. It bridges the document store's asynchronous
// change batches to an ordered in-memory view, and multicasts full-state
// notifications to registered listeners.
//
// All cache mutation and listener invocation is serialized on one run-loop
// goroutine; public methods marshal onto it, so the controller is safe for
// concurrent use without locks.
type Controller struct {
	store    *docstore.Store
	provider authn.Provider
	logger   *slog.Logger

	ops  chan func()
	quit chan struct{}
	once sync.Once

	// Everything below is owned by the run loop.
	identity  string
	userDocID string
	groceries []model.Grocery
	lists     []model.GroceryList
	listeners []Listener

	userSub    *docstore.Subscription
	grocerySub *docstore.Subscription
	listSub    *docstore.Subscription
}

func New(store *docstore.Store, provider authn.Provider, logger *slog.Logger) *Controller {
	c := &Controller{
		store:    store,
		provider: provider,
		logger:   logger,
		ops:      make(chan func()),
		quit:     make(chan struct{}),
	}
	go c.run()
	return c
}

// run is the controller's execution context. It multiplexes posted
// operations with the live subscription feeds, so cache updates and
// listener callbacks never overlap.
func (c *Controller) run() {
	for {
		var userCh, groceryCh, listCh <-chan docstore.Batch
		if c.userSub != nil {
			userCh = c.userSub.Updates()
		}
		if c.grocerySub != nil {
			groceryCh = c.grocerySub.Updates()
		}
		if c.listSub != nil {
			listCh = c.listSub.Updates()
		}

		select {
		case fn := <-c.ops:
			fn()
		case batch, ok := <-userCh:
			if !ok {
				c.resubscribeUsers()
				continue
			}
			c.applyUserBatch(batch)
		case batch, ok := <-groceryCh:
			if !ok {
				c.resubscribeGroceries()
				continue
			}
			c.applyGroceryBatch(batch)
		case batch, ok := <-listCh:
			if !ok {
				c.resubscribeLists()
				continue
			}
			c.applyListBatch(batch)
		case <-c.quit:
			return
		}
	}
}

// post schedules fn on the run loop without waiting.
func (c *Controller) post(fn func()) {
	select {
	case c.ops <- fn:
	case <-c.quit:
	}
}

// call runs fn on the run loop and waits for it to finish. It reports false
// if the controller shut down first.
func (c *Controller) call(fn func()) bool {
	done := make(chan struct{})
	select {
	case c.ops <- func() {
		fn()
		close(done)
	}:
	case <-c.quit:
		return false
	}
	select {
	case <-done:
		return true
	case <-c.quit:
		return false
	}
}

// drain applies every batch already queued on a subscription. The store
// publishes synchronously under its own lock, so a write made on the run
// loop is visible here immediately afterwards; draining after each mutation
// keeps the cache in step with the caller.
func (c *Controller) drain(sub *docstore.Subscription, apply func(docstore.Batch)) {
	if sub == nil {
		return
	}
	for {
		select {
		case batch, ok := <-sub.Updates():
			if !ok {
				return
			}
			apply(batch)
		default:
			return
		}
	}
}

// Close tears down subscriptions and stops the run loop. The controller
// cannot be reused afterwards.
func (c *Controller) Close() {
	c.once.Do(func() {
		c.call(func() { c.teardown() })
		close(c.quit)
	})
}

// --- Listener registry ---

// AddListener registers an observer and synchronously replays the current
// cached state for its category before returning. Registering the same
// observer twice results in duplicate delivery.
func (c *Controller) AddListener(l Listener) {
	c.call(func() {
		c.listeners = append(c.listeners, l)

		switch l.Category() {
		case CategoryGroceries:
			l.OnGroceriesChange(copyGroceries(c.groceries))
		case CategoryGroceryLists:
			l.OnGroceryListsChange(copyLists(c.lists))
		}
	})
}

// RemoveListener unregisters an observer. Removing an observer that was
// never registered, or removing twice, is a no-op.
func (c *Controller) RemoveListener(l Listener) {
	c.call(func() {
		kept := c.listeners[:0]
		for _, registered := range c.listeners {
			if registered != l {
				kept = append(kept, registered)
			}
		}
		for i := len(kept); i < len(c.listeners); i++ {
			c.listeners[i] = nil
		}
		c.listeners = kept
	})
}

func (c *Controller) notifyAuth(success bool, message string) {
	for _, l := range append([]Listener(nil), c.listeners...) {
		if l.Category() == CategoryAuth {
			l.OnAuthChange(success, message)
		}
	}
}

func (c *Controller) notifyGroceries() {
	snapshot := copyGroceries(c.groceries)
	for _, l := range append([]Listener(nil), c.listeners...) {
		if l.Category() == CategoryGroceries {
			l.OnGroceriesChange(snapshot)
		}
	}
}

func (c *Controller) notifyLists() {
	snapshot := copyLists(c.lists)
	for _, l := range append([]Listener(nil), c.listeners...) {
		if l.Category() == CategoryGroceryLists {
			l.OnGroceryListsChange(snapshot)
		}
	}
}

// --- Session operations ---

// Login authenticates against the session provider. It never returns an
// error: the outcome, success or a human-readable failure reason, is
// delivered to auth-category listeners.
func (c *Controller) Login(ctx context.Context, email, password string) {
	go func() {
		identity, err := c.provider.SignIn(ctx, email, password)
		c.post(func() {
			if err != nil {
				c.notifyAuth(false, err.Error())
				return
			}
			c.identity = identity
			c.setupUserSubscription()
			c.notifyAuth(true, "")
		})
	}()
}

// Signup creates a new account plus the User document anchoring its
// per-user collections. Same notification contract as Login.
func (c *Controller) Signup(ctx context.Context, email, password string) {
	go func() {
		identity, err := c.provider.CreateUser(ctx, email, password)
		c.post(func() {
			if err != nil {
				c.notifyAuth(false, err.Error())
				return
			}
			c.identity = identity

			user := model.User{Identity: identity}
			if _, err := c.store.Add(usersCollection, user.Fields()); err != nil {
				c.logger.Error("create user document", "error", err)
			}

			c.setupUserSubscription()
			c.notifyAuth(true, "")
		})
	}()
}

// Resume re-establishes the session for an identity that was already
// authenticated by other means, such as a persisted session token after a
// restart. No auth notification is sent.
func (c *Controller) Resume(identity string) {
	c.call(func() {
		c.identity = identity
		c.setupUserSubscription()
	})
}

// Logout tears down subscriptions, clears the cached collections, and
// forgets the identity. It is synchronous and does not notify listeners.
func (c *Controller) Logout() {
	c.call(func() {
		if c.identity != "" {
			if err := c.provider.SignOut(c.identity); err != nil {
				c.logger.Error("sign out", "error", err)
			}
		}
		c.teardown()
	})
}

// ResetPassword delegates to the session provider, fire-and-forget.
func (c *Controller) ResetPassword(email string) {
	c.provider.SendPasswordReset(email)
}

// DeleteAccount removes the user's documents and provider credentials, then
// tears the session down.
func (c *Controller) DeleteAccount() error {
	err := ErrClosed
	c.call(func() {
		if c.identity == "" {
			err = ErrNotSignedIn
			return
		}

		for _, g := range c.groceries {
			if e := c.store.Delete(c.groceriesPath(), g.ID); e != nil {
				c.logger.Error("delete grocery during account removal", "error", e)
			}
		}
		for _, l := range c.lists {
			if e := c.store.Delete(c.listsPath(), l.ID); e != nil {
				c.logger.Error("delete grocery list during account removal", "error", e)
			}
		}
		if c.userDocID != "" {
			if e := c.store.Delete(usersCollection, c.userDocID); e != nil {
				c.logger.Error("delete user document", "error", e)
			}
		}

		err = c.provider.DeleteUser(c.identity)
		c.teardown()
	})
	return err
}

// teardown closes every live subscription and clears all session state.
// Symmetric counterpart to the setup performed on login. Run-loop only.
func (c *Controller) teardown() {
	c.closeSub(&c.userSub)
	c.closeSub(&c.grocerySub)
	c.closeSub(&c.listSub)
	c.identity = ""
	c.userDocID = ""
	c.groceries = nil
	c.lists = nil
}

func (c *Controller) closeSub(sub **docstore.Subscription) {
	if *sub != nil {
		(*sub).Close()
		*sub = nil
	}
}

// --- Subscription lifecycle ---

// setupUserSubscription watches the users collection to find the document
// anchoring the current identity. Any prior handle is closed first: a leaked
// handle means duplicate delivery. Run-loop only.
func (c *Controller) setupUserSubscription() {
	c.closeSub(&c.userSub)

	sub, err := c.store.Subscribe(usersCollection)
	if err != nil {
		c.logger.Error("subscribe users", "error", err)
		return
	}
	c.userSub = sub
	// The initial snapshot is already queued; resolve the user document
	// before login reports success.
	c.drain(c.userSub, c.applyUserBatch)
}

// setupCollectionSubscriptions opens the grocery and grocery-list feeds once
// the user document is known. Run-loop only.
func (c *Controller) setupCollectionSubscriptions() {
	c.closeSub(&c.grocerySub)
	c.closeSub(&c.listSub)
	c.groceries = nil
	c.lists = nil

	gsub, err := c.store.Subscribe(c.groceriesPath())
	if err != nil {
		c.logger.Error("subscribe groceries", "error", err)
		return
	}
	c.grocerySub = gsub

	lsub, err := c.store.Subscribe(c.listsPath())
	if err != nil {
		c.logger.Error("subscribe grocery lists", "error", err)
		return
	}
	c.listSub = lsub

	c.drain(c.grocerySub, c.applyGroceryBatch)
	c.drain(c.listSub, c.applyListBatch)
}

// The store closes a feed it cannot keep up with; incremental batches alone
// cannot bridge the gap, so reopen the feed and rebuild from the fresh
// snapshot. Run-loop only.
func (c *Controller) resubscribeUsers() {
	c.closeSub(&c.userSub)
	if c.identity == "" {
		return
	}
	c.logger.Warn("user subscription lapsed, resubscribing")
	c.setupUserSubscription()
}

func (c *Controller) resubscribeGroceries() {
	c.closeSub(&c.grocerySub)
	c.groceries = nil
	if c.userDocID == "" {
		return
	}
	c.logger.Warn("grocery subscription lapsed, resubscribing")
	sub, err := c.store.Subscribe(c.groceriesPath())
	if err != nil {
		c.logger.Error("resubscribe groceries", "error", err)
		return
	}
	c.grocerySub = sub
	c.drain(c.grocerySub, c.applyGroceryBatch)
}

func (c *Controller) resubscribeLists() {
	c.closeSub(&c.listSub)
	c.lists = nil
	if c.userDocID == "" {
		return
	}
	c.logger.Warn("grocery list subscription lapsed, resubscribing")
	sub, err := c.store.Subscribe(c.listsPath())
	if err != nil {
		c.logger.Error("resubscribe grocery lists", "error", err)
		return
	}
	c.listSub = sub
	c.drain(c.listSub, c.applyListBatch)
}

func (c *Controller) groceriesPath() string {
	return usersCollection + "/" + c.userDocID + "/groceries"
}

func (c *Controller) listsPath() string {
	return usersCollection + "/" + c.userDocID + "/groceryLists"
}

// --- Change-set application ---

func (c *Controller) applyUserBatch(batch docstore.Batch) {
	for _, change := range batch {
		if change.Kind == docstore.ChangeRemoved {
			continue
		}
		user, err := model.DecodeUser(change.Doc.ID, change.Doc.Fields)
		if err != nil {
			c.logger.Warn("skipping malformed user document", "id", change.Doc.ID, "error", err)
			continue
		}
		if user.Identity != c.identity {
			continue
		}
		if c.userDocID == user.ID {
			continue
		}
		c.userDocID = user.ID
		c.setupCollectionSubscriptions()
	}
}

func (c *Controller) applyGroceryBatch(batch docstore.Batch) {
	for _, change := range batch {
		switch change.Kind {
		case docstore.ChangeAdded, docstore.ChangeModified:
			g, err := model.DecodeGrocery(change.Doc.ID, change.Doc.Fields)
			if err != nil {
				c.logger.Warn("skipping malformed grocery", "id", change.Doc.ID, "error", err)
				continue
			}
			if g.Owner != c.identity {
				// Foreign document, drop silently.
				continue
			}
			if change.Kind == docstore.ChangeAdded {
				c.groceries = append(c.groceries, *g)
			} else {
				idx := groceryIndex(c.groceries, g.ID)
				if idx < 0 {
					c.logger.Error("modified grocery not in cache", "id", g.ID)
					continue
				}
				c.groceries[idx] = *g
			}
		case docstore.ChangeRemoved:
			// The store reports the removed document's prior insertion-order
			// index, but the cache is kept in display order; match by ID so a
			// reordered collection still drops the right entry.
			idx := groceryIndex(c.groceries, change.Doc.ID)
			if idx < 0 {
				c.logger.Error("removed grocery not in cache", "id", change.Doc.ID)
				continue
			}
			c.groceries = append(c.groceries[:idx], c.groceries[idx+1:]...)
		}
	}

	sort.SliceStable(c.groceries, func(i, j int) bool {
		return c.groceries[i].Order < c.groceries[j].Order
	})
	c.notifyGroceries()
}

func (c *Controller) applyListBatch(batch docstore.Batch) {
	for _, change := range batch {
		switch change.Kind {
		case docstore.ChangeAdded, docstore.ChangeModified:
			list, err := model.DecodeGroceryList(change.Doc.ID, change.Doc.Fields)
			if err != nil {
				c.logger.Warn("skipping malformed grocery list", "id", change.Doc.ID, "error", err)
				continue
			}
			if list.Owner != c.identity {
				continue
			}
			if change.Kind == docstore.ChangeAdded {
				c.lists = append(c.lists, *list)
			} else {
				replaced := false
				for i := range c.lists {
					if c.lists[i].ID == list.ID {
						c.lists[i] = *list
						replaced = true
						break
					}
				}
				if !replaced {
					c.logger.Error("modified grocery list not in cache", "id", list.ID)
				}
			}
		case docstore.ChangeRemoved:
			idx := -1
			for i := range c.lists {
				if c.lists[i].ID == change.Doc.ID {
					idx = i
					break
				}
			}
			if idx < 0 {
				c.logger.Error("removed grocery list not in cache", "id", change.Doc.ID)
				continue
			}
			c.lists = append(c.lists[:idx], c.lists[idx+1:]...)
		}
	}
	c.notifyLists()
}

// --- Grocery operations ---

// AddGrocery creates a grocery at the end of the owner's ordering.
func (c *Controller) AddGrocery(name string, category model.Category, expiry time.Time, amount string) (model.Grocery, error) {
	var g model.Grocery
	err := ErrClosed
	c.call(func() {
		if c.userDocID == "" {
			err = ErrNotSignedIn
			return
		}
		g = model.Grocery{
			Name:     name,
			Category: category,
			Expiry:   expiry,
			Amount:   amount,
			Owner:    c.identity,
			Order:    len(c.groceries),
		}
		var id string
		id, err = c.store.Add(c.groceriesPath(), g.Fields())
		g.ID = id
		c.drain(c.grocerySub, c.applyGroceryBatch)
	})
	return g, err
}

// EditGrocery updates the editable fields of an item. Order is untouched.
func (c *Controller) EditGrocery(id, name string, category model.Category, expiry time.Time, amount string) error {
	err := ErrClosed
	c.call(func() {
		if c.userDocID == "" {
			err = ErrNotSignedIn
			return
		}
		err = c.store.Update(c.groceriesPath(), id, map[string]any{
			"name":     name,
			"category": int(category),
			"expiry":   expiry.UTC().Format(time.RFC3339),
			"amount":   amount,
		})
		c.drain(c.grocerySub, c.applyGroceryBatch)
	})
	return err
}

// EditGroceryOrder persists only the order field for one item. The caller
// owns keeping the sibling permutation dense; DeleteGrocery and MoveGrocery
// do that automatically.
func (c *Controller) EditGroceryOrder(id string, newOrder int) error {
	err := ErrClosed
	c.call(func() {
		if c.userDocID == "" {
			err = ErrNotSignedIn
			return
		}
		err = c.store.Update(c.groceriesPath(), id, map[string]any{"order": newOrder})
		c.drain(c.grocerySub, c.applyGroceryBatch)
	})
	return err
}

// DeleteGrocery removes an item and rewrites the order of every remaining
// sibling so the permutation stays dense.
func (c *Controller) DeleteGrocery(id string) error {
	err := ErrClosed
	c.call(func() {
		if c.userDocID == "" {
			err = ErrNotSignedIn
			return
		}

		remaining := make([]model.Grocery, 0, len(c.groceries))
		found := false
		for _, g := range c.groceries {
			if g.ID == id {
				found = true
				continue
			}
			remaining = append(remaining, g)
		}
		if !found {
			err = fmt.Errorf("no grocery %q", id)
			return
		}

		if err = c.store.Delete(c.groceriesPath(), id); err != nil {
			return
		}
		c.drain(c.grocerySub, c.applyGroceryBatch)
		c.repairOrder(remaining)
	})
	return err
}

// MoveGrocery moves an item to a new position and rewrites the order of
// every displaced sibling.
func (c *Controller) MoveGrocery(id string, toIndex int) error {
	err := ErrClosed
	c.call(func() {
		if c.userDocID == "" {
			err = ErrNotSignedIn
			return
		}
		if toIndex < 0 || toIndex >= len(c.groceries) {
			err = fmt.Errorf("position %d out of range", toIndex)
			return
		}

		fromIndex := groceryIndex(c.groceries, id)
		if fromIndex < 0 {
			err = fmt.Errorf("no grocery %q", id)
			return
		}

		moved := c.groceries[fromIndex]
		reordered := make([]model.Grocery, 0, len(c.groceries))
		reordered = append(reordered, c.groceries[:fromIndex]...)
		reordered = append(reordered, c.groceries[fromIndex+1:]...)
		reordered = append(reordered, model.Grocery{})
		copy(reordered[toIndex+1:], reordered[toIndex:])
		reordered[toIndex] = moved

		err = nil
		c.repairOrder(reordered)
	})
	return err
}

// repairOrder is the single permutation-repair routine: given the desired
// sequence, it writes a new order value for every item whose persisted order
// disagrees with its position. Every mutation site that disturbs ordering
// funnels through here. Run-loop only.
func (c *Controller) repairOrder(sequence []model.Grocery) {
	for i, g := range sequence {
		if g.Order == i {
			continue
		}
		if err := c.store.Update(c.groceriesPath(), g.ID, map[string]any{"order": i}); err != nil {
			c.logger.Error("repair grocery order", "id", g.ID, "order", i, "error", err)
		}
		c.drain(c.grocerySub, c.applyGroceryBatch)
	}
}

// --- Grocery list operations ---

// AddGroceryList creates a named list. Name uniqueness is checked against
// the cached lists only; it is advisory, not a store constraint.
func (c *Controller) AddGroceryList(name string, items []string) (model.GroceryList, error) {
	var list model.GroceryList
	err := ErrClosed
	c.call(func() {
		if c.userDocID == "" {
			err = ErrNotSignedIn
			return
		}
		for _, existing := range c.lists {
			if existing.Name == name {
				err = ErrDuplicateListName
				return
			}
		}

		list = model.GroceryList{Name: name, Items: items, Owner: c.identity}
		var id string
		id, err = c.store.Add(c.listsPath(), list.Fields())
		list.ID = id
		c.drain(c.listSub, c.applyListBatch)
	})
	return list, err
}

// EditGroceryList replaces a list's line items, preserving their order.
func (c *Controller) EditGroceryList(id string, items []string) error {
	err := ErrClosed
	c.call(func() {
		if c.userDocID == "" {
			err = ErrNotSignedIn
			return
		}
		fieldItems := make([]any, len(items))
		for i, item := range items {
			fieldItems[i] = item
		}
		err = c.store.Update(c.listsPath(), id, map[string]any{"items": fieldItems})
		c.drain(c.listSub, c.applyListBatch)
	})
	return err
}

func (c *Controller) DeleteGroceryList(id string) error {
	err := ErrClosed
	c.call(func() {
		if c.userDocID == "" {
			err = ErrNotSignedIn
			return
		}
		err = c.store.Delete(c.listsPath(), id)
		c.drain(c.listSub, c.applyListBatch)
	})
	return err
}

// --- Snapshot accessors ---

// Identity returns the authenticated identity, or "" before login.
func (c *Controller) Identity() string {
	var identity string
	c.call(func() { identity = c.identity })
	return identity
}

// Groceries returns a copy of the cached collection, sorted by order.
func (c *Controller) Groceries() []model.Grocery {
	var snapshot []model.Grocery
	c.call(func() { snapshot = copyGroceries(c.groceries) })
	return snapshot
}

// GroceryLists returns a copy of the cached lists.
func (c *Controller) GroceryLists() []model.GroceryList {
	var snapshot []model.GroceryList
	c.call(func() { snapshot = copyLists(c.lists) })
	return snapshot
}

func groceryIndex(groceries []model.Grocery, id string) int {
	for i := range groceries {
		if groceries[i].ID == id {
			return i
		}
	}
	return -1
}

func copyGroceries(groceries []model.Grocery) []model.Grocery {
	out := make([]model.Grocery, len(groceries))
	copy(out, groceries)
	return out
}

func copyLists(lists []model.GroceryList) []model.GroceryList {
	out := make([]model.GroceryList, len(lists))
	for i, l := range lists {
		items := make([]string, len(l.Items))
		copy(items, l.Items)
		l.Items = items
		out[i] = l
	}
	return out
}
