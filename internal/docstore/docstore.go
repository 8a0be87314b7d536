package docstore

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// ChangeKind tags a change record within a batch.
type ChangeKind int

const (
	ChangeAdded ChangeKind = iota
	ChangeModified
	ChangeRemoved
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeAdded:
		return "added"
	case ChangeModified:
		return "modified"
	case ChangeRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// Document is a stored record: an identity plus a free-form field map.
type Document struct {
	ID     string
	Fields map[string]any
}

// Change is one record in a change batch. For removals OldIndex carries the
// document's position in the collection's insertion order immediately before
// the removal; it is -1 otherwise.
type Change struct {
	Kind     ChangeKind
	Doc      Document
	OldIndex int
}

// Batch is the ordered set of changes delivered to a subscriber in one push.
type Batch []Change

const subscriptionBuffer = 64

// Subscription is a live feed of change batches for one collection. On
// creation it replays the collection's current contents as a batch of added
// records, then delivers incremental batches until closed. The store closes
// a subscription whose buffer overflows; consumers seeing a closed channel
// must resubscribe to obtain a fresh snapshot.
type Subscription struct {
	store *Store
	path  string
	ch    chan Batch
}

// Updates returns the channel batches are delivered on. The channel is
// closed when the subscription is closed.
func (s *Subscription) Updates() <-chan Batch { return s.ch }

// Close detaches the subscription from the store. Closing twice is a no-op.
func (s *Subscription) Close() {
	s.store.unsubscribe(s)
}

// Store is a collection-scoped document store over SQLite with live
// change-batch subscriptions. Collections are named by slash-separated
// paths ("users/{id}/groceries") and spring into being on first write.
type Store struct {
	db     *sql.DB
	logger *slog.Logger

	mu    sync.Mutex
	subs  map[string]map[*Subscription]struct{}
	order map[string][]string // doc ids in insertion order, loaded lazily
}

func New(db *sql.DB, logger *slog.Logger) *Store {
	return &Store{
		db:     db,
		logger: logger,
		subs:   make(map[string]map[*Subscription]struct{}),
		order:  make(map[string][]string),
	}
}

// Add inserts a new document into the collection and returns its assigned ID.
func (s *Store) Add(path string, fields map[string]any) (string, error) {
	data, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("marshal fields: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ids, err := s.loadLocked(path)
	if err != nil {
		return "", err
	}

	id := uuid.NewString()
	if _, err := s.db.Exec(
		`INSERT INTO documents (collection, doc_id, fields) VALUES (?, ?, ?)`,
		path, id, string(data),
	); err != nil {
		return "", fmt.Errorf("insert document: %w", err)
	}

	s.order[path] = append(ids, id)
	s.publishLocked(path, Batch{{Kind: ChangeAdded, Doc: Document{ID: id, Fields: cloneFields(fields)}, OldIndex: -1}})
	return id, nil
}

// Update merges the given fields into an existing document. Fields not named
// are left untouched.
func (s *Store) Update(path, id string, fields map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.getLocked(path, id)
	if err != nil {
		return err
	}

	for k, v := range fields {
		current[k] = v
	}
	data, err := json.Marshal(current)
	if err != nil {
		return fmt.Errorf("marshal fields: %w", err)
	}

	if _, err := s.db.Exec(
		`UPDATE documents SET fields = ?, updated_at = CURRENT_TIMESTAMP WHERE collection = ? AND doc_id = ?`,
		string(data), path, id,
	); err != nil {
		return fmt.Errorf("update document: %w", err)
	}

	s.publishLocked(path, Batch{{Kind: ChangeModified, Doc: Document{ID: id, Fields: current}, OldIndex: -1}})
	return nil
}

// Delete removes a document. Subscribers receive a removed record carrying
// the document's prior position in insertion order.
func (s *Store) Delete(path, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids, err := s.loadLocked(path)
	if err != nil {
		return err
	}
	oldIndex := -1
	for i, existing := range ids {
		if existing == id {
			oldIndex = i
			break
		}
	}
	if oldIndex < 0 {
		return fmt.Errorf("delete document: no document %q in %q", id, path)
	}

	if _, err := s.db.Exec(
		`DELETE FROM documents WHERE collection = ? AND doc_id = ?`,
		path, id,
	); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}

	s.order[path] = append(ids[:oldIndex:oldIndex], ids[oldIndex+1:]...)
	s.publishLocked(path, Batch{{Kind: ChangeRemoved, Doc: Document{ID: id}, OldIndex: oldIndex}})
	return nil
}

// Get fetches a single document.
func (s *Store) Get(path, id string) (Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fields, err := s.getLocked(path, id)
	if err != nil {
		return Document{}, err
	}
	return Document{ID: id, Fields: fields}, nil
}

// List returns the collection's documents in insertion order.
func (s *Store) List(path string) ([]Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listLocked(path)
}

// Collections returns the paths of all collections matching the SQL LIKE
// pattern, e.g. "users/%/groceries".
func (s *Store) Collections(pattern string) ([]string, error) {
	rows, err := s.db.Query(
		`SELECT DISTINCT collection FROM documents WHERE collection LIKE ? ORDER BY collection`,
		pattern,
	)
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("scan collection: %w", err)
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}

// Subscribe opens a live subscription on a collection. The current contents
// are delivered immediately as a single batch of added records (possibly
// empty), before any subsequent incremental batch.
func (s *Store) Subscribe(path string) (*Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	docs, err := s.listLocked(path)
	if err != nil {
		return nil, err
	}

	sub := &Subscription{
		store: s,
		path:  path,
		ch:    make(chan Batch, subscriptionBuffer),
	}

	initial := make(Batch, 0, len(docs))
	for _, doc := range docs {
		initial = append(initial, Change{Kind: ChangeAdded, Doc: doc, OldIndex: -1})
	}
	sub.ch <- initial

	if s.subs[path] == nil {
		s.subs[path] = make(map[*Subscription]struct{})
	}
	s.subs[path][sub] = struct{}{}
	return sub, nil
}

func (s *Store) unsubscribe(sub *Subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dropLocked(sub)
}

func (s *Store) dropLocked(sub *Subscription) {
	if set, ok := s.subs[sub.path]; ok {
		if _, registered := set[sub]; registered {
			delete(set, sub)
			close(sub.ch)
			if len(set) == 0 {
				delete(s.subs, sub.path)
			}
		}
	}
}

func (s *Store) publishLocked(path string, batch Batch) {
	var stalled []*Subscription
	for sub := range s.subs[path] {
		select {
		case sub.ch <- batch:
		default:
			stalled = append(stalled, sub)
		}
	}
	// A subscriber this far behind has lost a batch it can never recover
	// from increments alone. Close its feed so it resubscribes for a fresh
	// snapshot instead of serving a silently diverged view.
	for _, sub := range stalled {
		s.logger.Warn("closing feed for slow subscriber", "collection", path)
		s.dropLocked(sub)
	}
}

func (s *Store) loadLocked(path string) ([]string, error) {
	if ids, ok := s.order[path]; ok {
		return ids, nil
	}

	rows, err := s.db.Query(
		`SELECT doc_id FROM documents WHERE collection = ? ORDER BY seq`,
		path,
	)
	if err != nil {
		return nil, fmt.Errorf("load collection %q: %w", path, err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan doc id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	s.order[path] = ids
	return ids, nil
}

func (s *Store) getLocked(path, id string) (map[string]any, error) {
	var data string
	err := s.db.QueryRow(
		`SELECT fields FROM documents WHERE collection = ? AND doc_id = ?`,
		path, id,
	).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("no document %q in %q", id, path)
	}
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}

	var fields map[string]any
	if err := json.Unmarshal([]byte(data), &fields); err != nil {
		return nil, fmt.Errorf("unmarshal fields: %w", err)
	}
	return fields, nil
}

func (s *Store) listLocked(path string) ([]Document, error) {
	ids, err := s.loadLocked(path)
	if err != nil {
		return nil, err
	}

	docs := make([]Document, 0, len(ids))
	for _, id := range ids {
		fields, err := s.getLocked(path, id)
		if err != nil {
			return nil, err
		}
		docs = append(docs, Document{ID: id, Fields: fields})
	}
	return docs, nil
}

func cloneFields(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	return out
}
