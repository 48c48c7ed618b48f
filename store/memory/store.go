// Package memory provides an in-process Store for tests and single-process
// development. A single mutex serializes every counter operation, which is
// what makes the allocator and the usage ledger atomic here.
package memory

import (
	"context"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/xraph/folio"
	"github.com/xraph/folio/audit"
	"github.com/xraph/folio/document"
	"github.com/xraph/folio/id"
	"github.com/xraph/folio/sequence"
	"github.com/xraph/folio/store"
	"github.com/xraph/folio/subscription"
	"github.com/xraph/folio/usage"
	"github.com/xraph/folio/user"
)

var _ store.Store = (*Store)(nil)

type Store struct {
	mu sync.RWMutex

	users     map[string]*user.User
	documents map[string]*document.Document
	numbers   map[numberKey]string
	entries   []*audit.Entry
	closed    bool
}

type numberKey struct {
	userID string
	t      sequence.DocumentType
	number string
}

func New() *Store {
	return &Store{
		users:     make(map[string]*user.User),
		documents: make(map[string]*document.Document),
		numbers:   make(map[numberKey]string),
	}
}

// ──────────────────────────────────────────────────
// Users
// ──────────────────────────────────────────────────

func (s *Store) CreateUser(_ context.Context, u *user.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[u.ID]; exists {
		return folio.ErrAlreadyExists
	}
	s.users[u.ID] = cloneUser(u)
	return nil
}

func (s *Store) GetUser(_ context.Context, userID string) (*user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[userID]
	if !ok {
		return nil, folio.ErrUserNotFound
	}
	return cloneUser(u), nil
}

func (s *Store) UpdateSubscription(_ context.Context, userID string, sub subscription.Subscription, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return folio.ErrUserNotFound
	}
	u.Subscription = sub
	u.Touch(at)
	return nil
}

// ──────────────────────────────────────────────────
// Sequences
// ──────────────────────────────────────────────────

func (s *Store) NextNumber(_ context.Context, userID string, t sequence.DocumentType, year int) (sequence.Number, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return sequence.Number{}, folio.ErrUserNotFound
	}
	n, next, ok := u.Counter(t).Next(year)
	if !ok {
		return sequence.Number{}, folio.ErrSequenceExhausted
	}
	next.UpdatedAt = time.Now().UTC()
	if u.Sequences == nil {
		u.Sequences = make(map[sequence.DocumentType]sequence.Counter)
	}
	u.Sequences[t] = next
	return n, nil
}

func (s *Store) GetCounter(_ context.Context, userID string, t sequence.DocumentType) (*sequence.Counter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[userID]
	if !ok {
		return nil, folio.ErrUserNotFound
	}
	c := u.Counter(t)
	return &c, nil
}

func (s *Store) SetPrefix(_ context.Context, userID string, t sequence.DocumentType, prefix string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return folio.ErrUserNotFound
	}
	c := u.Counter(t)
	c.Prefix = prefix
	c.UpdatedAt = time.Now().UTC()
	if u.Sequences == nil {
		u.Sequences = make(map[sequence.DocumentType]sequence.Counter)
	}
	u.Sequences[t] = c
	return nil
}

// ──────────────────────────────────────────────────
// Usage
// ──────────────────────────────────────────────────

func (s *Store) ReserveUsage(_ context.Context, userID string, metric usage.Metric, limit int64, periodStart time.Time) (*usage.Reservation, error) {
	if !metric.Valid() {
		return nil, folio.ErrInvalidMetric
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return nil, folio.ErrUserNotFound
	}
	u.Usage = u.Usage.RolledOver(periodStart)

	current := u.Usage.Get(metric)
	if limit != usage.Unlimited && current >= limit {
		return &usage.Reservation{Allowed: false, Current: current}, nil
	}
	current++
	u.Usage.Set(metric, current)
	return &usage.Reservation{Allowed: true, Current: current}, nil
}

func (s *Store) ReleaseUsage(_ context.Context, userID string, metric usage.Metric, periodStart time.Time) (int64, error) {
	if !metric.Valid() {
		return 0, folio.ErrInvalidMetric
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return 0, folio.ErrUserNotFound
	}
	u.Usage = u.Usage.RolledOver(periodStart)

	current := u.Usage.Get(metric)
	if current > 0 {
		current--
		u.Usage.Set(metric, current)
	}
	return current, nil
}

func (s *Store) AdjustClients(_ context.Context, userID string, delta, limit int64) (*usage.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return nil, folio.ErrUserNotFound
	}
	if delta > 0 && limit != usage.Unlimited && u.Usage.ClientsCount+delta > limit {
		return &usage.Reservation{Allowed: false, Current: u.Usage.ClientsCount}, nil
	}
	u.Usage.ClientsCount = max(u.Usage.ClientsCount+delta, 0)
	return &usage.Reservation{Allowed: true, Current: u.Usage.ClientsCount}, nil
}

func (s *Store) GetUsage(_ context.Context, userID string) (*usage.Counters, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[userID]
	if !ok {
		return nil, folio.ErrUserNotFound
	}
	c := u.Usage
	return &c, nil
}

// ──────────────────────────────────────────────────
// Documents
// ──────────────────────────────────────────────────

func (s *Store) CreateDocument(_ context.Context, d *document.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[d.UserID]; !ok {
		return folio.ErrUserNotFound
	}
	if _, exists := s.documents[d.ID.String()]; exists {
		return folio.ErrAlreadyExists
	}
	key := numberKey{userID: d.UserID, t: d.Type, number: d.Number}
	if _, exists := s.numbers[key]; exists {
		return folio.ErrAlreadyExists
	}
	s.documents[d.ID.String()] = d.Clone()
	s.numbers[key] = d.ID.String()
	return nil
}

func (s *Store) GetDocument(_ context.Context, docID id.DocumentID) (*document.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.documents[docID.String()]
	if !ok {
		return nil, folio.ErrDocumentNotFound
	}
	return d.Clone(), nil
}

func (s *Store) ListDocuments(_ context.Context, userID string, opts document.ListOpts) ([]*document.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*document.Document, 0)
	for _, d := range s.documents {
		if d.UserID != userID {
			continue
		}
		if opts.Type != "" && d.Type != opts.Type {
			continue
		}
		if opts.Status != "" && d.Status != opts.Status {
			continue
		}
		result = append(result, d.Clone())
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID.String() > result[j].ID.String()
		}
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	return paginate(result, opts.Offset, opts.Limit), nil
}

func (s *Store) ListDueDocuments(_ context.Context, t sequence.DocumentType, status document.Status, before time.Time, limit int) ([]*document.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*document.Document, 0)
	for _, d := range s.documents {
		if d.Type == t && d.Status == status && d.DueDate != nil && d.DueDate.Before(before) {
			result = append(result, d.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].DueDate.Before(*result[j].DueDate)
	})

	return paginate(result, 0, limit), nil
}

func (s *Store) UpdateDocument(_ context.Context, d *document.Document, expected document.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.documents[d.ID.String()]
	if !ok {
		return folio.ErrDocumentNotFound
	}
	if stored.Status != expected {
		return folio.ErrConcurrentModification
	}
	s.documents[d.ID.String()] = d.Clone()
	return nil
}

func (s *Store) DeleteDocument(_ context.Context, docID id.DocumentID, expected document.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.documents[docID.String()]
	if !ok {
		return folio.ErrDocumentNotFound
	}
	if stored.Status != expected {
		return folio.ErrConcurrentModification
	}
	delete(s.documents, docID.String())
	delete(s.numbers, numberKey{userID: stored.UserID, t: stored.Type, number: stored.Number})
	return nil
}

// ──────────────────────────────────────────────────
// Audit
// ──────────────────────────────────────────────────

func (s *Store) AppendAudit(_ context.Context, e *audit.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = append(s.entries, cloneEntry(e))
	return nil
}

func (s *Store) ListDocumentAudit(_ context.Context, docID id.DocumentID, opts audit.ListOpts) ([]*audit.Entry, error) {
	return s.listAudit(func(e *audit.Entry) bool { return e.DocumentID == docID }, opts), nil
}

func (s *Store) ListUserAudit(_ context.Context, userID string, opts audit.ListOpts) ([]*audit.Entry, error) {
	return s.listAudit(func(e *audit.Entry) bool { return e.UserID == userID }, opts), nil
}

func (s *Store) listAudit(match func(*audit.Entry) bool, opts audit.ListOpts) []*audit.Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*audit.Entry, 0)
	for _, e := range s.entries {
		if !match(e) {
			continue
		}
		if opts.Action != "" && e.Action != opts.Action {
			continue
		}
		if !opts.Since.IsZero() && e.PerformedAt.Before(opts.Since) {
			continue
		}
		if !opts.Until.IsZero() && !e.PerformedAt.Before(opts.Until) {
			continue
		}
		result = append(result, cloneEntry(e))
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].PerformedAt.Before(result[j].PerformedAt)
	})

	return paginate(result, opts.Offset, opts.Limit)
}

func (s *Store) PurgeAudit(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.entries[:0]
	var purged int64
	for _, e := range s.entries {
		if e.PerformedAt.Before(before) {
			purged++
			continue
		}
		kept = append(kept, e)
	}
	s.entries = kept
	return purged, nil
}

// ──────────────────────────────────────────────────
// Core
// ──────────────────────────────────────────────────

func (s *Store) Migrate(_ context.Context) error {
	return nil
}

func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return folio.ErrStoreClosed
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	return nil
}

func paginate[T any](items []T, offset, limit int) []T {
	start := min(offset, len(items))
	end := len(items)
	if limit > 0 && start+limit < end {
		end = start + limit
	}
	return items[start:end]
}

func cloneUser(u *user.User) *user.User {
	c := *u
	c.Sequences = maps.Clone(u.Sequences)
	return &c
}

func cloneEntry(e *audit.Entry) *audit.Entry {
	c := *e
	c.Changes = append([]audit.Change(nil), e.Changes...)
	c.Metadata = maps.Clone(e.Metadata)
	return &c
}
