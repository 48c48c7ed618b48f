// Package redis implements store.Store on Redis. Users, counters and
// documents are hashes; list and due queries read sorted-set indexes;
// every counter change and conditional document write is a Lua script.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/samber/lo"

	"github.com/xraph/folio"
	"github.com/xraph/folio/audit"
	"github.com/xraph/folio/document"
	"github.com/xraph/folio/id"
	"github.com/xraph/folio/sequence"
	foliostore "github.com/xraph/folio/store"
	"github.com/xraph/folio/subscription"
	"github.com/xraph/folio/types"
	"github.com/xraph/folio/usage"
	"github.com/xraph/folio/user"
)

// compile-time interface check
var _ foliostore.Store = (*Store)(nil)

// DefaultKeyPrefix namespaces every key the store writes.
const DefaultKeyPrefix = "folio"

// Store implements store.Store on a Redis client.
type Store struct {
	client redis.UniversalClient
	prefix string
}

// Option configures a Store.
type Option func(*Store)

// WithKeyPrefix sets the key namespace. Defaults to DefaultKeyPrefix.
func WithKeyPrefix(prefix string) Option {
	return func(s *Store) { s.prefix = prefix }
}

// New creates a store on client. The store owns the client and closes it.
func New(client redis.UniversalClient, opts ...Option) *Store {
	s := &Store{client: client, prefix: DefaultKeyPrefix}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Client returns the underlying Redis client.
func (s *Store) Client() redis.UniversalClient { return s.client }

// Migrate loads the Lua scripts into the server's script cache.
func (s *Store) Migrate(ctx context.Context) error {
	for _, script := range scripts() {
		if err := script.Load(ctx, s.client).Err(); err != nil {
			return fmt.Errorf("folio/redis: load script: %w", err)
		}
	}
	return nil
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the client.
func (s *Store) Close() error {
	return s.client.Close()
}

// ==================== Keys ====================

func (s *Store) userKey(userID string) string { return s.prefix + ":user:" + userID }
func (s *Store) seqKey(userID string) string  { return s.prefix + ":seq:" + userID }
func (s *Store) docKey(docID string) string   { return s.prefix + ":doc:" + docID }
func (s *Store) docsKey(userID string) string { return s.prefix + ":docs:" + userID }

func (s *Store) numbersKey(userID string, t sequence.DocumentType) string {
	return s.prefix + ":numbers:" + userID + ":" + string(t)
}

func (s *Store) dueKey(t sequence.DocumentType, status document.Status) string {
	return s.prefix + ":due:" + string(t) + ":" + string(status)
}

func (s *Store) entryKey(entryID string) string    { return s.prefix + ":audit:entry:" + entryID }
func (s *Store) docAuditKey(docID string) string   { return s.prefix + ":audit:doc:" + docID }
func (s *Store) userAuditKey(userID string) string { return s.prefix + ":audit:user:" + userID }
func (s *Store) allAuditKey() string               { return s.prefix + ":audit:all" }

// ==================== User Store ====================

func (s *Store) CreateUser(ctx context.Context, u *user.User) error {
	sub, err := json.Marshal(u.Subscription)
	if err != nil {
		return fmt.Errorf("folio/redis: encode subscription: %w", err)
	}
	fields := []any{
		"id", u.ID,
		"email", u.Email,
		"name", u.Name,
		"subscription", string(sub),
		"created_at", formatTime(u.CreatedAt),
		"updated_at", formatTime(u.UpdatedAt),
		"invoices_this_month", u.Usage.InvoicesThisMonth,
		"quotes_this_month", u.Usage.QuotesThisMonth,
		"expenses_this_month", u.Usage.ExpensesThisMonth,
		"clients_count", u.Usage.ClientsCount,
		"last_reset_date", u.Usage.LastResetDate.Unix(),
	}

	ok, err := createUserScript.Run(ctx, s.client, []string{s.userKey(u.ID)}, fields...).Int()
	if err != nil {
		return fmt.Errorf("folio/redis: create user: %w", err)
	}
	if ok == 0 {
		return folio.ErrAlreadyExists
	}
	return nil
}

func (s *Store) GetUser(ctx context.Context, userID string) (*user.User, error) {
	var userCmd, seqCmd *redis.StringStringMapCmd
	_, err := s.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		userCmd = p.HGetAll(ctx, s.userKey(userID))
		seqCmd = p.HGetAll(ctx, s.seqKey(userID))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("folio/redis: get user: %w", err)
	}

	fields := userCmd.Val()
	if len(fields) == 0 {
		return nil, folio.ErrUserNotFound
	}

	u := &user.User{
		ID:    fields["id"],
		Email: fields["email"],
		Name:  fields["name"],
		Entity: types.Entity{
			CreatedAt: parseTime(fields["created_at"]),
			UpdatedAt: parseTime(fields["updated_at"]),
		},
		Usage: usageFromHash(fields),
	}
	if err := json.Unmarshal([]byte(fields["subscription"]), &u.Subscription); err != nil {
		return nil, fmt.Errorf("folio/redis: decode subscription: %w", err)
	}

	seqs := seqCmd.Val()
	for _, t := range sequence.Types() {
		if _, ok := seqs[string(t)+":prefix"]; !ok {
			continue
		}
		if u.Sequences == nil {
			u.Sequences = make(map[sequence.DocumentType]sequence.Counter)
		}
		u.Sequences[t] = counterFromHash(userID, t, seqs)
	}
	return u, nil
}

func (s *Store) UpdateSubscription(ctx context.Context, userID string, sub subscription.Subscription, at time.Time) error {
	raw, err := json.Marshal(sub)
	if err != nil {
		return fmt.Errorf("folio/redis: encode subscription: %w", err)
	}
	ok, err := hsetIfExistsScript.Run(ctx, s.client, []string{s.userKey(userID)},
		"subscription", string(raw),
		"updated_at", formatTime(at),
	).Int()
	if err != nil {
		return fmt.Errorf("folio/redis: update subscription: %w", err)
	}
	if ok == 0 {
		return folio.ErrUserNotFound
	}
	return nil
}

// ==================== Sequence Store ====================

func (s *Store) NextNumber(ctx context.Context, userID string, t sequence.DocumentType, year int) (sequence.Number, error) {
	res, err := nextNumberScript.Run(ctx, s.client,
		[]string{s.userKey(userID), s.seqKey(userID)},
		string(t), year, t.DefaultPrefix(), sequence.MaxNumber, formatTime(now()),
	).Slice()
	if err != nil {
		return sequence.Number{}, fmt.Errorf("folio/redis: next number: %w", err)
	}

	switch status(res) {
	case 0:
		return sequence.Number{}, folio.ErrUserNotFound
	case -1:
		return sequence.Number{}, folio.ErrSequenceExhausted
	}
	prefix, _ := res[1].(string)
	value, _ := res[2].(int64)
	issued, _ := res[3].(int64)
	return sequence.Number{Type: t, Prefix: prefix, Year: int(issued), Value: int(value)}, nil
}

func (s *Store) GetCounter(ctx context.Context, userID string, t sequence.DocumentType) (*sequence.Counter, error) {
	var exists *redis.IntCmd
	var seqs *redis.StringStringMapCmd
	_, err := s.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		exists = p.Exists(ctx, s.userKey(userID))
		seqs = p.HGetAll(ctx, s.seqKey(userID))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("folio/redis: get counter: %w", err)
	}
	if exists.Val() == 0 {
		return nil, folio.ErrUserNotFound
	}

	c := counterFromHash(userID, t, seqs.Val())
	return &c, nil
}

func (s *Store) SetPrefix(ctx context.Context, userID string, t sequence.DocumentType, prefix string) error {
	ok, err := setPrefixScript.Run(ctx, s.client,
		[]string{s.userKey(userID), s.seqKey(userID)},
		string(t), prefix, formatTime(now()),
	).Int()
	if err != nil {
		return fmt.Errorf("folio/redis: set prefix: %w", err)
	}
	if ok == 0 {
		return folio.ErrUserNotFound
	}
	return nil
}

// ==================== Usage Store ====================

func (s *Store) ReserveUsage(ctx context.Context, userID string, metric usage.Metric, limit int64, periodStart time.Time) (*usage.Reservation, error) {
	if !metric.Valid() {
		return nil, folio.ErrInvalidMetric
	}

	res, err := reserveScript.Run(ctx, s.client, []string{s.userKey(userID)},
		metric.Field(), limit, periodStart.Unix(),
	).Slice()
	if err != nil {
		return nil, fmt.Errorf("folio/redis: reserve usage: %w", err)
	}
	if status(res) == 0 {
		return nil, folio.ErrUserNotFound
	}

	allowed, _ := res[1].(int64)
	current, _ := res[2].(int64)
	return &usage.Reservation{Allowed: allowed == 1, Current: current}, nil
}

func (s *Store) ReleaseUsage(ctx context.Context, userID string, metric usage.Metric, periodStart time.Time) (int64, error) {
	if !metric.Valid() {
		return 0, folio.ErrInvalidMetric
	}

	res, err := releaseScript.Run(ctx, s.client, []string{s.userKey(userID)},
		metric.Field(), 0, periodStart.Unix(),
	).Slice()
	if err != nil {
		return 0, fmt.Errorf("folio/redis: release usage: %w", err)
	}
	if status(res) == 0 {
		return 0, folio.ErrUserNotFound
	}

	current, _ := res[1].(int64)
	return current, nil
}

func (s *Store) AdjustClients(ctx context.Context, userID string, delta, limit int64) (*usage.Reservation, error) {
	res, err := adjustClientsScript.Run(ctx, s.client, []string{s.userKey(userID)}, delta, limit).Slice()
	if err != nil {
		return nil, fmt.Errorf("folio/redis: adjust clients: %w", err)
	}
	if status(res) == 0 {
		return nil, folio.ErrUserNotFound
	}

	allowed, _ := res[1].(int64)
	current, _ := res[2].(int64)
	return &usage.Reservation{Allowed: allowed == 1, Current: current}, nil
}

func (s *Store) GetUsage(ctx context.Context, userID string) (*usage.Counters, error) {
	fields, err := s.client.HGetAll(ctx, s.userKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("folio/redis: get usage: %w", err)
	}
	if len(fields) == 0 {
		return nil, folio.ErrUserNotFound
	}
	c := usageFromHash(fields)
	return &c, nil
}

// ==================== Document Store ====================

func (s *Store) CreateDocument(ctx context.Context, d *document.Document) error {
	data, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("folio/redis: encode document: %w", err)
	}
	docID := d.ID.String()

	res, err := createDocumentScript.Run(ctx, s.client,
		[]string{
			s.userKey(d.UserID),
			s.docKey(docID),
			s.numbersKey(d.UserID, d.Type),
			s.docsKey(d.UserID),
			s.dueKey(d.Type, d.Status),
		},
		docID, d.Number, string(data), string(d.Status), d.CreatedAt.UnixMilli(), dueScore(d),
	).Int()
	if err != nil {
		return fmt.Errorf("folio/redis: create document: %w", err)
	}

	switch res {
	case 0:
		return folio.ErrUserNotFound
	case -1:
		return folio.ErrAlreadyExists
	}
	return nil
}

func (s *Store) GetDocument(ctx context.Context, docID id.DocumentID) (*document.Document, error) {
	data, err := s.client.HGet(ctx, s.docKey(docID.String()), "data").Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, folio.ErrDocumentNotFound
		}
		return nil, fmt.Errorf("folio/redis: get document: %w", err)
	}
	return decodeDocument(data)
}

func (s *Store) ListDocuments(ctx context.Context, userID string, opts document.ListOpts) ([]*document.Document, error) {
	ids, err := s.client.ZRevRange(ctx, s.docsKey(userID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("folio/redis: list documents: %w", err)
	}
	docs, err := s.loadDocuments(ctx, ids)
	if err != nil {
		return nil, err
	}

	docs = lo.Filter(docs, func(d *document.Document, _ int) bool {
		return (opts.Type == "" || d.Type == opts.Type) &&
			(opts.Status == "" || d.Status == opts.Status)
	})
	sort.SliceStable(docs, func(i, j int) bool {
		if docs[i].CreatedAt.Equal(docs[j].CreatedAt) {
			return docs[i].ID.String() > docs[j].ID.String()
		}
		return docs[i].CreatedAt.After(docs[j].CreatedAt)
	})
	return paginate(docs, opts.Offset, opts.Limit), nil
}

func (s *Store) ListDueDocuments(ctx context.Context, t sequence.DocumentType, status document.Status, before time.Time, limit int) ([]*document.Document, error) {
	// Scores are milliseconds, so the range is inclusive and the exact
	// cut is made on the decoded due dates.
	ids, err := s.client.ZRangeByScore(ctx, s.dueKey(t, status), &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(before.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("folio/redis: list due documents: %w", err)
	}
	docs, err := s.loadDocuments(ctx, ids)
	if err != nil {
		return nil, err
	}

	docs = lo.Filter(docs, func(d *document.Document, _ int) bool {
		return d.Status == status && d.DueDate != nil && d.DueDate.Before(before)
	})
	sort.SliceStable(docs, func(i, j int) bool {
		return docs[i].DueDate.Before(*docs[j].DueDate)
	})
	return paginate(docs, 0, limit), nil
}

func (s *Store) UpdateDocument(ctx context.Context, d *document.Document, expected document.Status) error {
	data, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("folio/redis: encode document: %w", err)
	}
	docID := d.ID.String()

	res, err := updateDocumentScript.Run(ctx, s.client,
		[]string{s.docKey(docID), s.dueKey(d.Type, expected), s.dueKey(d.Type, d.Status)},
		docID, string(expected), string(data), string(d.Status), dueScore(d),
	).Int()
	if err != nil {
		return fmt.Errorf("folio/redis: update document: %w", err)
	}
	return conditionalResult(res)
}

func (s *Store) DeleteDocument(ctx context.Context, docID id.DocumentID, expected document.Status) error {
	d, err := s.GetDocument(ctx, docID)
	if err != nil {
		return err
	}

	res, err := deleteDocumentScript.Run(ctx, s.client,
		[]string{
			s.docKey(docID.String()),
			s.numbersKey(d.UserID, d.Type),
			s.docsKey(d.UserID),
			s.dueKey(d.Type, expected),
		},
		docID.String(), string(expected),
	).Int()
	if err != nil {
		return fmt.Errorf("folio/redis: delete document: %w", err)
	}
	return conditionalResult(res)
}

func (s *Store) loadDocuments(ctx context.Context, ids []string) ([]*document.Document, error) {
	if len(ids) == 0 {
		return []*document.Document{}, nil
	}

	cmds := make([]*redis.StringCmd, len(ids))
	_, err := s.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		for i, docID := range ids {
			cmds[i] = p.HGet(ctx, s.docKey(docID), "data")
		}
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("folio/redis: load documents: %w", err)
	}

	docs := make([]*document.Document, 0, len(ids))
	for _, cmd := range cmds {
		data, err := cmd.Result()
		if errors.Is(err, redis.Nil) {
			// Deleted between the index read and the load.
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("folio/redis: load documents: %w", err)
		}
		d, err := decodeDocument(data)
		if err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, nil
}

// ==================== Audit Store ====================

func (s *Store) AppendAudit(ctx context.Context, e *audit.Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("folio/redis: encode audit entry: %w", err)
	}
	entryID := e.ID.String()
	member := &redis.Z{Score: float64(e.PerformedAt.UnixMilli()), Member: entryID}

	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, s.entryKey(entryID), data, 0)
		p.ZAdd(ctx, s.docAuditKey(e.DocumentID.String()), member)
		p.ZAdd(ctx, s.userAuditKey(e.UserID), member)
		p.ZAdd(ctx, s.allAuditKey(), member)
		return nil
	})
	if err != nil {
		return fmt.Errorf("folio/redis: append audit: %w", err)
	}
	return nil
}

func (s *Store) ListDocumentAudit(ctx context.Context, docID id.DocumentID, opts audit.ListOpts) ([]*audit.Entry, error) {
	return s.listAudit(ctx, s.docAuditKey(docID.String()), opts)
}

func (s *Store) ListUserAudit(ctx context.Context, userID string, opts audit.ListOpts) ([]*audit.Entry, error) {
	return s.listAudit(ctx, s.userAuditKey(userID), opts)
}

func (s *Store) listAudit(ctx context.Context, index string, opts audit.ListOpts) ([]*audit.Entry, error) {
	rng := &redis.ZRangeBy{Min: "-inf", Max: "+inf"}
	if !opts.Since.IsZero() {
		rng.Min = strconv.FormatInt(opts.Since.UnixMilli(), 10)
	}
	if !opts.Until.IsZero() {
		rng.Max = strconv.FormatInt(opts.Until.UnixMilli(), 10)
	}

	ids, err := s.client.ZRangeByScore(ctx, index, rng).Result()
	if err != nil {
		return nil, fmt.Errorf("folio/redis: list audit: %w", err)
	}
	entries, err := s.loadEntries(ctx, ids)
	if err != nil {
		return nil, err
	}

	entries = lo.Filter(entries, func(e *audit.Entry, _ int) bool {
		if opts.Action != "" && e.Action != opts.Action {
			return false
		}
		if !opts.Since.IsZero() && e.PerformedAt.Before(opts.Since) {
			return false
		}
		return opts.Until.IsZero() || e.PerformedAt.Before(opts.Until)
	})
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].PerformedAt.Before(entries[j].PerformedAt)
	})
	return paginate(entries, opts.Offset, opts.Limit), nil
}

func (s *Store) PurgeAudit(ctx context.Context, before time.Time) (int64, error) {
	ids, err := s.client.ZRangeByScore(ctx, s.allAuditKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(before.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("folio/redis: purge audit: %w", err)
	}
	entries, err := s.loadEntries(ctx, ids)
	if err != nil {
		return 0, err
	}

	expired := lo.Filter(entries, func(e *audit.Entry, _ int) bool {
		return e.PerformedAt.Before(before)
	})
	if len(expired) == 0 {
		return 0, nil
	}

	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		for _, e := range expired {
			entryID := e.ID.String()
			p.Del(ctx, s.entryKey(entryID))
			p.ZRem(ctx, s.docAuditKey(e.DocumentID.String()), entryID)
			p.ZRem(ctx, s.userAuditKey(e.UserID), entryID)
			p.ZRem(ctx, s.allAuditKey(), entryID)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("folio/redis: purge audit: %w", err)
	}
	return int64(len(expired)), nil
}

func (s *Store) loadEntries(ctx context.Context, ids []string) ([]*audit.Entry, error) {
	if len(ids) == 0 {
		return []*audit.Entry{}, nil
	}

	keys := lo.Map(ids, func(entryID string, _ int) string { return s.entryKey(entryID) })
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("folio/redis: load audit entries: %w", err)
	}

	entries := make([]*audit.Entry, 0, len(values))
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var e audit.Entry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			return nil, fmt.Errorf("folio/redis: decode audit entry: %w", err)
		}
		entries = append(entries, &e)
	}
	return entries, nil
}

// ==================== Helpers ====================

func now() time.Time {
	return time.Now().UTC()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

func parseInt(s string) int64 {
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}

func usageFromHash(fields map[string]string) usage.Counters {
	return usage.Counters{
		InvoicesThisMonth: parseInt(fields["invoices_this_month"]),
		QuotesThisMonth:   parseInt(fields["quotes_this_month"]),
		ExpensesThisMonth: parseInt(fields["expenses_this_month"]),
		ClientsCount:      parseInt(fields["clients_count"]),
		LastResetDate:     time.Unix(parseInt(fields["last_reset_date"]), 0).UTC(),
	}
}

func counterFromHash(userID string, t sequence.DocumentType, fields map[string]string) sequence.Counter {
	c := sequence.NewCounter(userID, t)
	key := string(t) + ":"
	if prefix, ok := fields[key+"prefix"]; ok {
		c.Prefix = prefix
	}
	if year, ok := fields[key+"year"]; ok {
		c.Year = int(parseInt(year))
	}
	if next, ok := fields[key+"next"]; ok {
		c.NextNumber = int(parseInt(next))
	}
	if updated, ok := fields[key+"updated"]; ok {
		c.UpdatedAt = parseTime(updated)
	}
	return c
}

func decodeDocument(data string) (*document.Document, error) {
	var d document.Document
	if err := json.Unmarshal([]byte(data), &d); err != nil {
		return nil, fmt.Errorf("folio/redis: decode document: %w", err)
	}
	return &d, nil
}

func dueScore(d *document.Document) string {
	if d.DueDate == nil {
		return ""
	}
	return strconv.FormatInt(d.DueDate.UnixMilli(), 10)
}

// status reads the leading status code of a script reply.
func status(res []any) int64 {
	if len(res) == 0 {
		return 0
	}
	code, _ := res[0].(int64)
	return code
}

func conditionalResult(res int) error {
	switch res {
	case 0:
		return folio.ErrDocumentNotFound
	case -1:
		return folio.ErrConcurrentModification
	}
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
