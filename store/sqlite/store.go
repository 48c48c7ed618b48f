package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/sqlitedriver"
	_ "github.com/xraph/grove/drivers/sqlitedriver/sqlitemigrate"
	"github.com/xraph/grove/migrate"

	"github.com/xraph/folio"
	"github.com/xraph/folio/audit"
	"github.com/xraph/folio/document"
	"github.com/xraph/folio/id"
	"github.com/xraph/folio/sequence"
	foliostore "github.com/xraph/folio/store"
	"github.com/xraph/folio/subscription"
	"github.com/xraph/folio/usage"
	"github.com/xraph/folio/user"
)

// compile-time interface check
var _ foliostore.Store = (*Store)(nil)

// Store implements store.Store using SQLite via Grove ORM. SQLite
// serializes writers, so each counter statement is atomic; a writer that
// times out waiting for the lock surfaces as folio.ErrConcurrentModification
// and is retried by the engine.
type Store struct {
	db  *grove.DB
	sdb *sqlitedriver.SqliteDB
}

// New creates a new SQLite store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		sdb: sqlitedriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.sdb)
	if err != nil {
		return fmt.Errorf("folio/sqlite: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("folio/sqlite: migration failed: %w", err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ==================== User Store ====================

func (s *Store) CreateUser(ctx context.Context, u *user.User) error {
	_, err := s.sdb.NewInsert(toUserModel(u)).Exec(ctx)
	return mapError(err)
}

func (s *Store) GetUser(ctx context.Context, userID string) (*user.User, error) {
	m := new(userModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", userID).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, folio.ErrUserNotFound
		}
		return nil, mapError(err)
	}
	u := fromUserModel(m)

	var seqs []sequenceModel
	if err := s.sdb.NewSelect(&seqs).Where("user_id = ?", userID).Scan(ctx); err != nil {
		return nil, mapError(err)
	}
	if len(seqs) > 0 {
		u.Sequences = make(map[sequence.DocumentType]sequence.Counter, len(seqs))
		for i := range seqs {
			c := fromSequenceModel(&seqs[i])
			u.Sequences[c.Type] = c
		}
	}
	return u, nil
}

func (s *Store) UpdateSubscription(ctx context.Context, userID string, sub subscription.Subscription, at time.Time) error {
	res, err := s.sdb.NewUpdate((*userModel)(nil)).
		Set("plan = ?", sub.Plan).
		Set("subscription_status = ?", string(sub.Status)).
		Set("provider_customer_id = ?", sub.ProviderCustomerID).
		Set("provider_subscription_id = ?", sub.ProviderSubscriptionID).
		Set("current_period_end = ?", toUnixPtr(sub.CurrentPeriodEnd)).
		Set("canceled_at = ?", toUnixPtr(sub.CanceledAt)).
		Set("updated_at = ?", at.Unix()).
		Where("id = ?", userID).
		Exec(ctx)
	if err != nil {
		return mapError(err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return folio.ErrUserNotFound
	}
	return nil
}

// ==================== Sequence Store ====================

// nextNumberSQL is the SQLite form of the single-statement allocation: the
// upsert creates the counter on first use, restarts it on a later year,
// keeps the stored year for an earlier one, and returns no row once the
// year's numbers are exhausted.
const nextNumberSQL = `
INSERT INTO folio_sequences (user_id, document_type, prefix, year, next_number, updated_at)
SELECT id, ?2, ?3, ?4, 2, ?5 FROM folio_users WHERE id = ?1
ON CONFLICT (user_id, document_type) DO UPDATE SET
    next_number = CASE WHEN folio_sequences.year < excluded.year
                       THEN 2
                       ELSE folio_sequences.next_number + 1 END,
    year        = MAX(folio_sequences.year, excluded.year),
    updated_at  = excluded.updated_at
WHERE folio_sequences.year < excluded.year OR folio_sequences.next_number <= ?6
RETURNING prefix, year, next_number - 1`

func (s *Store) NextNumber(ctx context.Context, userID string, t sequence.DocumentType, year int) (sequence.Number, error) {
	n := sequence.Number{Type: t}
	err := s.sdb.NewRaw(nextNumberSQL, userID, string(t), t.DefaultPrefix(), year, now().Unix(), sequence.MaxNumber).
		Scan(ctx, &n.Prefix, &n.Year, &n.Value)
	if err == nil {
		return n, nil
	}
	if !isNoRows(err) {
		return sequence.Number{}, mapError(err)
	}
	if err := s.userExists(ctx, userID); err != nil {
		return sequence.Number{}, err
	}
	return sequence.Number{}, folio.ErrSequenceExhausted
}

func (s *Store) GetCounter(ctx context.Context, userID string, t sequence.DocumentType) (*sequence.Counter, error) {
	m := new(sequenceModel)
	err := s.sdb.NewSelect(m).
		Where("user_id = ?", userID).
		Where("document_type = ?", string(t)).
		Scan(ctx)
	if err == nil {
		c := fromSequenceModel(m)
		return &c, nil
	}
	if !isNoRows(err) {
		return nil, mapError(err)
	}
	if err := s.userExists(ctx, userID); err != nil {
		return nil, err
	}
	c := sequence.NewCounter(userID, t)
	return &c, nil
}

func (s *Store) SetPrefix(ctx context.Context, userID string, t sequence.DocumentType, prefix string) error {
	res, err := s.sdb.NewRaw(`
		INSERT INTO folio_sequences (user_id, document_type, prefix, year, next_number, updated_at)
		SELECT id, ?2, ?3, 0, 1, ?4 FROM folio_users WHERE id = ?1
		ON CONFLICT (user_id, document_type) DO UPDATE SET
		    prefix = excluded.prefix,
		    updated_at = excluded.updated_at
	`, userID, string(t), prefix, now().Unix()).Exec(ctx)
	if err != nil {
		return mapError(err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return folio.ErrUserNotFound
	}
	return nil
}

// ==================== Usage Store ====================

func (s *Store) ReserveUsage(ctx context.Context, userID string, metric usage.Metric, limit int64, periodStart time.Time) (*usage.Reservation, error) {
	if !metric.Valid() {
		return nil, folio.ErrInvalidMetric
	}
	if err := s.rollover(ctx, userID, periodStart); err != nil {
		return nil, err
	}

	field := metric.Field()
	var current int64
	err := s.sdb.NewRaw(
		fmt.Sprintf(`UPDATE folio_users SET %[1]s = %[1]s + 1
			WHERE id = ?1 AND (?2 < 0 OR %[1]s < ?2)
			RETURNING %[1]s`, field),
		userID, limit,
	).Scan(ctx, &current)
	if err == nil {
		return &usage.Reservation{Allowed: true, Current: current}, nil
	}
	if !isNoRows(err) {
		return nil, mapError(err)
	}

	current, err = s.readCounter(ctx, userID, field)
	if err != nil {
		return nil, err
	}
	return &usage.Reservation{Allowed: false, Current: current}, nil
}

func (s *Store) ReleaseUsage(ctx context.Context, userID string, metric usage.Metric, periodStart time.Time) (int64, error) {
	if !metric.Valid() {
		return 0, folio.ErrInvalidMetric
	}
	if err := s.rollover(ctx, userID, periodStart); err != nil {
		return 0, err
	}

	field := metric.Field()
	var current int64
	err := s.sdb.NewRaw(
		fmt.Sprintf(`UPDATE folio_users SET %[1]s = %[1]s - 1
			WHERE id = ?1 AND %[1]s > 0
			RETURNING %[1]s`, field),
		userID,
	).Scan(ctx, &current)
	if err == nil {
		return current, nil
	}
	if !isNoRows(err) {
		return 0, mapError(err)
	}
	return s.readCounter(ctx, userID, field)
}

func (s *Store) AdjustClients(ctx context.Context, userID string, delta, limit int64) (*usage.Reservation, error) {
	var current int64
	err := s.sdb.NewRaw(`
		UPDATE folio_users SET clients_count = MAX(clients_count + ?2, 0)
		WHERE id = ?1 AND (?2 <= 0 OR ?3 < 0 OR clients_count + ?2 <= ?3)
		RETURNING clients_count
	`, userID, delta, limit).Scan(ctx, &current)
	if err == nil {
		return &usage.Reservation{Allowed: true, Current: current}, nil
	}
	if !isNoRows(err) {
		return nil, mapError(err)
	}

	current, err = s.readCounter(ctx, userID, "clients_count")
	if err != nil {
		return nil, err
	}
	return &usage.Reservation{Allowed: false, Current: current}, nil
}

func (s *Store) GetUsage(ctx context.Context, userID string) (*usage.Counters, error) {
	m := new(userModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", userID).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, folio.ErrUserNotFound
		}
		return nil, mapError(err)
	}
	c := fromUsageColumns(m)
	return &c, nil
}

func (s *Store) rollover(ctx context.Context, userID string, periodStart time.Time) error {
	_, err := s.sdb.NewRaw(`
		UPDATE folio_users SET
		    invoices_this_month = 0,
		    quotes_this_month = 0,
		    expenses_this_month = 0,
		    last_reset_date = ?2
		WHERE id = ?1 AND last_reset_date < ?2
	`, userID, periodStart.Unix()).Exec(ctx)
	return mapError(err)
}

func (s *Store) readCounter(ctx context.Context, userID, field string) (int64, error) {
	var current int64
	err := s.sdb.NewRaw(
		fmt.Sprintf(`SELECT %s FROM folio_users WHERE id = ?1`, field), userID,
	).Scan(ctx, &current)
	if err != nil {
		if isNoRows(err) {
			return 0, folio.ErrUserNotFound
		}
		return 0, mapError(err)
	}
	return current, nil
}

func (s *Store) userExists(ctx context.Context, userID string) error {
	n, err := s.sdb.NewSelect((*userModel)(nil)).
		Where("id = ?", userID).
		Count(ctx)
	if err != nil {
		return mapError(err)
	}
	if n == 0 {
		return folio.ErrUserNotFound
	}
	return nil
}

// ==================== Document Store ====================

func (s *Store) CreateDocument(ctx context.Context, d *document.Document) error {
	m, err := toDocumentModel(d)
	if err != nil {
		return fmt.Errorf("folio/sqlite: encode document: %w", err)
	}
	_, err = s.sdb.NewInsert(m).Exec(ctx)
	return mapError(err)
}

func (s *Store) GetDocument(ctx context.Context, docID id.DocumentID) (*document.Document, error) {
	m := new(documentModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", docID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, folio.ErrDocumentNotFound
		}
		return nil, mapError(err)
	}
	return fromDocumentModel(m)
}

func (s *Store) ListDocuments(ctx context.Context, userID string, opts document.ListOpts) ([]*document.Document, error) {
	var models []documentModel
	q := s.sdb.NewSelect(&models).Where("user_id = ?", userID)

	if opts.Type != "" {
		q = q.Where("document_type = ?", string(opts.Type))
	}
	if opts.Status != "" {
		q = q.Where("status = ?", string(opts.Status))
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("created_at DESC, id DESC")

	if err := q.Scan(ctx); err != nil {
		return nil, mapError(err)
	}
	return fromDocumentModels(models)
}

func (s *Store) ListDueDocuments(ctx context.Context, t sequence.DocumentType, status document.Status, before time.Time, limit int) ([]*document.Document, error) {
	var models []documentModel
	q := s.sdb.NewSelect(&models).
		Where("document_type = ?", string(t)).
		Where("status = ?", string(status)).
		Where("due_date IS NOT NULL").
		Where("due_date < ?", before.Unix()).
		OrderExpr("due_date ASC, id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, mapError(err)
	}
	return fromDocumentModels(models)
}

func (s *Store) UpdateDocument(ctx context.Context, d *document.Document, expected document.Status) error {
	m, err := toDocumentModel(d)
	if err != nil {
		return fmt.Errorf("folio/sqlite: encode document: %w", err)
	}
	res, err := s.sdb.NewUpdate(m).
		WherePK().
		Where("status = ?", string(expected)).
		Exec(ctx)
	if err != nil {
		return mapError(err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return s.missOrConflict(ctx, d.ID)
	}
	return nil
}

func (s *Store) DeleteDocument(ctx context.Context, docID id.DocumentID, expected document.Status) error {
	res, err := s.sdb.NewDelete((*documentModel)(nil)).
		Where("id = ?", docID.String()).
		Where("status = ?", string(expected)).
		Exec(ctx)
	if err != nil {
		return mapError(err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return s.missOrConflict(ctx, docID)
	}
	return nil
}

func (s *Store) missOrConflict(ctx context.Context, docID id.DocumentID) error {
	n, err := s.sdb.NewSelect((*documentModel)(nil)).
		Where("id = ?", docID.String()).
		Count(ctx)
	if err != nil {
		return mapError(err)
	}
	if n == 0 {
		return folio.ErrDocumentNotFound
	}
	return folio.ErrConcurrentModification
}

func fromDocumentModels(models []documentModel) ([]*document.Document, error) {
	result := make([]*document.Document, len(models))
	for i := range models {
		d, err := fromDocumentModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = d
	}
	return result, nil
}

// ==================== Audit Store ====================

func (s *Store) AppendAudit(ctx context.Context, e *audit.Entry) error {
	m, err := toAuditEntryModel(e)
	if err != nil {
		return fmt.Errorf("folio/sqlite: encode audit entry: %w", err)
	}
	_, err = s.sdb.NewInsert(m).Exec(ctx)
	return mapError(err)
}

func (s *Store) ListDocumentAudit(ctx context.Context, docID id.DocumentID, opts audit.ListOpts) ([]*audit.Entry, error) {
	var models []auditEntryModel
	q := s.sdb.NewSelect(&models).Where("document_id = ?", docID.String())
	return listAudit(ctx, q, &models, opts)
}

func (s *Store) ListUserAudit(ctx context.Context, userID string, opts audit.ListOpts) ([]*audit.Entry, error) {
	var models []auditEntryModel
	q := s.sdb.NewSelect(&models).Where("user_id = ?", userID)
	return listAudit(ctx, q, &models, opts)
}

func listAudit(ctx context.Context, q *sqlitedriver.SelectQuery, models *[]auditEntryModel, opts audit.ListOpts) ([]*audit.Entry, error) {
	if opts.Action != "" {
		q = q.Where("action = ?", string(opts.Action))
	}
	if !opts.Since.IsZero() {
		q = q.Where("performed_at >= ?", opts.Since.Unix())
	}
	if !opts.Until.IsZero() {
		q = q.Where("performed_at < ?", opts.Until.Unix())
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("performed_at ASC, id ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, mapError(err)
	}

	result := make([]*audit.Entry, len(*models))
	for i := range *models {
		e, err := fromAuditEntryModel(&(*models)[i])
		if err != nil {
			return nil, err
		}
		result[i] = e
	}
	return result, nil
}

func (s *Store) PurgeAudit(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.sdb.NewDelete((*auditEntryModel)(nil)).
		Where("performed_at < ?", before.Unix()).
		Exec(ctx)
	if err != nil {
		return 0, mapError(err)
	}
	return res.RowsAffected()
}

// ==================== Helpers ====================

func now() time.Time {
	return time.Now().UTC()
}

// isNoRows checks for the standard sql.ErrNoRows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// mapError translates SQLite constraint and locking failures into Folio
// sentinels. The pure-Go driver reports them as text.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "UNIQUE constraint failed"),
		strings.Contains(msg, "PRIMARY KEY constraint failed"):
		return fmt.Errorf("%w: %s", folio.ErrAlreadyExists, msg)
	case strings.Contains(msg, "FOREIGN KEY constraint failed"):
		return folio.ErrUserNotFound
	case strings.Contains(msg, "SQLITE_BUSY"),
		strings.Contains(msg, "SQLITE_LOCKED"),
		strings.Contains(msg, "database is locked"):
		return fmt.Errorf("%w: %s", folio.ErrConcurrentModification, msg)
	}
	return err
}
