package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

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

// Collection name constants.
const (
	colUsers        = "folio_users"
	colDocuments    = "folio_documents"
	colAuditEntries = "folio_audit_entries"
)

// errCodeWriteConflict is the server code for a write conflict between
// concurrent operations on the same document.
const errCodeWriteConflict = 112

// compile-time interface check
var _ foliostore.Store = (*Store)(nil)

// Store implements store.Store using MongoDB via Grove ORM. Counters live
// on the user document and are changed with single-document atomic
// updates ($inc with a guard filter, or an update pipeline).
type Store struct {
	db  *grove.DB
	mdb *mongodriver.MongoDB
}

// New creates a new MongoDB store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		mdb: mongodriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates indexes for all folio collections.
func (s *Store) Migrate(ctx context.Context) error {
	indexes := migrationIndexes()

	for col, models := range indexes {
		if len(models) == 0 {
			continue
		}
		_, err := s.mdb.Collection(col).Indexes().CreateMany(ctx, models)
		if err != nil {
			return fmt.Errorf("folio/mongo: migrate %s indexes: %w", col, err)
		}
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
	_, err := s.mdb.NewInsert(toUserModel(u)).Exec(ctx)
	if err != nil {
		return fmt.Errorf("folio/mongo: create user: %w", mapError(err))
	}
	return nil
}

func (s *Store) GetUser(ctx context.Context, userID string) (*user.User, error) {
	m, err := s.findUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return fromUserModel(m), nil
}

func (s *Store) UpdateSubscription(ctx context.Context, userID string, sub subscription.Subscription, at time.Time) error {
	res, err := s.mdb.NewUpdate((*userModel)(nil)).
		Filter(bson.M{"_id": userID}).
		Set("subscription", toSubscriptionModel(sub)).
		Set("updated_at", at.UTC()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("folio/mongo: update subscription: %w", mapError(err))
	}
	if res.MatchedCount() == 0 {
		return folio.ErrUserNotFound
	}
	return nil
}

func (s *Store) findUser(ctx context.Context, userID string) (*userModel, error) {
	var m userModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": userID}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, folio.ErrUserNotFound
		}
		return nil, fmt.Errorf("folio/mongo: get user: %w", err)
	}
	return &m, nil
}

// ==================== Sequence Store ====================

func (s *Store) NextNumber(ctx context.Context, userID string, t sequence.DocumentType, year int) (sequence.Number, error) {
	path := "sequences." + string(t)
	field := "$" + path

	filter := bson.M{
		"_id": userID,
		"$or": bson.A{
			bson.M{path + ".year": bson.M{"$not": bson.M{"$gte": year}}},
			bson.M{path + ".next_number": bson.M{"$lte": sequence.MaxNumber}},
		},
	}
	// The pipeline reads the stored counter and writes its successor in
	// one document update: a later year restarts, otherwise the stored
	// year keeps counting.
	storedYear := bson.D{{Key: "$ifNull", Value: bson.A{field + ".year", 0}}}
	update := mongo.Pipeline{
		{{Key: "$set", Value: bson.D{{Key: path, Value: bson.D{
			{Key: "prefix", Value: bson.D{{Key: "$ifNull", Value: bson.A{field + ".prefix", t.DefaultPrefix()}}}},
			{Key: "year", Value: bson.D{{Key: "$max", Value: bson.A{storedYear, year}}}},
			{Key: "next_number", Value: bson.D{{Key: "$cond", Value: bson.A{
				bson.D{{Key: "$lt", Value: bson.A{storedYear, year}}},
				2,
				bson.D{{Key: "$add", Value: bson.A{field + ".next_number", 1}}},
			}}}},
			{Key: "updated_at", Value: bson.D{{Key: "$literal", Value: now()}}},
		}}}}},
	}
	opts := options.FindOneAndUpdate().
		SetReturnDocument(options.After).
		SetProjection(bson.M{path: 1})

	var m userModel
	err := s.mdb.Collection(colUsers).FindOneAndUpdate(ctx, filter, update, opts).Decode(&m)
	if err != nil {
		if !isNoDocuments(err) {
			return sequence.Number{}, fmt.Errorf("folio/mongo: next number: %w", mapError(err))
		}
		if _, err := s.findUser(ctx, userID); err != nil {
			return sequence.Number{}, err
		}
		return sequence.Number{}, folio.ErrSequenceExhausted
	}

	c := m.Sequences[string(t)]
	return sequence.Number{
		Type:   t,
		Prefix: c.Prefix,
		Year:   c.Year,
		Value:  c.NextNumber - 1,
	}, nil
}

func (s *Store) GetCounter(ctx context.Context, userID string, t sequence.DocumentType) (*sequence.Counter, error) {
	m, err := s.findUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	c := fromUserModel(m).Counter(t)
	return &c, nil
}

func (s *Store) SetPrefix(ctx context.Context, userID string, t sequence.DocumentType, prefix string) error {
	path := "sequences." + string(t)
	field := "$" + path

	update := mongo.Pipeline{
		{{Key: "$set", Value: bson.D{{Key: path, Value: bson.D{
			{Key: "prefix", Value: bson.D{{Key: "$literal", Value: prefix}}},
			{Key: "year", Value: bson.D{{Key: "$ifNull", Value: bson.A{field + ".year", 0}}}},
			{Key: "next_number", Value: bson.D{{Key: "$ifNull", Value: bson.A{field + ".next_number", 1}}}},
			{Key: "updated_at", Value: bson.D{{Key: "$literal", Value: now()}}},
		}}}}},
	}
	res, err := s.mdb.Collection(colUsers).UpdateOne(ctx, bson.M{"_id": userID}, update)
	if err != nil {
		return fmt.Errorf("folio/mongo: set prefix: %w", mapError(err))
	}
	if res.MatchedCount == 0 {
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

	path := "usage." + metric.Field()
	filter := bson.M{"_id": userID}
	if limit != usage.Unlimited {
		filter[path] = bson.M{"$lt": limit}
	}

	m, err := s.incUsage(ctx, filter, path, 1)
	if err == nil {
		return &usage.Reservation{Allowed: true, Current: fromUsageModel(m.Usage).Get(metric)}, nil
	}
	if !isNoDocuments(err) {
		return nil, fmt.Errorf("folio/mongo: reserve usage: %w", mapError(err))
	}

	current, err := s.findUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &usage.Reservation{Allowed: false, Current: fromUsageModel(current.Usage).Get(metric)}, nil
}

func (s *Store) ReleaseUsage(ctx context.Context, userID string, metric usage.Metric, periodStart time.Time) (int64, error) {
	if !metric.Valid() {
		return 0, folio.ErrInvalidMetric
	}
	if err := s.rollover(ctx, userID, periodStart); err != nil {
		return 0, err
	}

	path := "usage." + metric.Field()
	m, err := s.incUsage(ctx, bson.M{"_id": userID, path: bson.M{"$gt": 0}}, path, -1)
	if err == nil {
		return fromUsageModel(m.Usage).Get(metric), nil
	}
	if !isNoDocuments(err) {
		return 0, fmt.Errorf("folio/mongo: release usage: %w", mapError(err))
	}

	current, err := s.findUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	return fromUsageModel(current.Usage).Get(metric), nil
}

func (s *Store) AdjustClients(ctx context.Context, userID string, delta, limit int64) (*usage.Reservation, error) {
	update := mongo.Pipeline{
		{{Key: "$set", Value: bson.D{{Key: "usage.clients_count", Value: bson.D{{Key: "$max", Value: bson.A{
			bson.D{{Key: "$add", Value: bson.A{"$usage.clients_count", delta}}},
			0,
		}}}}}}},
	}
	opts := options.FindOneAndUpdate().
		SetReturnDocument(options.After).
		SetProjection(bson.M{"usage": 1})

	filter := bson.M{"_id": userID}
	if delta > 0 && limit >= 0 {
		filter["usage.clients_count"] = bson.M{"$not": bson.M{"$gt": limit - delta}}
	}

	var m userModel
	err := s.mdb.Collection(colUsers).FindOneAndUpdate(ctx, filter, update, opts).Decode(&m)
	if err == nil {
		return &usage.Reservation{Allowed: true, Current: m.Usage.ClientsCount}, nil
	}
	if !isNoDocuments(err) {
		return nil, fmt.Errorf("folio/mongo: adjust clients: %w", mapError(err))
	}

	current, err := s.findUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &usage.Reservation{Allowed: false, Current: current.Usage.ClientsCount}, nil
}

func (s *Store) GetUsage(ctx context.Context, userID string) (*usage.Counters, error) {
	m, err := s.findUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	c := fromUsageModel(m.Usage)
	return &c, nil
}

// rollover zeroes the period counters when the stored period started
// before periodStart. The guard filter makes it idempotent.
func (s *Store) rollover(ctx context.Context, userID string, periodStart time.Time) error {
	_, err := s.mdb.Collection(colUsers).UpdateOne(ctx,
		bson.M{"_id": userID, "usage.last_reset_date": bson.M{"$lt": periodStart.UTC()}},
		bson.M{"$set": bson.M{
			"usage.invoices_this_month": int64(0),
			"usage.quotes_this_month":   int64(0),
			"usage.expenses_this_month": int64(0),
			"usage.last_reset_date":     periodStart.UTC(),
		}},
	)
	if err != nil {
		return fmt.Errorf("folio/mongo: usage rollover: %w", mapError(err))
	}
	return nil
}

func (s *Store) incUsage(ctx context.Context, filter bson.M, path string, delta int64) (*userModel, error) {
	opts := options.FindOneAndUpdate().
		SetReturnDocument(options.After).
		SetProjection(bson.M{"usage": 1})

	var m userModel
	err := s.mdb.Collection(colUsers).
		FindOneAndUpdate(ctx, filter, bson.M{"$inc": bson.M{path: delta}}, opts).
		Decode(&m)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// ==================== Document Store ====================

func (s *Store) CreateDocument(ctx context.Context, d *document.Document) error {
	if _, err := s.findUser(ctx, d.UserID); err != nil {
		return err
	}
	_, err := s.mdb.NewInsert(toDocumentModel(d)).Exec(ctx)
	if err != nil {
		return fmt.Errorf("folio/mongo: create document: %w", mapError(err))
	}
	return nil
}

func (s *Store) GetDocument(ctx context.Context, docID id.DocumentID) (*document.Document, error) {
	var m documentModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": docID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, folio.ErrDocumentNotFound
		}
		return nil, fmt.Errorf("folio/mongo: get document: %w", err)
	}
	return fromDocumentModel(&m)
}

func (s *Store) ListDocuments(ctx context.Context, userID string, opts document.ListOpts) ([]*document.Document, error) {
	var models []documentModel

	filter := bson.M{"user_id": userID}
	if opts.Type != "" {
		filter["document_type"] = string(opts.Type)
	}
	if opts.Status != "" {
		filter["status"] = string(opts.Status)
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("folio/mongo: list documents: %w", err)
	}
	return fromDocumentModels(models)
}

func (s *Store) ListDueDocuments(ctx context.Context, t sequence.DocumentType, status document.Status, before time.Time, limit int) ([]*document.Document, error) {
	var models []documentModel

	q := s.mdb.NewFind(&models).
		Filter(bson.M{
			"document_type": string(t),
			"status":        string(status),
			"due_date":      bson.M{"$ne": nil, "$lt": before.UTC()},
		}).
		Sort(bson.D{{Key: "due_date", Value: 1}, {Key: "_id", Value: 1}})
	if limit > 0 {
		q = q.Limit(int64(limit))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("folio/mongo: list due documents: %w", err)
	}
	return fromDocumentModels(models)
}

func (s *Store) UpdateDocument(ctx context.Context, d *document.Document, expected document.Status) error {
	m := toDocumentModel(d)
	res, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.ID, "status": string(expected)}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("folio/mongo: update document: %w", mapError(err))
	}
	if res.MatchedCount() == 0 {
		return s.missOrConflict(ctx, d.ID)
	}
	return nil
}

func (s *Store) DeleteDocument(ctx context.Context, docID id.DocumentID, expected document.Status) error {
	res, err := s.mdb.NewDelete((*documentModel)(nil)).
		Filter(bson.M{"_id": docID.String(), "status": string(expected)}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("folio/mongo: delete document: %w", mapError(err))
	}
	if res.DeletedCount() == 0 {
		return s.missOrConflict(ctx, docID)
	}
	return nil
}

func (s *Store) missOrConflict(ctx context.Context, docID id.DocumentID) error {
	n, err := s.mdb.NewFind((*documentModel)(nil)).
		Filter(bson.M{"_id": docID.String()}).
		Count(ctx)
	if err != nil {
		return fmt.Errorf("folio/mongo: count document: %w", err)
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
	_, err := s.mdb.NewInsert(toAuditEntryModel(e)).Exec(ctx)
	if err != nil {
		return fmt.Errorf("folio/mongo: append audit: %w", mapError(err))
	}
	return nil
}

func (s *Store) ListDocumentAudit(ctx context.Context, docID id.DocumentID, opts audit.ListOpts) ([]*audit.Entry, error) {
	return s.listAudit(ctx, bson.M{"document_id": docID.String()}, opts)
}

func (s *Store) ListUserAudit(ctx context.Context, userID string, opts audit.ListOpts) ([]*audit.Entry, error) {
	return s.listAudit(ctx, bson.M{"user_id": userID}, opts)
}

func (s *Store) listAudit(ctx context.Context, filter bson.M, opts audit.ListOpts) ([]*audit.Entry, error) {
	var models []auditEntryModel

	if opts.Action != "" {
		filter["action"] = string(opts.Action)
	}
	window := bson.M{}
	if !opts.Since.IsZero() {
		window["$gte"] = opts.Since.UTC()
	}
	if !opts.Until.IsZero() {
		window["$lt"] = opts.Until.UTC()
	}
	if len(window) > 0 {
		filter["performed_at"] = window
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "performed_at", Value: 1}, {Key: "_id", Value: 1}})
	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("folio/mongo: list audit: %w", err)
	}

	result := make([]*audit.Entry, len(models))
	for i := range models {
		e, err := fromAuditEntryModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = e
	}
	return result, nil
}

func (s *Store) PurgeAudit(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.mdb.NewDelete((*auditEntryModel)(nil)).
		Filter(bson.M{"performed_at": bson.M{"$lt": before.UTC()}}).
		Many().
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("folio/mongo: purge audit: %w", err)
	}
	return res.DeletedCount(), nil
}

// ==================== Helpers ====================

// now returns the current UTC time.
func now() time.Time {
	return time.Now().UTC()
}

// isNoDocuments checks if an error wraps mongo.ErrNoDocuments.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

// mapError translates duplicate keys and write conflicts into Folio
// sentinels.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%w: %w", folio.ErrAlreadyExists, err)
	}
	var se mongo.ServerError
	if errors.As(err, &se) && se.HasErrorCode(errCodeWriteConflict) {
		return fmt.Errorf("%w: %w", folio.ErrConcurrentModification, err)
	}
	return err
}

// migrationIndexes returns the index definitions for all folio collections.
func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colUsers: {
			{Keys: bson.D{{Key: "email", Value: 1}}},
			{
				Keys:    bson.D{{Key: "subscription.provider_customer_id", Value: 1}},
				Options: options.Index().SetSparse(true),
			},
		},
		colDocuments: {
			{
				Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "document_type", Value: 1}, {Key: "number", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}}},
			{Keys: bson.D{{Key: "document_type", Value: 1}, {Key: "status", Value: 1}, {Key: "due_date", Value: 1}}},
		},
		colAuditEntries: {
			{Keys: bson.D{{Key: "document_id", Value: 1}, {Key: "performed_at", Value: 1}}},
			{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "performed_at", Value: 1}}},
			{Keys: bson.D{{Key: "performed_at", Value: 1}}},
		},
	}
}
