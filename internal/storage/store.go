package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"fintrack/internal/core"
	"fintrack/internal/log"

	_ "modernc.org/sqlite"
)

const (
	CollTransactions        = "transactions"
	CollCards               = "cards"
	CollReserves            = "reserves"
	CollReserveTransactions = "reserve_transactions"
	CollCategories          = "categories"
	CollPartnerships        = "partnerships"
	CollSettings            = "settings"
)

var collections = map[string]bool{
	CollTransactions:        true,
	CollCards:               true,
	CollReserves:            true,
	CollReserveTransactions: true,
	CollCategories:          true,
	CollPartnerships:        true,
	CollSettings:            true,
}

// ValidCollection reports whether name is a collection users can write to.
func ValidCollection(name string) bool {
	return collections[name]
}

// dateLayout keeps indexed dates fixed-width so text comparison orders them.
const dateLayout = "2006-01-02T15:04:05.000Z"

// Document is one stored JSON document of a user's collection.
type Document struct {
	ID         string          `json:"id"`
	Collection string          `json:"collection"`
	Data       json.RawMessage `json:"data"`
	CreatedAt  time.Time       `json:"createdAt"`
	UpdatedAt  time.Time       `json:"updatedAt"`
}

// ListFilter narrows List results. Zero values leave a bound open. From and
// To are inclusive and apply to the document's "date" field.
type ListFilter struct {
	From time.Time
	To   time.Time
	Type string
}

// ChangePublisher forwards committed writes to another system.
type ChangePublisher interface {
	PublishChange(ctx context.Context, ev core.ChangeEvent) error
}

// DocumentStore is the per-user document database.
type DocumentStore interface {
	Get(ctx context.Context, userID, collection, id string) (Document, error)
	List(ctx context.Context, userID, collection string, f ListFilter) ([]Document, error)
	Create(ctx context.Context, userID, collection, id string, body json.RawMessage) (Document, error)
	Update(ctx context.Context, userID, collection, id string, body json.RawMessage) (Document, error)
	Put(ctx context.Context, userID, collection, id string, body json.RawMessage) (Document, error)
	Delete(ctx context.Context, userID, collection, id string) error
	Subscribe(userID, collection string) (<-chan core.ChangeEvent, func())
	Users(ctx context.Context) ([]string, error)
}

// SQLiteStore keeps documents in a single SQLite table.
type SQLiteStore struct {
	db        *sql.DB
	broker    *Broker
	publisher ChangePublisher
	logger    *log.Logger
	now       func() time.Time
}

var _ DocumentStore = (*SQLiteStore)(nil)

func NewSQLiteStore(dbPath string, logger *log.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = log.FromContext(context.Background())
	}
	logger = logger.WithComponent(log.ComponentStorage)

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	version, err := RunMigrations(dbPath)
	if err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// A single connection serializes writers and avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	logger.Info("SQLite store ready", "path", dbPath, "schema_version", version)

	return &SQLiteStore{
		db:     db,
		broker: NewBroker(logger),
		logger: logger,
		now:    time.Now,
	}, nil
}

// SetPublisher installs a publisher that receives every committed change.
func (s *SQLiteStore) SetPublisher(p ChangePublisher) {
	s.publisher = p
}

func (s *SQLiteStore) Close() error {
	s.broker.Close()
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *SQLiteStore) Subscribe(userID, collection string) (<-chan core.ChangeEvent, func()) {
	return s.broker.Subscribe(userID, collection)
}

// Users lists every user owning at least one document.
func (s *SQLiteStore) Users(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT user_id FROM documents ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *SQLiteStore) Get(ctx context.Context, userID, collection, id string) (Document, error) {
	if err := checkAddress(userID, collection); err != nil {
		return Document{}, err
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT doc_id, body, created_at, updated_at FROM documents
		 WHERE user_id = ? AND collection = ? AND doc_id = ?`,
		userID, collection, id)

	doc, err := scanDocument(row, collection)
	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, fmt.Errorf("%s/%s: %w", collection, id, core.ErrNotFound)
	}
	if err != nil {
		return Document{}, fmt.Errorf("get %s/%s: %w", collection, id, err)
	}
	return doc, nil
}

func (s *SQLiteStore) List(ctx context.Context, userID, collection string, f ListFilter) ([]Document, error) {
	if err := checkAddress(userID, collection); err != nil {
		return nil, err
	}

	query := `SELECT doc_id, body, created_at, updated_at FROM documents
		WHERE user_id = ? AND collection = ?`
	args := []any{userID, collection}
	if !f.From.IsZero() {
		query += ` AND doc_date >= ?`
		args = append(args, f.From.UTC().Format(dateLayout))
	}
	if !f.To.IsZero() {
		query += ` AND doc_date <= ?`
		args = append(args, f.To.UTC().Format(dateLayout))
	}
	if f.Type != "" {
		query += ` AND doc_type = ?`
		args = append(args, f.Type)
	}
	query += ` ORDER BY COALESCE(doc_date, ''), created_at, doc_id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", collection, err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		doc, err := scanDocument(rows, collection)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", collection, err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list %s: %w", collection, err)
	}
	return docs, nil
}

// Create inserts a new document, generating an id when id is empty.
func (s *SQLiteStore) Create(ctx context.Context, userID, collection, id string, body json.RawMessage) (Document, error) {
	if err := checkAddress(userID, collection); err != nil {
		return Document{}, err
	}
	if id == "" {
		id = uuid.NewString()
	}
	rec, err := newRecord(id, body)
	if err != nil {
		return Document{}, err
	}

	now := s.now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (user_id, collection, doc_id, body, doc_date, doc_type, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (user_id, collection, doc_id) DO NOTHING`,
		userID, collection, id, string(rec.body), rec.date, rec.typ,
		now.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano))
	if err != nil {
		return Document{}, fmt.Errorf("create %s/%s: %w", collection, id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return Document{}, fmt.Errorf("%s/%s already exists: %w", collection, id, core.ErrConflict)
	}

	s.notify(ctx, core.OpCreated, userID, collection, id, now)
	return Document{ID: id, Collection: collection, Data: rec.body, CreatedAt: now, UpdatedAt: now}, nil
}

// Update replaces the body of an existing document.
func (s *SQLiteStore) Update(ctx context.Context, userID, collection, id string, body json.RawMessage) (Document, error) {
	if err := checkAddress(userID, collection); err != nil {
		return Document{}, err
	}
	rec, err := newRecord(id, body)
	if err != nil {
		return Document{}, err
	}

	now := s.now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE documents SET body = ?, doc_date = ?, doc_type = ?, updated_at = ?
		 WHERE user_id = ? AND collection = ? AND doc_id = ?`,
		string(rec.body), rec.date, rec.typ, now.Format(time.RFC3339Nano),
		userID, collection, id)
	if err != nil {
		return Document{}, fmt.Errorf("update %s/%s: %w", collection, id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return Document{}, fmt.Errorf("%s/%s: %w", collection, id, core.ErrNotFound)
	}

	s.notify(ctx, core.OpUpdated, userID, collection, id, now)
	return s.Get(ctx, userID, collection, id)
}

// Put creates the document or replaces it when it already exists.
func (s *SQLiteStore) Put(ctx context.Context, userID, collection, id string, body json.RawMessage) (Document, error) {
	if id == "" {
		return s.Create(ctx, userID, collection, "", body)
	}
	doc, err := s.Update(ctx, userID, collection, id, body)
	if errors.Is(err, core.ErrNotFound) {
		return s.Create(ctx, userID, collection, id, body)
	}
	return doc, err
}

func (s *SQLiteStore) Delete(ctx context.Context, userID, collection, id string) error {
	if err := checkAddress(userID, collection); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM documents WHERE user_id = ? AND collection = ? AND doc_id = ?`,
		userID, collection, id)
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", collection, id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%s/%s: %w", collection, id, core.ErrNotFound)
	}

	s.notify(ctx, core.OpDeleted, userID, collection, id, s.now().UTC())
	return nil
}

func (s *SQLiteStore) notify(ctx context.Context, op core.ChangeOp, userID, collection, id string, at time.Time) {
	ev := core.ChangeEvent{Op: op, UserID: userID, Collection: collection, DocID: id, At: at}
	s.broker.Publish(ev)

	if s.publisher == nil {
		return
	}
	// The write is committed; a failed forward is logged, not returned.
	if err := s.publisher.PublishChange(ctx, ev); err != nil {
		s.logger.Warn("Failed to forward document change",
			log.NewFields().
				WithError(err).
				WithUser(userID).
				WithDocument(collection, id).
				WithOperation(string(op)).
				ToSlice()...)
	}
}

func checkAddress(userID, collection string) error {
	if userID == "" {
		return core.InvalidArgument("user id cannot be empty")
	}
	if !ValidCollection(collection) {
		return core.InvalidArgument("unknown collection %q", collection)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(row scanner, collection string) (Document, error) {
	var (
		doc                  Document
		body                 string
		createdAt, updatedAt string
	)
	if err := row.Scan(&doc.ID, &body, &createdAt, &updatedAt); err != nil {
		return Document{}, err
	}
	doc.Collection = collection
	doc.Data = json.RawMessage(body)
	doc.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	doc.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return doc, nil
}

// record is a validated document body plus its indexed columns.
type record struct {
	body json.RawMessage
	date sql.NullString
	typ  sql.NullString
}

// newRecord checks that body is a JSON object, stamps it with id and pulls
// out the indexed "date" and "type" fields.
func newRecord(id string, body json.RawMessage) (record, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil || fields == nil {
		return record{}, core.InvalidArgument("document body must be a JSON object")
	}

	idJSON, err := json.Marshal(id)
	if err != nil {
		return record{}, fmt.Errorf("encode id: %w", err)
	}
	fields["id"] = idJSON

	var rec record
	if raw, ok := fields["date"]; ok && string(raw) != "null" {
		var t time.Time
		if err := json.Unmarshal(raw, &t); err != nil {
			return record{}, core.InvalidArgument("document date: %v", err)
		}
		rec.date = sql.NullString{String: t.UTC().Format(dateLayout), Valid: true}
	}
	if raw, ok := fields["type"]; ok {
		var typ string
		if err := json.Unmarshal(raw, &typ); err == nil && typ != "" {
			rec.typ = sql.NullString{String: typ, Valid: true}
		}
	}

	rec.body, err = json.Marshal(fields)
	if err != nil {
		return record{}, fmt.Errorf("encode document: %w", err)
	}
	return rec, nil
}
