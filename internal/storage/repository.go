package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"fintrack/internal/core"
)

// settingsDocID is the single settings document of each user.
const settingsDocID = "profile"

// Repository reads and writes the typed documents of the finance app.
type Repository struct {
	store DocumentStore
}

func NewRepository(store DocumentStore) *Repository {
	return &Repository{store: store}
}

// Store returns the underlying document store.
func (r *Repository) Store() DocumentStore {
	return r.store
}

// Transactions returns the user's income and expenses dated within p.
func (r *Repository) Transactions(ctx context.Context, userID string, p core.Period) ([]core.Transaction, error) {
	return list[core.Transaction](ctx, r.store, userID, CollTransactions, ListFilter{From: p.Start, To: p.End})
}

// CardExpenses returns every expense charged to cardID.
func (r *Repository) CardExpenses(ctx context.Context, userID, cardID string) ([]core.Transaction, error) {
	txs, err := list[core.Transaction](ctx, r.store, userID, CollTransactions, ListFilter{Type: string(core.Expense)})
	if err != nil {
		return nil, err
	}
	out := txs[:0]
	for _, tx := range txs {
		if tx.CardID == cardID {
			out = append(out, tx)
		}
	}
	return out, nil
}

func (r *Repository) AddTransaction(ctx context.Context, userID string, tx core.Transaction) (core.Transaction, error) {
	if err := tx.Validate(); err != nil {
		return core.Transaction{}, err
	}
	if tx.CardID != "" {
		if _, err := r.Card(ctx, userID, tx.CardID); err != nil {
			return core.Transaction{}, fmt.Errorf("transaction card: %w", err)
		}
	}
	return create(ctx, r.store, userID, CollTransactions, tx.ID, tx)
}

func (r *Repository) Card(ctx context.Context, userID, id string) (core.Card, error) {
	return get[core.Card](ctx, r.store, userID, CollCards, id)
}

func (r *Repository) Cards(ctx context.Context, userID string) ([]core.Card, error) {
	return list[core.Card](ctx, r.store, userID, CollCards, ListFilter{})
}

func (r *Repository) SaveCard(ctx context.Context, userID string, c core.Card) (core.Card, error) {
	if err := c.Validate(); err != nil {
		return core.Card{}, err
	}
	return put(ctx, r.store, userID, CollCards, c.ID, c)
}

func (r *Repository) Reserve(ctx context.Context, userID, id string) (core.Reserve, error) {
	return get[core.Reserve](ctx, r.store, userID, CollReserves, id)
}

func (r *Repository) Reserves(ctx context.Context, userID string) ([]core.Reserve, error) {
	return list[core.Reserve](ctx, r.store, userID, CollReserves, ListFilter{})
}

func (r *Repository) SaveReserve(ctx context.Context, userID string, res core.Reserve) (core.Reserve, error) {
	if err := res.Validate(); err != nil {
		return core.Reserve{}, err
	}
	return put(ctx, r.store, userID, CollReserves, res.ID, res)
}

// ReserveTransactions returns the ledger of one reserve ordered by date.
func (r *Repository) ReserveTransactions(ctx context.Context, userID, reserveID string) ([]core.ReserveTransaction, error) {
	txs, err := list[core.ReserveTransaction](ctx, r.store, userID, CollReserveTransactions, ListFilter{})
	if err != nil {
		return nil, err
	}
	out := txs[:0]
	for _, tx := range txs {
		if tx.ReserveID == reserveID {
			out = append(out, tx)
		}
	}
	return out, nil
}

func (r *Repository) AddReserveTransaction(ctx context.Context, userID string, tx core.ReserveTransaction) (core.ReserveTransaction, error) {
	if err := tx.Validate(); err != nil {
		return core.ReserveTransaction{}, err
	}
	if _, err := r.Reserve(ctx, userID, tx.ReserveID); err != nil {
		return core.ReserveTransaction{}, fmt.Errorf("reserve transaction: %w", err)
	}
	return create(ctx, r.store, userID, CollReserveTransactions, tx.ID, tx)
}

func (r *Repository) Categories(ctx context.Context, userID string) ([]core.Category, error) {
	return list[core.Category](ctx, r.store, userID, CollCategories, ListFilter{})
}

func (r *Repository) SaveCategory(ctx context.Context, userID string, c core.Category) (core.Category, error) {
	if err := c.Validate(); err != nil {
		return core.Category{}, err
	}
	return put(ctx, r.store, userID, CollCategories, c.ID, c)
}

// Partnership returns the user's partnership, or nil when there is none.
func (r *Repository) Partnership(ctx context.Context, userID string) (*core.Partnership, error) {
	ps, err := list[core.Partnership](ctx, r.store, userID, CollPartnerships, ListFilter{})
	if err != nil || len(ps) == 0 {
		return nil, err
	}
	return &ps[0], nil
}

func (r *Repository) SavePartnership(ctx context.Context, userID string, p core.Partnership) (core.Partnership, error) {
	if err := p.Validate(userID); err != nil {
		return core.Partnership{}, err
	}
	return put(ctx, r.store, userID, CollPartnerships, p.ID, p)
}

// Settings returns the user's settings. ok is false when the user never
// saved any.
func (r *Repository) Settings(ctx context.Context, userID string) (s core.Settings, ok bool, err error) {
	s, err = get[core.Settings](ctx, r.store, userID, CollSettings, settingsDocID)
	if errors.Is(err, core.ErrNotFound) {
		return core.Settings{}, false, nil
	}
	if err != nil {
		return core.Settings{}, false, err
	}
	return s, true, nil
}

func (r *Repository) SaveSettings(ctx context.Context, userID string, s core.Settings) (core.Settings, error) {
	if err := s.Validate(); err != nil {
		return core.Settings{}, err
	}
	return put(ctx, r.store, userID, CollSettings, settingsDocID, s)
}

func decode[T any](doc Document) (T, error) {
	var v T
	if err := json.Unmarshal(doc.Data, &v); err != nil {
		return v, fmt.Errorf("decode %s/%s: %w", doc.Collection, doc.ID, err)
	}
	return v, nil
}

func get[T any](ctx context.Context, s DocumentStore, userID, collection, id string) (T, error) {
	doc, err := s.Get(ctx, userID, collection, id)
	if err != nil {
		var zero T
		return zero, err
	}
	return decode[T](doc)
}

func list[T any](ctx context.Context, s DocumentStore, userID, collection string, f ListFilter) ([]T, error) {
	docs, err := s.List(ctx, userID, collection, f)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(docs))
	for _, doc := range docs {
		v, err := decode[T](doc)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func create[T any](ctx context.Context, s DocumentStore, userID, collection, id string, v T) (T, error) {
	return write(ctx, s.Create, userID, collection, id, v)
}

func put[T any](ctx context.Context, s DocumentStore, userID, collection, id string, v T) (T, error) {
	return write(ctx, s.Put, userID, collection, id, v)
}

type writeFunc func(ctx context.Context, userID, collection, id string, body json.RawMessage) (Document, error)

func write[T any](ctx context.Context, fn writeFunc, userID, collection, id string, v T) (T, error) {
	var zero T
	body, err := json.Marshal(v)
	if err != nil {
		return zero, fmt.Errorf("encode %s: %w", collection, err)
	}
	doc, err := fn(ctx, userID, collection, id, body)
	if err != nil {
		return zero, err
	}
	return decode[T](doc)
}
