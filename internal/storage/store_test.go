package storage

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fintrack/internal/core"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []core.ChangeEvent
	err    error
}

func (p *recordingPublisher) PublishChange(_ context.Context, ev core.ChangeEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func TestRunMigrationsIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "m.db")
	v1, err := RunMigrations(path)
	require.NoError(t, err)
	v2, err := RunMigrations(path)
	require.NoError(t, err)
	assert.Equal(t, uint(1), v1)
	assert.Equal(t, v1, v2)
}

func TestStoreCRUD(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	doc, err := s.Create(ctx, "u1", CollCards, "", json.RawMessage(`{"name":"Visa","closingDay":20}`))
	require.NoError(t, err)
	require.NotEmpty(t, doc.ID)

	got, err := s.Get(ctx, "u1", CollCards, doc.ID)
	require.NoError(t, err)
	var card core.Card
	require.NoError(t, json.Unmarshal(got.Data, &card))
	assert.Equal(t, doc.ID, card.ID, "id is stamped into the body")
	assert.Equal(t, 20, card.ClosingDay)

	_, err = s.Create(ctx, "u1", CollCards, doc.ID, json.RawMessage(`{"name":"Dup"}`))
	assert.ErrorIs(t, err, core.ErrConflict)

	updated, err := s.Update(ctx, "u1", CollCards, doc.ID, json.RawMessage(`{"name":"Visa Gold","closingDay":5}`))
	require.NoError(t, err)
	assert.Contains(t, string(updated.Data), "Visa Gold")

	_, err = s.Update(ctx, "u1", CollCards, "missing", json.RawMessage(`{}`))
	assert.ErrorIs(t, err, core.ErrNotFound)

	// Another user cannot see the document.
	_, err = s.Get(ctx, "u2", CollCards, doc.ID)
	assert.ErrorIs(t, err, core.ErrNotFound)

	require.NoError(t, s.Delete(ctx, "u1", CollCards, doc.ID))
	assert.ErrorIs(t, s.Delete(ctx, "u1", CollCards, doc.ID), core.ErrNotFound)
}

func TestStorePut(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.Put(ctx, "u1", CollSettings, "profile", json.RawMessage(`{"financialStartDay":5}`))
	require.NoError(t, err)
	_, err = s.Put(ctx, "u1", CollSettings, "profile", json.RawMessage(`{"financialStartDay":10}`))
	require.NoError(t, err)

	docs, err := s.List(ctx, "u1", CollSettings, ListFilter{})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Contains(t, string(docs[0].Data), `"financialStartDay":10`)
}

func TestStoreRejectsBadInput(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.Create(ctx, "", CollCards, "", json.RawMessage(`{}`))
	assert.ErrorIs(t, err, core.ErrInvalidArgument)

	_, err = s.Create(ctx, "u1", "secrets", "", json.RawMessage(`{}`))
	assert.ErrorIs(t, err, core.ErrInvalidArgument)

	_, err = s.Create(ctx, "u1", CollCards, "", json.RawMessage(`[1,2]`))
	assert.ErrorIs(t, err, core.ErrInvalidArgument)

	_, err = s.Create(ctx, "u1", CollTransactions, "", json.RawMessage(`{"date":"yesterday"}`))
	assert.ErrorIs(t, err, core.ErrInvalidArgument)
}

func TestStoreListFilters(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	add := func(date, typ string) {
		body, _ := json.Marshal(map[string]string{"date": date, "type": typ, "description": "x"})
		_, err := s.Create(ctx, "u1", CollTransactions, "", body)
		require.NoError(t, err)
	}
	add("2025-07-01T10:00:00Z", "expense")
	add("2025-07-15T23:59:59.999Z", "income")
	add("2025-06-30T23:59:59Z", "expense")
	add("2025-07-16T00:00:00Z", "expense")

	from := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 7, 15, 23, 59, 59, int(999*time.Millisecond), time.UTC)

	docs, err := s.List(ctx, "u1", CollTransactions, ListFilter{From: from, To: to})
	require.NoError(t, err)
	require.Len(t, docs, 2)

	var first struct{ Date time.Time }
	require.NoError(t, json.Unmarshal(docs[0].Data, &first))
	assert.True(t, first.Date.Equal(time.Date(2025, 7, 1, 10, 0, 0, 0, time.UTC)), "ordered by date")

	docs, err = s.List(ctx, "u1", CollTransactions, ListFilter{Type: "expense"})
	require.NoError(t, err)
	assert.Len(t, docs, 3)

	docs, err = s.List(ctx, "u1", CollTransactions, ListFilter{From: from, To: to, Type: "expense"})
	require.NoError(t, err)
	assert.Len(t, docs, 1)
}

func TestStoreSubscribe(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	pub := &recordingPublisher{err: errors.New("broker down")}
	s.SetPublisher(pub)

	cards, cancelCards := s.Subscribe("u1", CollCards)
	all, cancelAll := s.Subscribe("u1", "")
	defer cancelAll()

	doc, err := s.Create(ctx, "u1", CollCards, "c1", json.RawMessage(`{"name":"Visa","closingDay":1}`))
	require.NoError(t, err, "publisher errors do not fail the write")
	_, err = s.Create(ctx, "u2", CollCards, "c1", json.RawMessage(`{"name":"Other","closingDay":1}`))
	require.NoError(t, err)
	_, err = s.Create(ctx, "u1", CollCategories, "food", json.RawMessage(`{"name":"Food"}`))
	require.NoError(t, err)

	ev := <-cards
	assert.Equal(t, core.OpCreated, ev.Op)
	assert.Equal(t, doc.ID, ev.DocID)
	assert.Equal(t, "u1", ev.UserID)

	assert.Equal(t, CollCards, (<-all).Collection)
	assert.Equal(t, CollCategories, (<-all).Collection)

	cancelCards()
	_, ok := <-cards
	assert.False(t, ok, "cancel closes the channel")
	cancelCards()

	require.NoError(t, s.Delete(ctx, "u1", CollCards, "c1"))
	assert.Equal(t, core.OpDeleted, (<-all).Op)

	pub.mu.Lock()
	defer pub.mu.Unlock()
	assert.Len(t, pub.events, 4)
}

func TestBrokerResyncsSlowSubscriber(t *testing.T) {
	b := NewBroker(nil)
	ch, cancel := b.Subscribe("u1", CollCards)
	defer cancel()

	for i := 0; i < subscriberBuffer+5; i++ {
		b.Publish(core.ChangeEvent{Op: core.OpCreated, UserID: "u1", Collection: CollCards})
	}
	require.Len(t, ch, subscriberBuffer)
	for i := 0; i < subscriberBuffer-1; i++ {
		require.Equal(t, core.OpCreated, (<-ch).Op)
	}
	assert.Equal(t, core.OpResync, (<-ch).Op, "dropped events are replaced by one resync")

	// Once drained the subscriber gets regular events again.
	b.Publish(core.ChangeEvent{Op: core.OpUpdated, UserID: "u1", Collection: CollCards})
	require.Len(t, ch, 1)
	assert.Equal(t, core.OpUpdated, (<-ch).Op)

	b.Close()
	_, cancelLate := b.Subscribe("u1", CollCards)
	cancelLate()
}

func TestStoreUsersAndWildcardSubscription(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	everything, cancel := s.Subscribe("", "")
	defer cancel()
	reserves, cancelReserves := s.Subscribe("", CollReserves)
	defer cancelReserves()

	_, err := s.Create(ctx, "bob", CollReserves, "", json.RawMessage(`{"name":"Trip"}`))
	require.NoError(t, err)
	_, err = s.Create(ctx, "alice", CollCards, "", json.RawMessage(`{"name":"Visa","closingDay":3}`))
	require.NoError(t, err)

	assert.Equal(t, "bob", (<-everything).UserID)
	assert.Equal(t, "alice", (<-everything).UserID)
	assert.Equal(t, CollReserves, (<-reserves).Collection)
	assert.Len(t, reserves, 0)

	users, err := s.Users(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, users)
}
