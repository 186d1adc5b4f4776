package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/ShreymShah/breakout-trading-bot/internal/state"
	"github.com/ShreymShah/breakout-trading-bot/pkg/db"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newJournal(t *testing.T) (*Journal, *db.Database) {
	t.Helper()
	database, err := db.New(":memory:")
	require.NoError(t, err)
	require.NoError(t, db.ApplyMigrations(database))
	j := NewJournal(database)
	t.Cleanup(func() {
		_ = j.Close()
		_ = database.Close()
	})
	return j, database
}

func TestJournalIntents(t *testing.T) {
	j, _ := newJournal(t)
	ctx := context.Background()

	id, err := j.RecordIntent(ctx, Intent{
		Date: "2026-10-19", SessionID: 22, SessionName: "London", Side: state.Long,
		Symbol: "/MESZ6", SignalPrice: decimal.RequireFromString("101"),
	})
	require.NoError(t, err)

	pending, err := j.PendingIntents(ctx, "2026-10-19")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, id, pending[0].ID)
	assert.Equal(t, "101", pending[0].SignalPrice)

	require.NoError(t, j.ResolveIntent(ctx, id, db.IntentResolution{Status: db.IntentCommitted, TradeID: "t-1"}))
	pending, err = j.PendingIntents(ctx, "2026-10-19")
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestJournalBatchedEvents(t *testing.T) {
	j, _ := newJournal(t)
	ctx := context.Background()
	now := time.Date(2026, 10, 19, 23, 6, 0, 0, time.UTC)

	trade := state.ActiveTrade{ID: "t-1", Side: state.Short, SessionID: 22, EntryPrice: decimal.RequireFromString("89.5"), OpenedAt: now}
	j.TradeOpened("2026-10-19", trade)
	j.TradeClosed("2026-10-19", trade, "TARGET", decimal.RequireFromString("89.3"), now.Add(time.Minute))
	j.LevelsLoaded("2026-10-19", 22, state.ReferenceLevels{High: decimal.NewFromInt(100), Low: decimal.NewFromInt(90)}, now)

	evs, err := j.TradeEvents(ctx, "2026-10-19")
	require.NoError(t, err)
	require.Len(t, evs, 2)
	assert.Equal(t, db.TradeOpened, evs[0].Kind)
	assert.Equal(t, "89.5", evs[0].Price)
	assert.Equal(t, "TARGET", evs[1].Reason)

	levels, err := j.Levels(ctx, "2026-10-19")
	require.NoError(t, err)
	require.Len(t, levels, 1)
	assert.Equal(t, "90", levels[0].Low)

	m := j.Metrics()
	assert.EqualValues(t, 3, m.TotalWrites)
	assert.Zero(t, m.TotalErrors)
}

func TestBatchWriterFlushesOnSizeAndClose(t *testing.T) {
	database, err := db.New(":memory:")
	require.NoError(t, err)
	defer database.Close()
	require.NoError(t, db.ApplyMigrations(database))

	bw := NewBatchWriter(database.DB, 2, time.Hour)
	args := func(id string) []any {
		return db.TradeEventArgs(db.TradeEvent{TradeID: id, TradingDate: "d", Kind: db.TradeOpened, Side: "LONG", Price: "1", CreatedAt: time.Now()})
	}
	bw.WriteQuery(db.InsertTradeEventSQL, args("a")...)
	assert.Equal(t, 1, bw.Pending())
	bw.WriteQuery(db.InsertTradeEventSQL, args("b")...)
	assert.Equal(t, 0, bw.Pending())

	bw.WriteQuery(db.InsertTradeEventSQL, args("c")...)
	require.NoError(t, bw.Close())
	require.NoError(t, bw.Close())
	bw.WriteQuery(db.InsertTradeEventSQL, args("d")...)

	var n int
	require.NoError(t, database.DB.QueryRow(`SELECT COUNT(*) FROM trade_events`).Scan(&n))
	assert.Equal(t, 4, n)
}

func TestNilJournalIsNoop(t *testing.T) {
	var j *Journal
	id, err := j.RecordIntent(context.Background(), Intent{})
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	j.TradeOpened("d", state.ActiveTrade{})
	assert.NoError(t, j.Close())
}
