package trades

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vadiminshakov/solsniper/internal/domain"
)

func newTestStore(t *testing.T) *WALStore {
	t.Helper()
	store, err := NewWALStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestWALStore_SaveAndReadBack(t *testing.T) {
	store := newTestStore(t)

	buy := domain.TradeRecord{
		ID:           "pos-1",
		Mint:         "mint-1",
		Side:         domain.SideBuy,
		PriceSol:     decimal.NewFromFloat(0.001),
		AmountTokens: decimal.NewFromInt(500),
		Timestamp:    time.Now().UTC().Truncate(time.Second),
	}
	sell := domain.TradeRecord{
		ID:           "pos-1",
		Mint:         "mint-1",
		Side:         domain.SideSell,
		PriceSol:     decimal.NewFromFloat(0.002),
		AmountTokens: decimal.NewFromInt(250),
		Timestamp:    time.Now().UTC().Truncate(time.Second),
		Reason:       domain.ReasonTakeProfit1,
	}

	require.NoError(t, store.Save(buy))
	require.NoError(t, store.Save(sell))

	records, err := store.RecordsAfter(0)
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, domain.SideBuy, records[0].Side)
	assert.True(t, records[0].PriceSol.Equal(buy.PriceSol))
	assert.Equal(t, domain.SideSell, records[1].Side)
	assert.Equal(t, domain.ReasonTakeProfit1, records[1].Reason)
}

func TestWALStore_RecordsAfterSkipsOldEntries(t *testing.T) {
	store := newTestStore(t)

	for i := 0; i < 3; i++ {
		require.NoError(t, store.Save(domain.TradeRecord{
			ID:           "pos",
			Mint:         "mint",
			Side:         domain.SideBuy,
			PriceSol:     decimal.NewFromInt(int64(i + 1)),
			AmountTokens: decimal.NewFromInt(1),
			Timestamp:    time.Now(),
		}))
	}

	records, err := store.RecordsAfter(2)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.True(t, records[0].PriceSol.Equal(decimal.NewFromInt(3)))

	records, err = store.RecordsAfter(store.CurrentIndex())
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestWALStore_RejectsRecordWithoutMint(t *testing.T) {
	store := newTestStore(t)

	err := store.Save(domain.TradeRecord{ID: "pos", Side: domain.SideBuy})
	assert.Error(t, err)
}
