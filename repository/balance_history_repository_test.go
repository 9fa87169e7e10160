package repository

import (
	"context"
	"testing"
	"time"

	"scrimbet/models"
	"scrimbet/repository/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBalanceHistoryRepository(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)

	repo := NewBalanceHistoryRepository(testDB.DB)
	ctx := context.Background()

	t.Run("record assigns id", func(t *testing.T) {
		history := testutil.CreateTestBalanceHistory(1, models.TransactionTypeWagerBet)
		require.NoError(t, repo.Record(ctx, history))
		assert.NotZero(t, history.ID)
		assert.False(t, history.CreatedAt.IsZero())
	})

	t.Run("newest first with limit", func(t *testing.T) {
		require.NoError(t, repo.Record(ctx, testutil.CreateTestBalanceHistoryWithAmounts(2, 0, 1500, models.TransactionTypeAttendance)))
		require.NoError(t, repo.Record(ctx, testutil.CreateTestBalanceHistoryWithAmounts(2, 1500, 500, models.TransactionTypeMatchBet)))
		require.NoError(t, repo.Record(ctx, testutil.CreateTestBalanceHistoryWithAmounts(2, 500, 2833, models.TransactionTypeMatchPayout)))

		histories, err := repo.GetByUser(ctx, 2, 2)
		require.NoError(t, err)
		require.Len(t, histories, 2)
		assert.Equal(t, models.TransactionTypeMatchPayout, histories[0].TransactionType)
		assert.Equal(t, int64(2333), histories[0].ChangeAmount)
		assert.Equal(t, models.TransactionTypeMatchBet, histories[1].TransactionType)
		assert.Equal(t, true, histories[0].TransactionMetadata["test"])
	})

	t.Run("nil metadata", func(t *testing.T) {
		history := testutil.CreateTestBalanceHistory(3, models.TransactionTypeGrant)
		history.TransactionMetadata = nil
		require.NoError(t, repo.Record(ctx, history))

		histories, err := repo.GetByUser(ctx, 3, 10)
		require.NoError(t, err)
		require.Len(t, histories, 1)
		assert.Nil(t, histories[0].TransactionMetadata)
	})

	t.Run("date range", func(t *testing.T) {
		now := time.Now()
		histories, err := repo.GetByDateRange(ctx, 2, now.Add(-time.Hour), now.Add(time.Hour))
		require.NoError(t, err)
		assert.Len(t, histories, 3)

		histories, err = repo.GetByDateRange(ctx, 2, now.Add(time.Hour), now.Add(2*time.Hour))
		require.NoError(t, err)
		assert.Empty(t, histories)
	})
}
