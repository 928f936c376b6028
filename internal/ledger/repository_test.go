package ledger_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fintrack/fintrack/internal/ledger"
)

func TestInMemoryRepository_ListTransactionsInRange(t *testing.T) {
	ctx := context.Background()
	repo := ledger.NewInMemoryRepository()
	base := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		require.NoError(t, repo.AddTransaction(ctx, &ledger.Transaction{
			ID:     "tx" + string(rune('a'+i)),
			UserID: "usr_1",
			Date:   base.AddDate(0, 0, -10*i),
		}))
	}
	require.NoError(t, repo.AddTransaction(ctx, &ledger.Transaction{ID: "other", UserID: "usr_2", Date: base}))

	all, err := repo.ListTransactions(ctx, "usr_1", ledger.Range{})
	require.NoError(t, err)
	require.Len(t, all, 5)
	assert.Equal(t, "txa", all[0].ID, "newest first")

	recent, err := repo.ListTransactions(ctx, "usr_1", ledger.Range{From: base.AddDate(0, 0, -20)})
	require.NoError(t, err)
	assert.Len(t, recent, 3)

	require.NoError(t, repo.DeleteUserData(ctx, "usr_1"))
	all, err = repo.ListTransactions(ctx, "usr_1", ledger.Range{})
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestInMemoryRepository_ListCategoriesSorted(t *testing.T) {
	ctx := context.Background()
	repo := ledger.NewInMemoryRepository()
	require.NoError(t, repo.AddCategory(ctx, &ledger.Category{ID: "c2", UserID: "usr_1", Name: "Rent"}))
	require.NoError(t, repo.AddCategory(ctx, &ledger.Category{ID: "c1", UserID: "usr_1", Name: "Groceries"}))

	cats, err := repo.ListCategories(ctx, "usr_1")
	require.NoError(t, err)
	require.Len(t, cats, 2)
	assert.Equal(t, "Groceries", cats[0].Name)
}

func TestTransaction_Amount(t *testing.T) {
	assert.Equal(t, "12.05", ledger.Transaction{AmountCents: 1205}.Amount())
	assert.Equal(t, "-0.99", ledger.Transaction{AmountCents: -99}.Amount())
	assert.Equal(t, "0.00", ledger.Transaction{}.Amount())
}
