package memory

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/card-control/models"
	"github.com/upb/card-control/repositories"
)

func seedCard(t *testing.T, repos *repositories.Repositories, id, balance string) {
	t.Helper()
	card := models.NewCard(id, 1, decimal.RequireFromString(balance), "alice")
	require.NoError(t, repos.Cards.Create(context.Background(), card))
}

func TestStore_CardCRUD(t *testing.T) {
	repos := NewStore().Repositories()
	ctx := context.Background()
	seedCard(t, repos, "card-1", "100")

	card, err := repos.Cards.GetByID(ctx, "card-1")
	require.NoError(t, err)
	assert.Equal(t, "alice", card.CreatorID)

	err = repos.Cards.Create(ctx, models.NewCard("card-1", 1, decimal.Zero, "bob"))
	assert.ErrorIs(t, err, repositories.ErrDuplicate)

	_, err = repos.Cards.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, repositories.ErrNotFound)
}

func TestStore_GroupByCard(t *testing.T) {
	repos := NewStore().Repositories()
	ctx := context.Background()
	seedCard(t, repos, "card-1", "100")
	seedCard(t, repos, "card-2", "100")

	for _, c := range []*models.Control{
		models.NewControl("card-1", "MERCH_CAT", "5411"),
		models.NewControl("card-1", "MAX_AMT", "500"),
		models.NewControl("card-1", "MERCH_CAT", "5412"),
		models.NewControl("card-2", "MAX_AMT", "10"),
	} {
		require.NoError(t, repos.Controls.Create(ctx, c))
	}

	grouped, err := repos.Controls.GroupByCard(ctx, "card-1")
	require.NoError(t, err)
	assert.Equal(t, map[string][]string{
		"MERCH_CAT": {"5411", "5412"},
		"MAX_AMT":   {"500"},
	}, grouped)

	n, err := repos.Controls.CountByName(ctx, "card-1", "MERCH_CAT")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	err = repos.Controls.Create(ctx, models.NewControl("missing", "MAX_AMT", "1"))
	assert.ErrorIs(t, err, repositories.ErrNotFound)
}

func TestStore_DeleteCardCascades(t *testing.T) {
	repos := NewStore().Repositories()
	ctx := context.Background()
	seedCard(t, repos, "card-1", "100")
	require.NoError(t, repos.Controls.Create(ctx, models.NewControl("card-1", "MAX_AMT", "500")))

	require.NoError(t, repos.Cards.Delete(ctx, "card-1"))

	controls, err := repos.Controls.ListByCard(ctx, "card-1")
	require.NoError(t, err)
	assert.Empty(t, controls)
}

func TestStore_RollbackUndoesWrites(t *testing.T) {
	repos := NewStore().Repositories()
	ctx := context.Background()
	seedCard(t, repos, "card-1", "100")
	failed := errors.New("boom")

	err := repos.TxManager.InTransaction(ctx, func(ctx context.Context) error {
		card, err := repos.Cards.GetForUpdate(ctx, "card-1")
		require.NoError(t, err)
		require.NoError(t, repos.Cards.UpdateBalance(ctx, card.ID, decimal.NewFromInt(1)))
		require.NoError(t, repos.Transactions.Create(ctx, &models.Transaction{ID: "txn-1", CardID: card.ID}))
		return failed
	})
	require.ErrorIs(t, err, failed)

	card, err := repos.Cards.GetByID(ctx, "card-1")
	require.NoError(t, err)
	assert.True(t, card.Balance.Equal(decimal.NewFromInt(100)))

	_, err = repos.Transactions.GetByID(ctx, "txn-1")
	assert.ErrorIs(t, err, repositories.ErrNotFound)
}

func TestStore_GetForUpdateRequiresTx(t *testing.T) {
	repos := NewStore().Repositories()
	_, err := repos.Cards.GetForUpdate(context.Background(), "card-1")
	assert.ErrorIs(t, err, repositories.ErrNoTx)
}

func TestStore_GetForUpdateSerializesDebits(t *testing.T) {
	repos := NewStore().Repositories()
	seedCard(t, repos, "card-1", "100")
	amount := decimal.NewFromInt(60)
	insufficient := errors.New("insufficient")

	var (
		wg       sync.WaitGroup
		approved atomic.Int32
		start    = make(chan struct{})
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			err := repos.TxManager.InTransaction(context.Background(), func(ctx context.Context) error {
				card, err := repos.Cards.GetForUpdate(ctx, "card-1")
				if err != nil {
					return err
				}
				if !card.CanDebit(amount) {
					return insufficient
				}
				return repos.Cards.UpdateBalance(ctx, card.ID, card.Balance.Sub(amount))
			})
			if err == nil {
				approved.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), approved.Load())
	card, err := repos.Cards.GetByID(context.Background(), "card-1")
	require.NoError(t, err)
	assert.True(t, card.Balance.Equal(decimal.NewFromInt(40)), "balance %s", card.Balance)
}

func TestStore_TransactionRoundTrip(t *testing.T) {
	repos := NewStore().Repositories()
	ctx := context.Background()

	txn := &models.Transaction{ID: "txn-1", CardID: "card-1", Amount: decimal.RequireFromString("12.50")}
	txn.Reject("Failed to comply with control MAX_AMT")
	require.NoError(t, repos.Transactions.Create(ctx, txn))

	got, err := repos.Transactions.GetByID(ctx, "txn-1")
	require.NoError(t, err)
	assert.Equal(t, txn.ID, got.ID)
	assert.Equal(t, txn.CardID, got.CardID)
	assert.True(t, txn.Amount.Equal(got.Amount))
	assert.Equal(t, models.TransactionRejected, got.Status)
	assert.Equal(t, *txn.Reason, *got.Reason)

	assert.ErrorIs(t, repos.Transactions.Create(ctx, txn), repositories.ErrDuplicate)

	list, err := repos.Transactions.ListByCard(ctx, "card-1", 10, 0)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
