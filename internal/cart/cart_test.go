package cart

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tekkistudio/sales-orchestrator/internal/core"
	"github.com/tekkistudio/sales-orchestrator/internal/model"
	"github.com/tekkistudio/sales-orchestrator/internal/store/storetest"
	"github.com/tekkistudio/sales-orchestrator/pkg/logger"
)

func newService(t *testing.T) (*Service, *storetest.Fake) {
	t.Helper()
	log, err := logger.New("error")
	require.NoError(t, err)
	st := storetest.New()
	return NewService(st, log), st
}

func checkInvariant(t *testing.T, sum *model.CartSummary) {
	t.Helper()
	var lines int64
	for _, item := range sum.Items {
		lines += item.LineTotal()
	}
	assert.Equal(t, lines+sum.DeliveryCost, sum.Total,
		"total must equal line totals plus delivery")
}

func TestAddItemMergesDuplicateProducts(t *testing.T) {
	s, _ := newService(t)
	ctx := context.Background()

	_, err := s.AddItem(ctx, "s1", "A", "Jeu A", 2, 14000)
	require.NoError(t, err)
	sum, err := s.AddItem(ctx, "s1", "A", "Jeu A", 1, 14000)
	require.NoError(t, err)

	require.Len(t, sum.Items, 1, "same product must merge into one line")
	assert.Equal(t, 3, sum.Items[0].Quantity)
	assert.Equal(t, int64(42000), sum.Total)
	checkInvariant(t, sum)
}

func TestSetQuantityZeroRemovesLine(t *testing.T) {
	s, _ := newService(t)
	ctx := context.Background()

	_, err := s.AddItem(ctx, "s1", "A", "Jeu A", 2, 14000)
	require.NoError(t, err)
	_, err = s.AddItem(ctx, "s1", "B", "Jeu B", 1, 9000)
	require.NoError(t, err)

	sum, err := s.SetQuantity(ctx, "s1", "A", 0)
	require.NoError(t, err)

	for _, item := range sum.Items {
		assert.NotEqual(t, "A", item.ProductID, "zero-quantity line must be absent")
	}
	require.Len(t, sum.Items, 1)
	checkInvariant(t, sum)

	// Removing an already-absent line is a no-op.
	again, err := s.SetQuantity(ctx, "s1", "A", 0)
	require.NoError(t, err)
	assert.Len(t, again.Items, 1)
}

func TestNegativeQuantityIsRejectedWithoutMutation(t *testing.T) {
	s, _ := newService(t)
	ctx := context.Background()

	_, err := s.AddItem(ctx, "s1", "A", "Jeu A", -1, 14000)
	assert.ErrorIs(t, err, core.ErrValidation)

	sum := s.Summary(ctx, "s1")
	assert.Empty(t, sum.Items)
	assert.Zero(t, sum.Total)
}

func TestTotalInvariantHoldsAfterEveryMutation(t *testing.T) {
	s, _ := newService(t)
	ctx := context.Background()

	sum, err := s.AddItem(ctx, "s1", "A", "Jeu A", 2, 14000)
	require.NoError(t, err)
	checkInvariant(t, sum)

	sum, err = s.SetDeliveryCost(ctx, "s1", 2500)
	require.NoError(t, err)
	checkInvariant(t, sum)
	assert.Equal(t, int64(28000+2500), sum.Total)

	sum, err = s.SetQuantity(ctx, "s1", "A", 5)
	require.NoError(t, err)
	checkInvariant(t, sum)
	assert.Equal(t, int64(5*14000+2500), sum.Total)
}

func TestMutationsAreWrittenThrough(t *testing.T) {
	s, st := newService(t)
	ctx := context.Background()

	_, err := s.AddItem(ctx, "s1", "A", "Jeu A", 2, 14000)
	require.NoError(t, err)

	persisted, err := st.GetCart(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, int64(28000), persisted.Total)
}

func TestCartSurvivesReloadFromStore(t *testing.T) {
	log, err := logger.New("error")
	require.NoError(t, err)
	st := storetest.New()
	ctx := context.Background()

	first := NewService(st, log)
	_, err = first.AddItem(ctx, "s1", "A", "Jeu A", 3, 14000)
	require.NoError(t, err)

	// Fresh service simulates a process restart.
	second := NewService(st, log)
	sum := second.Summary(ctx, "s1")

	require.Len(t, sum.Items, 1)
	assert.Equal(t, 3, sum.Items[0].Quantity)
	assert.Equal(t, int64(42000), sum.Total)
}

func TestEvictDropsMemoryButKeepsPersistedCart(t *testing.T) {
	s, st := newService(t)
	ctx := context.Background()

	_, err := s.AddItem(ctx, "s1", "A", "Jeu A", 2, 14000)
	require.NoError(t, err)

	s.Evict("s1")
	assert.Empty(t, s.carts, "eviction releases the in-memory copy")

	persisted, err := st.GetCart(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, int64(28000), persisted.Total)

	// The next access rehydrates from the store with the total intact.
	sum := s.Summary(ctx, "s1")
	require.Len(t, sum.Items, 1)
	assert.Equal(t, int64(28000), sum.Total)
	checkInvariant(t, sum)
}

func TestClearEmptiesCart(t *testing.T) {
	s, st := newService(t)
	ctx := context.Background()

	_, err := s.AddItem(ctx, "s1", "A", "Jeu A", 1, 14000)
	require.NoError(t, err)
	require.NoError(t, s.Clear(ctx, "s1"))

	sum := s.Summary(ctx, "s1")
	assert.Empty(t, sum.Items)

	_, err = st.GetCart(ctx, "s1")
	assert.ErrorIs(t, err, core.ErrNotFound)
}
