package wallet

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mesh-intelligence/goldrush/pkg/types"
)

func TestBatchSize(t *testing.T) {
	tests := []struct {
		balance int
		want    int
	}{
		{0, 0},
		{1, 1},
		{5, 1},
		{6, 6},
		{10, 6},
		{11, 11},
		{20, 11},
		{21, 21},
		{500, 21},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, BatchSize(tt.balance), "balance %d", tt.balance)
	}
}

func coins(from, n int) []types.Coin {
	out := make([]types.Coin, n)
	for i := range out {
		out[i] = types.Coin(from + i)
	}
	return out
}

func TestWalletTakeOldestFirst(t *testing.T) {
	w := New()
	w.Credit(coins(1, 3))
	w.Credit(coins(10, 2))

	assert.Equal(t, 5, w.Balance())
	assert.Equal(t, []types.Coin{1, 2}, w.Take(2))
	assert.Equal(t, []types.Coin{3, 10, 11}, w.Take(9), "take is capped by balance")
	assert.Nil(t, w.Take(1))
	assert.Equal(t, Totals{Credited: 5, Spent: 5}, w.Totals())
}

func TestWalletTakeBatch(t *testing.T) {
	w := New()
	assert.Empty(t, w.TakeBatch(), "empty wallet funds a free license")

	w.Credit(coins(0, 30))
	assert.Len(t, w.TakeBatch(), 21)
	assert.Len(t, w.TakeBatch(), 6)
	assert.Len(t, w.TakeBatch(), 1)
	assert.Len(t, w.TakeBatch(), 1)
	assert.Len(t, w.TakeBatch(), 1)
	assert.Empty(t, w.TakeBatch())
	assert.Equal(t, 0, w.Balance())
}

func TestWalletConservationUnderConcurrency(t *testing.T) {
	w := New()
	var wg sync.WaitGroup
	var mu sync.Mutex
	taken := map[types.Coin]int{}

	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			w.Credit(coins(i*100, 50))
		}(i)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				for _, c := range w.TakeBatch() {
					mu.Lock()
					taken[c]++
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()

	tot := w.Totals()
	assert.Equal(t, 400, tot.Credited)
	assert.LessOrEqual(t, tot.Spent, tot.Credited)
	assert.Equal(t, tot.Credited-tot.Spent, w.Balance())
	assert.Len(t, taken, tot.Spent)
	for c, n := range taken {
		assert.Equal(t, 1, n, "coin %d spent twice", c)
	}
}

func TestWalletRefund(t *testing.T) {
	w := New()
	w.Credit(coins(1, 8))
	batch := w.TakeBatch()
	assert.Equal(t, coins(1, 6), batch)

	w.Refund(batch)
	assert.Equal(t, 8, w.Balance())
	assert.Equal(t, Totals{Credited: 8, Spent: 0}, w.Totals())
	assert.Equal(t, coins(1, 6), w.Take(6), "refunded coins go first")
}
