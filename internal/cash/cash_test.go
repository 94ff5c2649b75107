package cash

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/goldrush/internal/gametest"
	"github.com/mesh-intelligence/goldrush/internal/stats"
	"github.com/mesh-intelligence/goldrush/internal/wallet"
	"github.com/mesh-intelligence/goldrush/pkg/types"
)

// dig finds n treasures at depth in world and returns them.
func dig(t *testing.T, world *gametest.World, x, depth, n int) []types.Treasure {
	t.Helper()
	ctx := context.Background()
	world.Place(x, 0, depth, n)
	lic, err := world.IssueLicense(ctx, nil)
	require.NoError(t, err)
	tokens, err := world.Dig(ctx, types.DigRequest{LicenseID: lic.ID, PosX: x, PosY: 0, Depth: depth})
	require.NoError(t, err)
	out := make([]types.Treasure, len(tokens))
	for i, tok := range tokens {
		out[i] = types.Treasure{Token: tok, Depth: depth}
	}
	return out
}

func start(t *testing.T, q *Queue) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	q.Start(ctx)
	return ctx
}

func TestCashCreditsWallet(t *testing.T) {
	world := gametest.NewWorld(types.Area{SizeX: 4, SizeY: 1}, 0)
	treasures := dig(t, world, 0, 4, 2)
	w := wallet.New()
	rec := stats.NewRecorder(nil)
	log, _ := logtest.NewNullLogger()
	q := New(Config{Concurrency: 2, PrioritizeDepth: true}, world, w, rec, log)
	ctx := start(t, q)

	for _, tr := range treasures {
		q.Submit(tr)
	}
	require.NoError(t, q.Wait(ctx))

	assert.Equal(t, 8, w.Balance(), "one coin per depth level")
	assert.Equal(t, Counts{Produced: 2, Cashed: 2}, q.Counts())
	assert.Equal(t, int64(8), rec.Snapshot().Depths[4].Coins)
	assert.Equal(t, 2, world.Cashed())
}

func TestFailedCashRetriesUntilCredited(t *testing.T) {
	world := gametest.NewWorld(types.Area{SizeX: 4, SizeY: 1}, 0)
	treasures := dig(t, world, 1, 3, 1)
	world.Fail(gametest.OpCash, http.StatusServiceUnavailable)
	w := wallet.New()
	log, _ := logtest.NewNullLogger()
	q := New(Config{Concurrency: 1}, world, w, nil, log)
	ctx := start(t, q)

	q.Submit(treasures[0])
	require.NoError(t, q.Wait(ctx))

	assert.Equal(t, 2, world.Calls(gametest.OpCash))
	assert.Equal(t, 3, w.Balance(), "balance grows by exactly the coins returned")
	assert.Equal(t, Counts{Produced: 1, Cashed: 1}, q.Counts())
}

type slowCasher struct {
	mu      sync.Mutex
	release chan struct{}
	order   []int
}

func (s *slowCasher) Cash(ctx context.Context, token string) ([]types.Coin, error) {
	<-s.release
	s.mu.Lock()
	defer s.mu.Unlock()
	s.order = append(s.order, len(token))
	return []types.Coin{1}, nil
}

func TestDeeperTreasuresFirst(t *testing.T) {
	c := &slowCasher{release: make(chan struct{})}
	close(c.release)
	log, _ := logtest.NewNullLogger()
	q := New(Config{Concurrency: 1, PrioritizeDepth: true}, c, wallet.New(), nil, log)

	// Token length stands in for depth so the casher can see the order.
	q.Submit(types.Treasure{Token: "x", Depth: 1})
	q.Submit(types.Treasure{Token: "xxx", Depth: 3})
	q.Submit(types.Treasure{Token: "xx", Depth: 2})
	assert.Equal(t, Counts{Produced: 3, Pending: 3}, q.Counts())

	ctx := start(t, q)
	require.NoError(t, q.Wait(ctx))

	assert.Equal(t, []int{3, 2, 1}, c.order)
}

func TestCountsConserveTokens(t *testing.T) {
	c := &slowCasher{release: make(chan struct{})}
	log, _ := logtest.NewNullLogger()
	q := New(Config{Concurrency: 3}, c, wallet.New(), nil, log)
	ctx := start(t, q)

	for i := 0; i < 20; i++ {
		q.Submit(types.Treasure{Token: "tok", Depth: 1 + i%10})
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			n := q.Counts()
			assert.Equal(t, n.Produced, n.Cashed+n.Pending)
			if n.Cashed == 20 {
				return
			}
			time.Sleep(time.Millisecond)
		}
	}()
	close(c.release)
	require.NoError(t, q.Wait(ctx))
	<-done
	assert.Equal(t, Counts{Produced: 20, Cashed: 20}, q.Counts())
}
