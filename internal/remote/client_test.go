package remote

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/goldrush/internal/gametest"
	"github.com/mesh-intelligence/goldrush/internal/stats"
	"github.com/mesh-intelligence/goldrush/pkg/types"
)

func newTestClient(t *testing.T, w *gametest.World) (*Client, *stats.Recorder) {
	t.Helper()
	srv := httptest.NewServer(w.Handler())
	t.Cleanup(srv.Close)
	rec := stats.NewRecorder(nil)
	return NewClient(Config{BaseURL: srv.URL}, rec), rec
}

func TestBaseURL(t *testing.T) {
	assert.Equal(t, "http://game:8000", BaseURL("game", 8000))
}

func TestClientRoundTrip(t *testing.T) {
	ctx := context.Background()
	w := gametest.NewWorld(types.Area{SizeX: 10, SizeY: 10}, 0)
	w.Place(2, 3, 1, 2)
	c, rec := newTestClient(t, w)

	exp, err := c.Explore(ctx, types.Area{PosX: 0, PosY: 0, SizeX: 5, SizeY: 5})
	require.NoError(t, err)
	assert.Equal(t, 2, exp.Amount)

	lic, err := c.IssueLicense(ctx, nil)
	require.NoError(t, err)
	assert.Positive(t, lic.DigAllowed)

	tokens, err := c.Dig(ctx, types.DigRequest{LicenseID: lic.ID, PosX: 2, PosY: 3, Depth: 1})
	require.NoError(t, err)
	require.Len(t, tokens, 2)

	coins, err := c.Cash(ctx, tokens[0])
	require.NoError(t, err)
	assert.Len(t, coins, 1)

	paid, err := c.IssueLicense(ctx, coins)
	require.NoError(t, err)
	assert.Greater(t, paid.DigAllowed, lic.DigAllowed)

	list, err := c.ListLicenses(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	snap := rec.Snapshot()
	assert.Equal(t, int64(1), snap.Calls[stats.OpExplore].Success)
	assert.Equal(t, int64(1), snap.Calls[stats.OpLicenseFree].Success)
	assert.Equal(t, int64(1), snap.Calls[stats.OpLicensePaid].Success)
	assert.Equal(t, int64(1), snap.Calls[stats.OpLicenseList].Success)
	assert.Equal(t, int64(1), snap.Calls[stats.OpDig].Success)
	assert.Equal(t, int64(1), snap.Calls[stats.OpCash].Success)
}

func TestClientTypedErrors(t *testing.T) {
	ctx := context.Background()
	w := gametest.NewWorld(types.Area{SizeX: 4, SizeY: 4}, 1)
	c, rec := newTestClient(t, w)

	_, err := c.Explore(ctx, types.Area{SizeX: 0, SizeY: 1})
	assert.ErrorIs(t, err, types.ErrFatalRequest)

	_, err = c.Dig(ctx, types.DigRequest{LicenseID: 99, PosX: 1, PosY: 1, Depth: 1})
	assert.ErrorIs(t, err, types.ErrPermitDenied)

	lic, err := c.IssueLicense(ctx, nil)
	require.NoError(t, err)
	_, err = c.IssueLicense(ctx, nil)
	assert.ErrorIs(t, err, types.ErrTooManyLicenses)

	_, err = c.Dig(ctx, types.DigRequest{LicenseID: lic.ID, PosX: 1, PosY: 1, Depth: 1})
	assert.ErrorIs(t, err, types.ErrNotFound)

	_, err = c.Cash(ctx, "unknown")
	assert.True(t, types.Transient(err), "unexpected status is transient: %v", err)

	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusConflict, se.Status)

	snap := rec.Snapshot()
	assert.Equal(t, int64(1), snap.Calls[stats.OpDig].Errors[http.StatusForbidden])
	assert.Equal(t, int64(1), snap.Calls[stats.OpDig].Errors[http.StatusNotFound])
	assert.Equal(t, int64(1), snap.Calls[stats.OpExplore].Errors[http.StatusUnprocessableEntity])
}

func TestClientNotFoundOutsideDigIsTransient(t *testing.T) {
	err := &StatusError{Op: stats.OpCash, Status: http.StatusNotFound}
	assert.True(t, types.Transient(err))
	assert.ErrorIs(t, &StatusError{Op: stats.OpDig, Status: http.StatusNotFound}, types.ErrNotFound)
}

func TestClientTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	rec := stats.NewRecorder(nil)
	c := NewClient(Config{BaseURL: url}, rec)
	_, err := c.Explore(context.Background(), types.Area{SizeX: 1, SizeY: 1})
	require.Error(t, err)
	assert.True(t, types.Transient(err))
	assert.Equal(t, int64(1), rec.Snapshot().Calls[stats.OpExplore].Errors[stats.StatusTransport])
}

func TestClientWireFormat(t *testing.T) {
	var gotType, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		gotType = r.Header.Get("Content-Type")
		gotBody = string(data)
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode([]types.Coin{7, 8})
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL + "/"}, nil)
	coins, err := c.Cash(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, []types.Coin{7, 8}, coins)
	assert.Equal(t, cashContentType, gotType)
	assert.Equal(t, `"abc"`, gotBody)

	_, err = c.IssueLicense(context.Background(), nil)
	require.Error(t, err, "coin array does not decode as a license")
	assert.Equal(t, `[]`, gotBody, "free license posts an empty array")
}

func TestClientRateLimit(t *testing.T) {
	w := gametest.NewWorld(types.Area{SizeX: 4, SizeY: 4}, 0)
	srv := httptest.NewServer(w.Handler())
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, RateLimit: 20}, nil)
	start := time.Now()
	for i := 0; i < 5; i++ {
		_, err := c.Explore(context.Background(), types.Area{SizeX: 1, SizeY: 1})
		require.NoError(t, err)
	}
	assert.GreaterOrEqual(t, time.Since(start), 150*time.Millisecond, "5 calls at 20 rps take at least 4 intervals")
}

func TestClientRateLimitHonorsContext(t *testing.T) {
	c := NewClient(Config{BaseURL: "http://127.0.0.1:1", RateLimit: 0.001}, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	// The first call consumes the only token; the second must wait too long.
	_, _ = c.Explore(ctx, types.Area{SizeX: 1, SizeY: 1})
	_, err := c.Explore(ctx, types.Area{SizeX: 1, SizeY: 1})
	require.Error(t, err)
}
