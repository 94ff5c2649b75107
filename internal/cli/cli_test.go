package cli

import (
	"bytes"
	"encoding/json"
	"net"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/goldrush/internal/gametest"
	"github.com/mesh-intelligence/goldrush/pkg/types"
)

// isolate runs the test from an empty directory with no config in the
// environment.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("XDG_CONFIG_HOME", dir)
	for _, env := range []string{"GOLDRUSH_CONFIG", "ADDRESS", "PORT", "INSTANCE_ID", "STEP", "PARTS_X", "PARTS_Y", "GRID_SIZE_X", "GRID_SIZE_Y"} {
		t.Setenv(env, "")
		os.Unsetenv(env)
	}
	return dir
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "prospector.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "prospector v"+Version)
	assert.Contains(t, out, modulePath)
}

func TestPartitionsJSON(t *testing.T) {
	dir := isolate(t)
	path := writeConfig(t, dir, "grid_size_x: 10\ngrid_size_y: 6\nparts_x: 2\nparts_y: 1\nstep: 4\n")

	out, err := execute(t, "--config", path, "--json", "partitions")
	require.NoError(t, err)

	var rows []partitionRow
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	assert.Equal(t, []partitionRow{
		{Instance: 0, PosX: 0, PosY: 0, SizeX: 5, SizeY: 6, Cells: 4},
		{Instance: 1, PosX: 5, PosY: 0, SizeX: 5, SizeY: 6, Cells: 4},
	}, rows)
}

func TestPartitionsText(t *testing.T) {
	isolate(t)
	out, err := execute(t, "partitions")
	require.NoError(t, err)
	assert.Contains(t, out, "INSTANCE")
	assert.Contains(t, out, "CELLS")
}

func TestInitWritesConfig(t *testing.T) {
	dir := isolate(t)

	out, err := execute(t, "--address", "10.1.1.1", "init")
	require.NoError(t, err)
	path := filepath.Join(dir, ".goldrush", "config.yaml")
	assert.Contains(t, out, "config written")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "10.1.1.1")

	out, err = execute(t, "init")
	require.NoError(t, err)
	assert.Contains(t, out, "config exists")
}

func TestRunRequiresAddress(t *testing.T) {
	isolate(t)
	_, err := execute(t, "run")
	require.Error(t, err)
	assert.True(t, isUserError(err))
}

func TestEnvFile(t *testing.T) {
	dir := isolate(t)
	env := filepath.Join(dir, "game.env")
	require.NoError(t, os.WriteFile(env, []byte("GRID_SIZE_X=8\nGRID_SIZE_Y=8\nPARTS_X=1\nPARTS_Y=1\nSTEP=8\n"), 0o644))
	t.Cleanup(func() {
		for _, k := range []string{"GRID_SIZE_X", "GRID_SIZE_Y", "PARTS_X", "PARTS_Y", "STEP"} {
			os.Unsetenv(k)
		}
	})

	out, err := execute(t, "--env-file", env, "--json", "partitions")
	require.NoError(t, err)

	var rows []partitionRow
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	assert.Equal(t, []partitionRow{{SizeX: 8, SizeY: 8, Cells: 1}}, rows)
}

// serve starts a game server and returns its host and port.
func serve(t *testing.T, world *gametest.World) (string, string) {
	t.Helper()
	srv := httptest.NewServer(world.Handler())
	t.Cleanup(srv.Close)
	host, port, err := net.SplitHostPort(srv.Listener.Addr().String())
	require.NoError(t, err)
	return host, port
}

func TestRunAgainstServer(t *testing.T) {
	dir := isolate(t)
	grid := types.Area{SizeX: 16, SizeY: 16}
	world := gametest.NewWorld(grid, 0)
	placed := world.Scatter(11, 12)
	host, port := serve(t, world)
	path := writeConfig(t, dir, "grid_size_x: 16\ngrid_size_y: 16\nparts_x: 2\nparts_y: 1\nstep: 4\nstats_interval: 0s\nrate_limit: 0\n")

	out, err := execute(t, "--config", path, "--address", host, "--port", port, "--log-level", "error", "--json", "run", "--all")
	require.NoError(t, err)

	var reports []runReport
	require.NoError(t, json.Unmarshal([]byte(out), &reports))
	require.Len(t, reports, 2)

	cashed := 0
	for _, r := range reports {
		cashed += r.Cashed
		assert.Equal(t, 0, r.Pending)
		assert.Positive(t, r.Calls)
	}
	assert.Equal(t, placed, cashed)
	assert.Equal(t, 0, world.Remaining())
}

func TestRunSingleInstance(t *testing.T) {
	dir := isolate(t)
	world := gametest.NewWorld(types.Area{SizeX: 8, SizeY: 8}, 0)
	world.Place(6, 1, 2, 1)
	world.Place(1, 1, 1, 1)
	host, port := serve(t, world)
	path := writeConfig(t, dir, "grid_size_x: 8\ngrid_size_y: 8\nparts_x: 2\nparts_y: 1\nstep: 4\nstats_interval: 0s\n")

	out, err := execute(t, "--config", path, "--address", host, "--port", port, "--log-level", "error", "--json", "run", "--instance", "1")
	require.NoError(t, err)

	var reports []runReport
	require.NoError(t, json.Unmarshal([]byte(out), &reports))
	require.Len(t, reports, 1)
	assert.Equal(t, 1, reports[0].Instance)
	assert.Equal(t, 1, reports[0].Cashed)
	assert.Equal(t, 2, reports[0].Balance)
	assert.Equal(t, 1, world.Remaining(), "instance 0's treasure is left alone")
}

func TestSurveyAgainstServer(t *testing.T) {
	dir := isolate(t)
	world := gametest.NewWorld(types.Area{SizeX: 4, SizeY: 4}, 0)
	world.Place(0, 0, 1, 1)
	world.Place(3, 3, 1, 2)
	host, port := serve(t, world)
	path := writeConfig(t, dir, "grid_size_x: 4\ngrid_size_y: 4\nparts_x: 1\nparts_y: 1\n")
	p, err := strconv.Atoi(port)
	require.NoError(t, err)

	out, err := execute(t, "--config", path, "--address", host, "--port", strconv.Itoa(p), "--log-level", "error", "--json", "survey", "--batch", "5")
	require.NoError(t, err)

	var report surveyReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, 16, report.Probed)
	assert.Equal(t, 2, report.Hits)
	assert.Equal(t, 3, report.Amount)
	assert.Equal(t, []int{1, 0, 0, 1}, report.Batches)
}
