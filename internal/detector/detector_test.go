package detector

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"vawter.tech/stopper"

	"gameboost/internal/primitive"
	"gameboost/internal/primitive/primitivetest"
	"gameboost/internal/session"
)

func testConfig() session.Config {
	return session.Config{
		Groups: []session.ProcessGroupRule{
			{Name: "launchers", Patterns: []string{"steam.exe"}, Enabled: true},
		},
	}
}

func newFixture(t *testing.T, opts Options) (*primitivetest.Machine, *session.Manager, *Detector) {
	t.Helper()
	m := primitivetest.NewMachine("balanced")
	m.Start(10, "steam.exe")
	mgr := session.New(m, m, session.WithSelfPID(1<<30))
	return m, mgr, New(m, mgr, testConfig, opts)
}

func TestDefaultCatalog(t *testing.T) {
	c := DefaultCatalog()
	require.NotEmpty(t, c.Games())

	running := c.Running([]primitive.ProcessInfo{
		{PID: 1, Name: "CS2.EXE"},
		{PID: 2, Name: "javaw.exe"},
		{PID: 3, Name: "notepad.exe"},
		{PID: 4, Name: "cs2.exe"},
	})
	assert.Equal(t, []string{"Counter-Strike 2", "Minecraft"}, running)
}

func TestParseCatalogErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"malformed", "games: ["},
		{"missing name", "games:\n  - executables: [a.exe]\n"},
		{"no executables", "games:\n  - name: A\n"},
		{"duplicate exe", "games:\n  - name: A\n    executables: [x.exe]\n  - name: B\n    executables: [X.EXE]\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCatalog([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoadCatalog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "games.yaml")
	data := "games:\n  - name: Factorio\n    executables: [factorio.exe]\n"
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	c, err := LoadCatalog(path)
	require.NoError(t, err)
	require.Len(t, c.Games(), 1)

	// A loaded catalog replaces the built-in one.
	m, mgr, d := newFixture(t, Options{Catalog: c})
	m.Start(500, "eldenring.exe")
	d.Poll()
	assert.Equal(t, session.Inactive, mgr.State())

	m.Start(501, "Factorio.exe")
	d.Poll()
	assert.Equal(t, session.Active, mgr.State())
	assert.Equal(t, []string{"Factorio"}, d.Games())

	_, err = LoadCatalog(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestPollActivatesAndDeactivates(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	m, mgr, d := newFixture(t, Options{AutoDeactivate: true, Metrics: metrics})

	d.Poll()
	assert.Equal(t, session.Inactive, mgr.State())

	m.Start(500, "eldenring.exe")
	d.Poll()
	assert.Equal(t, session.Active, mgr.State())
	assert.True(t, d.Owns())
	assert.Equal(t, []string{"Elden Ring"}, d.Games())
	assert.Equal(t, 1, m.SuspendCount(10))

	// A second game does not re-activate.
	m.Start(501, "cs2.exe")
	d.Poll()
	assert.Equal(t, 1, m.Calls(primitive.OpSuspend))

	m.Exit(500)
	d.Poll()
	assert.Equal(t, session.Active, mgr.State(), "one game still running")

	m.Exit(501)
	d.Poll()
	assert.Equal(t, session.Inactive, mgr.State())
	assert.False(t, d.Owns())
	assert.Equal(t, 0, m.SuspendCount(10))

	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.Toggles.WithLabelValues("activate")))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.Toggles.WithLabelValues("deactivate")))
	assert.Equal(t, float64(5), testutil.ToFloat64(metrics.Polls.WithLabelValues("ok")))
}

func TestPollLeavesForeignSessionAlone(t *testing.T) {
	m, mgr, d := newFixture(t, Options{AutoDeactivate: true})

	_, err := mgr.Activate(testConfig())
	require.NoError(t, err)

	m.Start(500, "eldenring.exe")
	d.Poll()
	assert.False(t, d.Owns())

	m.Exit(500)
	d.Poll()
	assert.Equal(t, session.Active, mgr.State(), "session started elsewhere must stay active")
}

func TestPollLeavesReplacedSessionAlone(t *testing.T) {
	m, mgr, d := newFixture(t, Options{AutoDeactivate: true})

	m.Start(500, "eldenring.exe")
	d.Poll()
	require.True(t, d.Owns())

	// The user ends the detector's session and starts their own.
	_, err := mgr.Deactivate()
	require.NoError(t, err)
	user, err := mgr.Activate(testConfig())
	require.NoError(t, err)
	assert.False(t, d.Owns())

	m.Exit(500)
	d.Poll()

	assert.Equal(t, session.Active, mgr.State(), "user session must stay active")
	assert.Equal(t, user.SessionID, mgr.Status().SessionID)
	assert.Equal(t, 1, m.SuspendCount(10))
	assert.False(t, d.Owns())
}

func TestPollWithoutAutoDeactivate(t *testing.T) {
	m, mgr, d := newFixture(t, Options{AutoDeactivate: false})

	m.Start(500, "eldenring.exe")
	d.Poll()
	m.Exit(500)
	d.Poll()

	assert.Equal(t, session.Active, mgr.State())
}

func TestPollSnapshotError(t *testing.T) {
	m, mgr, d := newFixture(t, Options{AutoDeactivate: true})
	m.Start(500, "eldenring.exe")
	m.FailSnapshot(errors.New("boom"))

	d.Poll()

	assert.Equal(t, session.Inactive, mgr.State())
	assert.Empty(t, d.Games())
}

func TestRunStopsWithStopper(t *testing.T) {
	m, mgr, d := newFixture(t, Options{Interval: 10 * time.Millisecond, AutoDeactivate: true})
	m.Start(500, "r5apex.exe")

	sctx := stopper.WithContext(context.Background())
	sctx.Go(d.Run)

	require.Eventually(t, func() bool { return mgr.State() == session.Active }, 2*time.Second, 10*time.Millisecond)

	m.Exit(500)
	require.Eventually(t, func() bool { return mgr.State() == session.Inactive }, 2*time.Second, 10*time.Millisecond)

	sctx.Stop(time.Second)
	require.NoError(t, sctx.Wait())
}
