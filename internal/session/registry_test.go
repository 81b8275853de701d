package session

import (
	"fmt"
	"sync"
	"testing"

	"github.com/phuslu/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gameboost/internal/maps"
	"gameboost/internal/primitive"
	"gameboost/internal/primitive/primitivetest"
)

// testSelfPID is far above any pid the fake machine uses.
const testSelfPID = 1 << 30

func quietLogger() *log.Logger {
	return &log.Logger{Level: log.PanicLevel}
}

func testOptions(extra ...Option) []Option {
	return append([]Option{WithLogger(quietLogger()), WithSelfPID(testSelfPID)}, extra...)
}

func snapshotOf(t *testing.T, m *primitivetest.Machine) []primitive.ProcessInfo {
	t.Helper()
	snap, err := m.Snapshot()
	require.NoError(t, err)
	return snap
}

func TestSuspendGroupMatchesCaseInsensitively(t *testing.T) {
	m := primitivetest.NewMachine("balanced")
	m.Start(100, "Chrome.exe")
	m.Start(101, "chrome.exe")
	m.Start(102, "notepad.exe")

	r := NewSuspensionRegistry(m, testOptions()...)
	rule := ProcessGroupRule{Name: "browsers", Patterns: []string{"CHROME.EXE"}, Enabled: true}

	report := r.SuspendGroup(rule, snapshotOf(t, m))

	require.Len(t, report.Suspended, 2)
	assert.Empty(t, report.Skipped)
	assert.Equal(t, uint32(100), report.Suspended[0].PID)
	assert.Equal(t, "browsers", report.Suspended[0].Group)
	assert.False(t, report.Suspended[0].SuspendedAt.IsZero())
	assert.Equal(t, 1, m.SuspendCount(100))
	assert.Equal(t, 1, m.SuspendCount(101))
	assert.Equal(t, 0, m.SuspendCount(102))
	assert.Equal(t, 2, r.Len())
}

func TestSuspendGroupTwiceSuspendsOnce(t *testing.T) {
	m := primitivetest.NewMachine("balanced")
	m.Start(100, "game.exe")
	r := NewSuspensionRegistry(m, testOptions()...)
	rule := ProcessGroupRule{Name: "R", Patterns: []string{"game.exe"}, Enabled: true}
	snap := snapshotOf(t, m)

	first := r.SuspendGroup(rule, snap)
	second := r.SuspendGroup(rule, snap)

	assert.Len(t, first.Suspended, 1)
	assert.Empty(t, second.Suspended)
	assert.Empty(t, second.Skipped)
	assert.Equal(t, 1, m.SuspendCount(100))
	assert.Equal(t, 1, m.Calls(primitive.OpSuspend))
	assert.Equal(t, 1, r.Len())
}

func TestOverlappingGroupsClaimPIDOnce(t *testing.T) {
	for _, backend := range maps.Backends() {
		for _, workers := range []int{1, 16} {
			t.Run(fmt.Sprintf("%s/concurrency=%d", backend, workers), func(t *testing.T) {
				m := primitivetest.NewMachine("balanced")
				for pid := uint32(100); pid < 150; pid++ {
					m.Start(pid, "helper.exe")
				}
				r := NewSuspensionRegistry(m, testOptions(WithConcurrency(workers), WithRegistryMap(backend))...)
				snap := snapshotOf(t, m)

				var wg sync.WaitGroup
				for _, name := range []string{"a", "b", "c", "d"} {
					wg.Add(1)
					go func() {
						defer wg.Done()
						r.SuspendGroup(ProcessGroupRule{Name: name, Patterns: []string{"helper.exe"}, Enabled: true}, snap)
					}()
				}
				wg.Wait()

				assert.Equal(t, 50, r.Len())
				assert.Len(t, r.Records(), 50)
				assert.Equal(t, 50, m.Calls(primitive.OpSuspend))
				for pid := uint32(100); pid < 150; pid++ {
					assert.Equal(t, 1, m.SuspendCount(pid), "pid %d", pid)
				}

				resumed := r.ResumeAll()
				assert.Len(t, resumed.Resumed, 50)
				assert.Equal(t, 0, r.Len())
				assert.Empty(t, r.Records())
				for pid := uint32(100); pid < 150; pid++ {
					assert.Equal(t, 0, m.SuspendCount(pid), "pid %d left suspended", pid)
				}
			})
		}
	}
}

func TestSuspendGroupSkipsProtectedPIDs(t *testing.T) {
	m := primitivetest.NewMachine("balanced")
	m.Start(4, "svchost.exe")
	m.Start(200, "svchost.exe")
	m.Start(testSelfPID, "svchost.exe")
	r := NewSuspensionRegistry(m, testOptions()...)

	report := r.SuspendGroup(ProcessGroupRule{Name: "bg", Patterns: []string{"svchost.exe"}}, snapshotOf(t, m))

	require.Len(t, report.Suspended, 1)
	assert.Equal(t, uint32(200), report.Suspended[0].PID)
	assert.Equal(t, 0, m.SuspendCount(4))
	assert.Equal(t, 0, m.SuspendCount(testSelfPID))
}

func TestSuspendFailureIsSkippedAndUnclaimed(t *testing.T) {
	m := primitivetest.NewMachine("balanced")
	m.Start(100, "game.exe")
	m.Start(101, "game.exe")
	m.Fail(primitive.OpSuspend, primitivetest.PIDTarget(101), primitive.ReasonAccessDenied)
	r := NewSuspensionRegistry(m, testOptions()...)
	rule := ProcessGroupRule{Name: "R", Patterns: []string{"game.exe"}}

	report := r.SuspendGroup(rule, snapshotOf(t, m))

	require.Len(t, report.Skipped, 1)
	assert.Equal(t, uint32(101), report.Skipped[0].PID)
	assert.Equal(t, primitive.ReasonAccessDenied, report.Skipped[0].Reason)
	assert.False(t, r.Holds(101))
	assert.True(t, r.Holds(100))

	// A later pass may retry a pid that was not held.
	m.ClearFailures()
	again := r.SuspendGroup(rule, snapshotOf(t, m))
	require.Len(t, again.Suspended, 1)
	assert.Equal(t, uint32(101), again.Suspended[0].PID)
}

func TestSuspendRetriesTransientOnce(t *testing.T) {
	m := primitivetest.NewMachine("balanced")
	m.Start(100, "game.exe")
	m.Start(101, "game.exe")
	m.FailOnce(primitive.OpSuspend, primitivetest.PIDTarget(100), primitive.ReasonTransient)
	m.Fail(primitive.OpSuspend, primitivetest.PIDTarget(101), primitive.ReasonTransient)
	r := NewSuspensionRegistry(m, testOptions()...)

	report := r.SuspendGroup(ProcessGroupRule{Name: "R", Patterns: []string{"game.exe"}}, snapshotOf(t, m))

	require.Len(t, report.Suspended, 1)
	assert.Equal(t, uint32(100), report.Suspended[0].PID)
	require.Len(t, report.Skipped, 1)
	assert.Equal(t, primitive.ReasonTransient, report.Skipped[0].Reason)
	// One retry each, never more.
	assert.Equal(t, 4, m.Calls(primitive.OpSuspend))
}

func TestResumeGroupIsIdempotent(t *testing.T) {
	m := primitivetest.NewMachine("balanced")
	m.Start(100, "game.exe")
	m.Start(200, "steam.exe")
	r := NewSuspensionRegistry(m, testOptions()...)
	snap := snapshotOf(t, m)
	r.SuspendGroup(ProcessGroupRule{Name: "R", Patterns: []string{"game.exe"}}, snap)
	r.SuspendGroup(ProcessGroupRule{Name: "launchers", Patterns: []string{"steam.exe"}}, snap)

	first := r.ResumeGroup("R")
	second := r.ResumeGroup("R")

	require.Len(t, first.Resumed, 1)
	assert.Empty(t, first.Failed)
	assert.Empty(t, second.Resumed)
	assert.Empty(t, second.Failed)
	assert.Equal(t, 0, m.SuspendCount(100))
	assert.Equal(t, 1, m.Calls(primitive.OpResume))

	// The other group is untouched.
	assert.Equal(t, 1, m.SuspendCount(200))
	assert.True(t, r.Holds(200))
	assert.Equal(t, 1, r.Len())
}

func TestResumeExitedProcessCountsAsResumed(t *testing.T) {
	m := primitivetest.NewMachine("balanced")
	m.Start(100, "game.exe")
	m.Start(101, "game.exe")
	r := NewSuspensionRegistry(m, testOptions()...)
	r.SuspendGroup(ProcessGroupRule{Name: "R", Patterns: []string{"game.exe"}}, snapshotOf(t, m))

	m.Exit(100)
	report := r.ResumeAll()

	assert.Len(t, report.Resumed, 2)
	assert.Empty(t, report.Failed)
	assert.Equal(t, 0, r.Len())
	assert.Empty(t, r.Records())
}

func TestResumeFailureStillDropsRecord(t *testing.T) {
	m := primitivetest.NewMachine("balanced")
	m.Start(100, "game.exe")
	r := NewSuspensionRegistry(m, testOptions()...)
	r.SuspendGroup(ProcessGroupRule{Name: "R", Patterns: []string{"game.exe"}}, snapshotOf(t, m))
	m.Fail(primitive.OpResume, primitivetest.PIDTarget(100), primitive.ReasonAccessDenied)

	report := r.ResumeAll()

	require.Len(t, report.Failed, 1)
	assert.Equal(t, uint32(100), report.Failed[0].Record.PID)
	assert.Equal(t, primitive.ReasonAccessDenied, primitive.ReasonOf(report.Failed[0].Err))
	assert.False(t, r.Holds(100))
	assert.Equal(t, 0, r.Len())
}
