//go:build windows

package windowsapi

import (
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/windows/registry"

	"gameboost/internal/primitive"
)

func TestSnapshotContainsCurrentProcess(t *testing.T) {
	procs, err := NewAdapter().Snapshot()
	require.NoError(t, err)
	require.NotEmpty(t, procs)

	pid := uint32(os.Getpid())
	for _, p := range procs {
		if p.PID == pid {
			assert.NotEmpty(t, p.Name)
			assert.True(t, strings.HasSuffix(strings.ToLower(p.Name), ".exe"), "name %q", p.Name)
			return
		}
	}
	t.Fatalf("current PID %d not found in snapshot of %d processes", pid, len(procs))
}

func TestActivePowerPlanIsGUID(t *testing.T) {
	id, err := NewAdapter().ActivePowerPlan()
	if primitive.ReasonOf(err) == primitive.ReasonUnsupported {
		t.Skip("power management API unavailable")
	}
	require.NoError(t, err)
	assert.Len(t, id, 36)
	assert.Equal(t, primitive.NormalizePlanID(id), id)
}

func TestReadMissingValueIsNotFound(t *testing.T) {
	_, err := NewAdapter().ReadValue(primitive.RegistryKey{
		Root: primitive.CurrentUser,
		Path: `Software\gameboost-test-missing`,
		Name: "Nope",
	})
	assert.True(t, primitive.IsNotFound(err), "got %v", err)
}

func TestResumeExitedProcessIsNotFound(t *testing.T) {
	// PIDs are multiples of 4 on Windows; an odd pid never exists.
	err := NewAdapter().Resume(7)
	assert.True(t, primitive.IsNotFound(err), "got %v", err)
}

func TestWriteUnderMissingKeyLeavesNoKey(t *testing.T) {
	key := primitive.RegistryKey{
		Root: primitive.CurrentUser,
		Path: `Software\gameboost-test-missing`,
		Name: "Nope",
	}
	err := NewAdapter().WriteValue(key, primitive.DWord(1))
	assert.True(t, primitive.IsNotFound(err), "got %v", err)

	_, err = registry.OpenKey(registry.CURRENT_USER, key.Path, registry.QUERY_VALUE)
	assert.ErrorIs(t, err, registry.ErrNotExist)
}

func TestExpandStringRoundTrip(t *testing.T) {
	const path = `Software\gameboost-test-expand`
	k, _, err := registry.CreateKey(registry.CURRENT_USER, path, registry.ALL_ACCESS)
	require.NoError(t, err)
	t.Cleanup(func() {
		k.Close()
		_ = registry.DeleteKey(registry.CURRENT_USER, path)
	})
	require.NoError(t, k.SetExpandStringValue("Dir", `%SystemRoot%\system32`))

	a := NewAdapter()
	key := primitive.RegistryKey{Root: primitive.CurrentUser, Path: path, Name: "Dir"}
	v, err := a.ReadValue(key)
	require.NoError(t, err)
	assert.Equal(t, primitive.ExpandString(`%SystemRoot%\system32`), v)

	require.NoError(t, a.WriteValue(key, primitive.String("plain")))
	require.NoError(t, a.WriteValue(key, v))

	_, valType, err := k.GetValue("Dir", nil)
	require.NoError(t, err)
	assert.Equal(t, uint32(registry.EXPAND_SZ), valType)
}
