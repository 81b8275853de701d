// Package windowsapi implements the session primitives on top of Win32 and
// the native NT API. Off Windows every operation fails with
// primitive.ReasonUnsupported so the rest of the tree still builds and tests.
package windowsapi

import (
	"strconv"

	"gameboost/internal/primitive"
)

// Adapter is the live-machine primitive.Adapter. It holds no state; each
// method opens and closes its own handles.
type Adapter struct{}

var (
	_ primitive.Adapter          = Adapter{}
	_ primitive.KeyBrowser       = Adapter{}
	_ primitive.SnapshotProvider = Adapter{}
)

// NewAdapter returns the adapter for the running host.
func NewAdapter() Adapter { return Adapter{} }

func (Adapter) Snapshot() ([]primitive.ProcessInfo, error) { return processSnapshot() }

func (Adapter) Suspend(pid uint32) error        { return suspendProcess(pid) }
func (Adapter) Resume(pid uint32) error         { return resumeProcess(pid) }
func (Adapter) TrimWorkingSet(pid uint32) error { return emptyWorkingSet(pid) }

func (Adapter) ReadValue(key primitive.RegistryKey) (primitive.Value, error) {
	return readValue(key)
}

func (Adapter) WriteValue(key primitive.RegistryKey, v primitive.Value) error {
	return writeValue(key, v)
}

func (Adapter) DeleteValue(key primitive.RegistryKey) error { return deleteValue(key) }

func (Adapter) SubKeys(root primitive.Root, path string) ([]string, error) {
	return subKeys(root, path)
}

func (Adapter) ActivePowerPlan() (string, error) { return activePowerPlan() }
func (Adapter) SetPowerPlan(id string) error     { return setPowerPlan(id) }

func pidTarget(pid uint32) string { return strconv.FormatUint(uint64(pid), 10) }
