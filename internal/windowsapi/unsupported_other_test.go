//go:build !windows

package windowsapi

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"gameboost/internal/primitive"
)

func TestAdapterUnsupportedOffWindows(t *testing.T) {
	a := NewAdapter()

	_, err := a.Snapshot()
	assert.Equal(t, primitive.ReasonUnsupported, primitive.ReasonOf(err))
	assert.Equal(t, primitive.ReasonUnsupported, primitive.ReasonOf(a.Suspend(10)))
	assert.Equal(t, primitive.ReasonUnsupported, primitive.ReasonOf(a.SetPowerPlan(primitive.HighPerformancePlan)))

	_, err = a.ReadValue(primitive.RegistryKey{Root: primitive.LocalMachine, Path: "SOFTWARE", Name: "x"})
	assert.Equal(t, primitive.ReasonUnsupported, primitive.ReasonOf(err))
}
