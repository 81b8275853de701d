package primitive

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReasonOf(t *testing.T) {
	base := errors.New("boom")
	tests := []struct {
		name string
		err  error
		want Reason
	}{
		{"nil", nil, ReasonUnknown},
		{"plain error", base, ReasonUnknown},
		{"failure", Fail(OpSuspend, "pid 10", ReasonAccessDenied, base), ReasonAccessDenied},
		{"wrapped failure", fmt.Errorf("outer: %w", Fail(OpResume, "pid 10", ReasonNotFound, nil)), ReasonNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ReasonOf(tt.err))
		})
	}
}

func TestFailureUnwrapAndMessage(t *testing.T) {
	base := errors.New("handle is invalid")
	f := Fail(OpWriteValue, `HKLM\X\Y`, ReasonTransient, base)

	assert.ErrorIs(t, f, base)
	assert.True(t, IsTransient(f))
	assert.False(t, IsNotFound(f))
	assert.Equal(t, `write_value HKLM\X\Y: transient: handle is invalid`, f.Error())
	assert.Equal(t, "set_power_plan x: unsupported", Fail(OpSetPowerPlan, "x", ReasonUnsupported, nil).Error())
}

func TestNormalizePlanID(t *testing.T) {
	assert.Equal(t, HighPerformancePlan, NormalizePlanID("{8C5E7FDA-E8BF-4A96-9A85-A6E23A8C635C}"))
	assert.Equal(t, "balanced", NormalizePlanID(" balanced "))
}

func TestValueString(t *testing.T) {
	assert.Equal(t, "8", DWord(8).String())
	assert.Equal(t, "High", String("High").String())
	assert.Equal(t, `%SystemRoot%\Temp`, ExpandString(`%SystemRoot%\Temp`).String())
	assert.NotEqual(t, String("x"), ExpandString("x"))
	assert.Equal(t, `HKLM\SOFTWARE\Games\GPU Priority`, RegistryKey{Root: LocalMachine, Path: `SOFTWARE\Games`, Name: "GPU Priority"}.String())
}
