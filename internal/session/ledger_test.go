package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gameboost/internal/primitive"
	"gameboost/internal/primitive/primitivetest"
)

var ackKey = primitive.RegistryKey{
	Root: primitive.LocalMachine,
	Path: tcpipInterfaces + `\{eth0}`,
	Name: "TcpAckFrequency",
}

func ackTweak(v uint32) Tweak {
	return Tweak{Kind: KindRegistryValue, Feature: FeatureNetwork, Key: ackKey, Value: primitive.DWord(v)}
}

func TestApplyCapturesBeforeMutate(t *testing.T) {
	m := primitivetest.NewMachine("balanced")
	m.SetValue(ackKey, primitive.DWord(0))
	l := NewTweakLedger(m, testOptions()...)

	require.NoError(t, l.Apply(ackTweak(1)))

	e, ok := l.Lookup(KindRegistryValue, ackKey.String())
	require.True(t, ok)
	assert.True(t, e.OriginalPresent)
	assert.Equal(t, primitive.DWord(0), e.Original)
	assert.Equal(t, primitive.DWord(1), e.Applied)

	live, _ := m.Value(ackKey)
	assert.Equal(t, primitive.DWord(1), live)

	history := m.History()
	require.Len(t, history, 2)
	assert.Equal(t, primitive.OpReadValue, history[0].Op)
	assert.Equal(t, primitive.OpWriteValue, history[1].Op)
}

func TestReapplyKeepsOriginal(t *testing.T) {
	m := primitivetest.NewMachine("balanced")
	m.SetValue(ackKey, primitive.DWord(0))
	l := NewTweakLedger(m, testOptions()...)

	require.NoError(t, l.Apply(ackTweak(1)))
	require.NoError(t, l.Apply(ackTweak(2)))

	assert.Equal(t, 1, l.Len())
	assert.Equal(t, 1, m.Calls(primitive.OpReadValue))
	e, _ := l.Lookup(KindRegistryValue, ackKey.String())
	assert.Equal(t, primitive.DWord(0), e.Original)
	assert.Equal(t, primitive.DWord(2), e.Applied)
}

func TestApplyFailureLeavesNoEntry(t *testing.T) {
	tests := []struct {
		name string
		op   primitive.Op
	}{
		{"capture fails", primitive.OpReadValue},
		{"mutate fails", primitive.OpWriteValue},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := primitivetest.NewMachine("balanced")
			m.SetValue(ackKey, primitive.DWord(0))
			m.Fail(tt.op, ackKey.String(), primitive.ReasonAccessDenied)
			l := NewTweakLedger(m, testOptions()...)

			err := l.Apply(ackTweak(1))

			require.Error(t, err)
			assert.Equal(t, primitive.ReasonAccessDenied, primitive.ReasonOf(err))
			assert.Equal(t, 0, l.Len())
			assert.Empty(t, l.Entries())
			live, _ := m.Value(ackKey)
			assert.Equal(t, primitive.DWord(0), live)
		})
	}
}

func TestApplyRetriesTransientOnce(t *testing.T) {
	m := primitivetest.NewMachine("balanced")
	m.FailOnce(primitive.OpWriteValue, ackKey.String(), primitive.ReasonTransient)
	l := NewTweakLedger(m, testOptions()...)

	require.NoError(t, l.Apply(ackTweak(1)))
	assert.Equal(t, 2, m.Calls(primitive.OpWriteValue))
	assert.Equal(t, 1, l.Len())
}

func TestRevertAllRestoresEveryTarget(t *testing.T) {
	m := primitivetest.NewMachine("balanced")
	noDelay := primitive.RegistryKey{Root: primitive.LocalMachine, Path: ackKey.Path, Name: "TcpNoDelay"}
	category := primitive.RegistryKey{Root: primitive.LocalMachine, Path: gamesTask, Name: "Scheduling Category"}
	m.SetValue(ackKey, primitive.DWord(0))
	m.SetValue(category, primitive.String("Medium"))
	l := NewTweakLedger(m, testOptions()...)

	require.NoError(t, l.Apply(ackTweak(1)))
	require.NoError(t, l.Apply(Tweak{Kind: KindRegistryValue, Feature: FeatureNetwork, Key: noDelay, Value: primitive.DWord(1)}))
	require.NoError(t, l.Apply(Tweak{Kind: KindRegistryValue, Feature: FeatureGPUPriority, Key: category, Value: primitive.String("High")}))
	require.NoError(t, l.Apply(powerPlanTweak("high-performance")))
	require.Equal(t, 4, l.Len())

	report := l.RevertAll()

	assert.Len(t, report.Reverted, 4)
	assert.Empty(t, report.Failed)
	assert.Equal(t, 0, l.Len())

	live, ok := m.Value(ackKey)
	assert.True(t, ok)
	assert.Equal(t, primitive.DWord(0), live)
	live, _ = m.Value(category)
	assert.Equal(t, primitive.String("Medium"), live)
	_, ok = m.Value(noDelay)
	assert.False(t, ok, "value absent before apply must be deleted")
	assert.Equal(t, "balanced", m.PowerPlan())

	// Newest first.
	assert.Equal(t, KindPowerPlan, report.Reverted[0].Kind)
	assert.Equal(t, ackKey.String(), report.Reverted[3].Target)
}

func TestRevertAllContinuesPastFailures(t *testing.T) {
	m := primitivetest.NewMachine("balanced")
	other := primitive.RegistryKey{Root: primitive.LocalMachine, Path: graphicsDrivers, Name: "HwSchMode"}
	m.SetValue(ackKey, primitive.DWord(0))
	m.SetValue(other, primitive.DWord(1))
	l := NewTweakLedger(m, testOptions()...)
	require.NoError(t, l.Apply(ackTweak(1)))
	require.NoError(t, l.Apply(Tweak{Kind: KindRegistryValue, Feature: FeatureGPUPriority, Key: other, Value: primitive.DWord(2)}))

	m.Fail(primitive.OpWriteValue, other.String(), primitive.ReasonAccessDenied)
	report := l.RevertAll()

	require.Len(t, report.Failed, 1)
	assert.Equal(t, other.String(), report.Failed[0].Entry.Target)
	require.Len(t, report.Reverted, 1)
	live, _ := m.Value(ackKey)
	assert.Equal(t, primitive.DWord(0), live)
	assert.Equal(t, 0, l.Len(), "ledger is cleared regardless of failures")

	again := l.RevertAll()
	assert.Empty(t, again.Reverted)
	assert.Empty(t, again.Failed)
}

func TestRevertAbsentValueAlreadyGone(t *testing.T) {
	m := primitivetest.NewMachine("balanced")
	l := NewTweakLedger(m, testOptions()...)
	require.NoError(t, l.Apply(ackTweak(1)))

	e, _ := l.Lookup(KindRegistryValue, ackKey.String())
	require.False(t, e.OriginalPresent)

	// Someone else removed the value while the session was active.
	require.NoError(t, m.DeleteValue(ackKey))

	report := l.RevertAll()
	assert.Len(t, report.Reverted, 1)
	assert.Empty(t, report.Failed)
}

func TestApplyUnderMissingKeyFails(t *testing.T) {
	m := primitivetest.NewMachine("balanced")
	m.RemoveKey(ackKey.Root, ackKey.Path)
	l := NewTweakLedger(m, testOptions()...)

	err := l.Apply(ackTweak(1))

	require.Error(t, err)
	assert.True(t, primitive.IsNotFound(err))
	assert.Equal(t, 0, l.Len())
	_, present := m.Value(ackKey)
	assert.False(t, present)
	assert.Empty(t, l.RevertAll().Reverted)
}

func TestRevertKeepsExpandStringType(t *testing.T) {
	key := primitive.RegistryKey{
		Root: primitive.LocalMachine,
		Path: gamesTask,
		Name: "Background Only",
	}
	orig := primitive.ExpandString(`%SystemRoot%\system32`)
	m := primitivetest.NewMachine("balanced")
	m.SetValue(key, orig)
	l := NewTweakLedger(m, testOptions()...)

	require.NoError(t, l.Apply(Tweak{Kind: KindRegistryValue, Feature: FeatureGPUPriority, Key: key, Value: primitive.String("False")}))
	e, _ := l.Lookup(KindRegistryValue, key.String())
	assert.Equal(t, primitive.KindExpandString, e.Original.Kind)

	report := l.RevertAll()
	require.Empty(t, report.Failed)
	live, ok := m.Value(key)
	require.True(t, ok)
	assert.Equal(t, orig, live)
}

func TestPowerPlanLedgerEntry(t *testing.T) {
	m := primitivetest.NewMachine("balanced")
	l := NewTweakLedger(m, testOptions()...)

	require.NoError(t, l.Apply(powerPlanTweak("high-performance")))

	e, ok := l.Lookup(KindPowerPlan, string(KindPowerPlan))
	require.True(t, ok)
	assert.Equal(t, "balanced", e.Original.Text)
	assert.Equal(t, "high-performance", e.Applied.Text)
	assert.Equal(t, "high-performance", m.PowerPlan())
}

func TestApplyUnknownKind(t *testing.T) {
	m := primitivetest.NewMachine("balanced")
	l := NewTweakLedger(m, testOptions()...)

	require.Error(t, l.Apply(Tweak{Kind: "fan-curve"}))
	assert.Empty(t, m.History())
}
