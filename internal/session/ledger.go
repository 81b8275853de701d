package session

import (
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/phuslu/log"

	"gameboost/internal/primitive"
)

// TweakKind selects how a tweak is captured, applied and restored.
type TweakKind string

const (
	KindPowerPlan     TweakKind = "power-plan"
	KindRegistryValue TweakKind = "registry-key"
)

// Tweak is one reversible change request. Key is only meaningful for
// registry tweaks.
type Tweak struct {
	Kind    TweakKind
	Feature Feature
	Key     primitive.RegistryKey
	Value   primitive.Value
}

// Target identifies what the tweak mutates. The power plan is a single
// machine-wide target.
func (t Tweak) Target() string {
	if t.Kind == KindPowerPlan {
		return string(KindPowerPlan)
	}
	return t.Key.String()
}

// LedgerEntry records the value a target had before this session first
// changed it.
type LedgerEntry struct {
	Kind    TweakKind             `json:"kind"`
	Feature Feature               `json:"feature"`
	Target  string                `json:"target"`
	Key     primitive.RegistryKey `json:"-"`

	// Original is meaningless when OriginalPresent is false: the value did
	// not exist and is deleted on revert.
	Original        primitive.Value `json:"original"`
	OriginalPresent bool            `json:"original_present"`
	Applied         primitive.Value `json:"applied"`
	AppliedAt       time.Time       `json:"applied_at"`
}

// RevertFailure is a ledger entry whose restore call failed.
type RevertFailure struct {
	Entry LedgerEntry
	Err   error
}

// RevertReport is the outcome of RevertAll.
type RevertReport struct {
	Reverted []LedgerEntry
	Failed   []RevertFailure
}

type kindOps struct {
	capture func(a primitive.Adapter, t Tweak) (orig primitive.Value, present bool, err error)
	mutate  func(a primitive.Adapter, t Tweak) error
	restore func(a primitive.Adapter, e LedgerEntry) error
}

var kindTable = map[TweakKind]kindOps{
	KindPowerPlan: {
		capture: func(a primitive.Adapter, _ Tweak) (primitive.Value, bool, error) {
			id, err := retryValue(a.ActivePowerPlan)
			if err != nil {
				return primitive.Value{}, false, err
			}
			return primitive.String(id), true, nil
		},
		mutate: func(a primitive.Adapter, t Tweak) error {
			return retry(func() error { return a.SetPowerPlan(t.Value.Text) })
		},
		restore: func(a primitive.Adapter, e LedgerEntry) error {
			return retry(func() error { return a.SetPowerPlan(e.Original.Text) })
		},
	},
	KindRegistryValue: {
		capture: func(a primitive.Adapter, t Tweak) (primitive.Value, bool, error) {
			v, err := retryValue(func() (primitive.Value, error) { return a.ReadValue(t.Key) })
			switch {
			case err == nil:
				return v, true, nil
			case primitive.IsNotFound(err):
				return primitive.Value{}, false, nil
			default:
				return primitive.Value{}, false, err
			}
		},
		mutate: func(a primitive.Adapter, t Tweak) error {
			return retry(func() error { return a.WriteValue(t.Key, t.Value) })
		},
		restore: func(a primitive.Adapter, e LedgerEntry) error {
			if e.OriginalPresent {
				return retry(func() error { return a.WriteValue(e.Key, e.Original) })
			}
			err := retry(func() error { return a.DeleteValue(e.Key) })
			if primitive.IsNotFound(err) {
				return nil
			}
			return err
		},
	},
}

type ledgerKey struct {
	kind   TweakKind
	target string
}

// TweakLedger is the append-only record of reversible changes made during
// one session. An entry is written after the original value is captured and
// before the mutating call; it is dropped again if that call fails.
type TweakLedger struct {
	adapter primitive.Adapter
	now     func() time.Time
	metrics *Metrics
	log     *log.Logger

	mu      sync.Mutex
	entries []LedgerEntry
	index   map[ledgerKey]int
	size    atomic.Int64
}

// NewTweakLedger returns an empty ledger issuing calls through adapter.
func NewTweakLedger(adapter primitive.Adapter, opts ...Option) *TweakLedger {
	o := buildOptions(opts)
	return &TweakLedger{
		adapter: adapter,
		now:     o.now,
		metrics: o.metrics,
		log:     o.log,
		index:   make(map[ledgerKey]int),
	}
}

// Apply captures the target's current value unless the ledger already holds
// it, then applies t. On failure the ledger is left as it was before the call.
func (l *TweakLedger) Apply(t Tweak) error {
	ops, ok := kindTable[t.Kind]
	if !ok {
		return fmt.Errorf("unknown tweak kind %q", t.Kind)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	k := ledgerKey{t.Kind, t.Target()}
	if i, ok := l.index[k]; ok {
		if err := ops.mutate(l.adapter, t); err != nil {
			l.metrics.primitiveFailure(err)
			return err
		}
		l.entries[i].Applied = t.Value
		l.entries[i].AppliedAt = l.now()
		return nil
	}

	orig, present, err := ops.capture(l.adapter, t)
	if err != nil {
		l.metrics.primitiveFailure(err)
		return err
	}
	l.entries = append(l.entries, LedgerEntry{
		Kind:            t.Kind,
		Feature:         t.Feature,
		Target:          k.target,
		Key:             t.Key,
		Original:        orig,
		OriginalPresent: present,
		Applied:         t.Value,
		AppliedAt:       l.now(),
	})

	if err := ops.mutate(l.adapter, t); err != nil {
		l.entries = l.entries[:len(l.entries)-1]
		l.metrics.primitiveFailure(err)
		return err
	}
	l.index[k] = len(l.entries) - 1
	l.size.Store(int64(len(l.entries)))

	l.log.Debug().Str("kind", string(t.Kind)).Str("target", k.target).
		Str("original", orig.String()).Bool("original_present", present).
		Str("applied", t.Value.String()).Msg("Tweak applied")
	return nil
}

// RevertAll restores every entry, newest first, continuing past failures.
// The ledger is empty afterwards whatever the outcome.
func (l *TweakLedger) RevertAll() RevertReport {
	l.mu.Lock()
	defer l.mu.Unlock()

	var report RevertReport
	for i := len(l.entries) - 1; i >= 0; i-- {
		e := l.entries[i]
		if err := kindTable[e.Kind].restore(l.adapter, e); err != nil {
			l.metrics.primitiveFailure(err)
			l.log.Warn().Err(err).Str("kind", string(e.Kind)).Str("target", e.Target).Msg("Revert failed")
			report.Failed = append(report.Failed, RevertFailure{Entry: e, Err: err})
			continue
		}
		report.Reverted = append(report.Reverted, e)
	}

	l.entries = nil
	clear(l.index)
	l.size.Store(0)
	return report
}

// Lookup returns the entry for (kind, target), if any.
func (l *TweakLedger) Lookup(kind TweakKind, target string) (LedgerEntry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	i, ok := l.index[ledgerKey{kind, target}]
	if !ok {
		return LedgerEntry{}, false
	}
	return l.entries[i], true
}

// Entries returns a copy of the ledger in application order.
func (l *TweakLedger) Entries() []LedgerEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.entries)
}

// Len does not wait for an Apply in progress.
func (l *TweakLedger) Len() int { return int(l.size.Load()) }
