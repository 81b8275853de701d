package session

import (
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/phuslu/log"
	"golang.org/x/sync/errgroup"

	"gameboost/internal/primitive"
)

// sessionInfo is published atomically so Status never waits on a pass.
type sessionInfo struct {
	id          string
	activatedAt time.Time
}

// Manager is the session state machine. Activate and Deactivate are
// serialized; Status may be called at any time from any goroutine.
type Manager struct {
	adapter   primitive.Adapter
	snapshots primitive.SnapshotProvider
	opts      options
	log       *log.Logger
	metrics   *Metrics

	registry *SuspensionRegistry
	ledger   *TweakLedger

	mu    sync.Mutex // held for a whole activate or deactivate pass
	state atomic.Int32
	info  atomic.Pointer[sessionInfo]
	cfg   Config
}

// New returns an inactive Manager. If adapter also implements
// primitive.KeyBrowser, per-interface network tweaks are available.
func New(adapter primitive.Adapter, snapshots primitive.SnapshotProvider, opts ...Option) *Manager {
	o := buildOptions(opts)
	m := &Manager{
		adapter:   adapter,
		snapshots: snapshots,
		opts:      o,
		log:       o.log,
		metrics:   o.metrics,
		registry:  NewSuspensionRegistry(adapter, opts...),
		ledger:    NewTweakLedger(adapter, opts...),
	}
	m.metrics.setState(Inactive)
	return m
}

// State returns the current lifecycle state.
func (m *Manager) State() State { return State(m.state.Load()) }

// Status returns the current state and counts. It never blocks on an
// activation or deactivation in progress.
func (m *Manager) Status() Status {
	st := Status{
		State:             m.State(),
		SuspendedCount:    m.registry.Len(),
		AppliedTweakCount: m.ledger.Len(),
	}
	if info := m.info.Load(); info != nil {
		st.SessionID = info.id
		st.ActivatedAt = info.activatedAt
	}
	return st
}

// Suspended returns the processes currently held suspended.
func (m *Manager) Suspended() []SuspendedProcessRecord { return m.registry.Records() }

// Ledger returns the recorded tweaks in application order.
func (m *Manager) Ledger() []LedgerEntry { return m.ledger.Entries() }

func (m *Manager) setState(s State) {
	m.state.Store(int32(s))
	m.metrics.setState(s)
}

// Activate suspends the enabled process groups and applies the enabled
// tweaks. Individual failures are reported in the result; the session
// becomes Active regardless. It fails with ErrAlreadyActive, without side
// effects, unless the session is Inactive.
func (m *Manager) Activate(cfg Config) (ActivationResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s := m.State(); s != Inactive {
		m.metrics.transition("activate", "rejected")
		return ActivationResult{}, ErrAlreadyActive
	}

	started := m.opts.now()
	id := uuid.NewString()
	m.cfg = cfg.clone()
	m.setState(Activating)
	m.info.Store(&sessionInfo{id: id})
	m.log.Info().Str("session_id", id).Msg("Activating session")

	res := ActivationResult{
		SessionID:         id,
		FailedSuspensions: []string{},
		AppliedTweaks:     []Feature{},
		FailedTweaks:      []Feature{},
		StartedAt:         started,
	}
	var applied, failed featureSet

	snapshot, snapErr := retryValue(m.snapshots.Snapshot)
	if snapErr != nil {
		m.metrics.primitiveFailure(snapErr)
		res.Warnings = append(res.Warnings, newWarning(featureSuspend, "snapshot", snapErr))
		m.log.Error().Err(snapErr).Msg("Process snapshot failed, nothing will be suspended or trimmed")
	}

	m.suspendGroups(snapshot, &res)

	tweaks := m.cfg.Tweaks
	if tweaks.PowerPlan {
		m.applyPowerPlan(&res, &applied, &failed)
	}
	if tweaks.Network {
		var browser primitive.KeyBrowser
		if b, ok := m.adapter.(primitive.KeyBrowser); ok {
			browser = b
		}
		list, warnings := networkTweaks(browser)
		res.Warnings = append(res.Warnings, warnings...)
		if len(warnings) > 0 {
			failed.add(FeatureNetwork)
		}
		m.applyAll(FeatureNetwork, list, &res, &applied, &failed)
	}
	if tweaks.GPUPriority {
		m.applyAll(FeatureGPUPriority, gpuTweaks(), &res, &applied, &failed)
	}
	if tweaks.MemoryTrim {
		report := m.trimMemory(snapshot, snapErr, &res)
		res.MemoryTrim = &report
		if report.Trimmed > 0 {
			applied.add(FeatureMemoryTrim)
		}
		if report.Trimmed == 0 || snapErr != nil {
			failed.add(FeatureMemoryTrim)
		}
	}

	res.AppliedTweaks = append(res.AppliedTweaks, applied...)
	res.FailedTweaks = append(res.FailedTweaks, failed...)
	res.FinishedAt = m.opts.now()

	m.info.Store(&sessionInfo{id: id, activatedAt: res.FinishedAt})
	m.setState(Active)
	m.metrics.setCounts(m.registry.Len(), m.ledger.Len())
	m.metrics.transition("activate", "ok")
	m.metrics.observe("activate", started)

	m.log.Info().Str("session_id", id).
		Int("suspended", res.SuspendedCount).
		Int("failed_suspensions", len(res.FailedSuspensions)).
		Strs("applied_tweaks", featureStrings(res.AppliedTweaks)).
		Strs("failed_tweaks", featureStrings(res.FailedTweaks)).
		Int("warnings", len(res.Warnings)).
		Dur("took", res.FinishedAt.Sub(started)).
		Msg("Session active")
	return res, nil
}

func (m *Manager) suspendGroups(snapshot []primitive.ProcessInfo, res *ActivationResult) {
	for _, rule := range m.cfg.Groups {
		if !rule.Enabled {
			continue
		}
		report := m.registry.SuspendGroup(rule, snapshot)
		res.SuspendedCount += len(report.Suspended)
		for _, s := range report.Skipped {
			label := processLabel(s.Name, s.PID)
			res.FailedSuspensions = append(res.FailedSuspensions, label)
			res.Warnings = append(res.Warnings, newWarning(featureSuspend, label, s.Err))
		}
	}
}

// applyPowerPlan tries each candidate scheme in order and stops at the first
// one the host accepts.
func (m *Manager) applyPowerPlan(res *ActivationResult, applied, failed *featureSet) {
	for _, id := range m.cfg.PowerPlans {
		err := m.ledger.Apply(powerPlanTweak(id))
		if err == nil {
			applied.add(FeaturePowerPlan)
			m.log.Debug().Str("plan", id).Msg("Power plan applied")
			return
		}
		res.Warnings = append(res.Warnings, newWarning(FeaturePowerPlan, id, err))
		m.log.Warn().Err(err).Str("plan", id).Msg("Power plan candidate rejected")

		var f *primitive.Failure
		if errors.As(err, &f) && f.Op == primitive.OpActivePowerPlan {
			break
		}
	}
	failed.add(FeaturePowerPlan)
}

func (m *Manager) applyAll(feature Feature, list []Tweak, res *ActivationResult, applied, failed *featureSet) {
	for _, t := range list {
		if err := m.ledger.Apply(t); err != nil {
			failed.add(feature)
			res.Warnings = append(res.Warnings, newWarning(feature, t.Target(), err))
			m.log.Warn().Err(err).Str("feature", string(feature)).Str("target", t.Target()).Msg("Tweak failed")
			continue
		}
		applied.add(feature)
	}
}

// trimMemory empties the working set of every user process except the
// daemon itself and configured exclusions. It is not reversible and writes
// no ledger entry.
func (m *Manager) trimMemory(snapshot []primitive.ProcessInfo, snapErr error, res *ActivationResult) TrimReport {
	var report TrimReport
	if snapErr != nil {
		return report
	}

	before, beforeErr := m.opts.memStats()

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(m.opts.concurrency)
	for _, p := range snapshot {
		if p.PID <= lowestUserPID || p.PID == m.opts.selfPID || m.trimExcluded(p.Name) {
			continue
		}
		g.Go(func() error {
			err := retry(func() error { return m.adapter.TrimWorkingSet(p.PID) })
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.Failed++
				m.metrics.primitiveFailure(err)
				m.log.Trace().Err(err).Uint32("pid", p.PID).Str("name", p.Name).Msg("Trim failed")
				return nil
			}
			report.Trimmed++
			return nil
		})
	}
	_ = g.Wait()
	m.metrics.trimmed(report.Trimmed)

	after, afterErr := m.opts.memStats()
	if beforeErr == nil && afterErr == nil && after > before {
		report.FreedBytes = after - before
	}
	if report.Trimmed == 0 {
		res.Warnings = append(res.Warnings, Warning{
			Feature: FeatureMemoryTrim,
			Target:  "working-sets",
			Reason:  primitive.ReasonUnknown,
			Message: "no process working set could be trimmed",
		})
	}

	m.log.Debug().Int("trimmed", report.Trimmed).Int("failed", report.Failed).
		Uint64("freed_bytes", report.FreedBytes).Msg("Memory trimmed")
	return report
}

func (m *Manager) trimExcluded(name string) bool {
	for _, ex := range m.cfg.TrimExclude {
		if strings.EqualFold(ex, name) {
			return true
		}
	}
	return false
}

// Deactivate resumes every suspended process, then reverts the ledger
// newest first, then clears both. It reads only what the session recorded,
// never the configuration. It fails with ErrNotActive, without side
// effects, unless the session is Active.
func (m *Manager) Deactivate() (DeactivationResult, error) {
	return m.deactivate("")
}

// DeactivateSession is Deactivate restricted to the session with the given
// id, as returned by Activate. Any other active session is left alone and
// ErrOtherSession is returned.
func (m *Manager) DeactivateSession(id string) (DeactivationResult, error) {
	if id == "" {
		return DeactivationResult{}, ErrOtherSession
	}
	return m.deactivate(id)
}

func (m *Manager) deactivate(want string) (DeactivationResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.State() != Active {
		m.metrics.transition("deactivate", "rejected")
		return DeactivationResult{}, ErrNotActive
	}

	var id string
	if info := m.info.Load(); info != nil {
		id = info.id
	}
	if want != "" && want != id {
		m.metrics.transition("deactivate", "rejected")
		return DeactivationResult{}, ErrOtherSession
	}

	started := m.opts.now()
	m.setState(Deactivating)
	m.log.Info().Str("session_id", id).Msg("Deactivating session")

	res := DeactivationResult{
		SessionID:      id,
		RevertedTweaks: []Feature{},
		FailedReverts:  []Feature{},
		StartedAt:      started,
	}

	resumed := m.registry.ResumeAll()
	res.ResumedCount = len(resumed.Resumed)
	for _, f := range resumed.Failed {
		res.Warnings = append(res.Warnings, newWarning(featureSuspend, processLabel(f.Record.Name, f.Record.PID), f.Err))
	}

	var reverted, failed featureSet
	report := m.ledger.RevertAll()
	for _, e := range report.Reverted {
		reverted.add(e.Feature)
	}
	for _, f := range report.Failed {
		failed.add(f.Entry.Feature)
		res.Warnings = append(res.Warnings, newWarning(f.Entry.Feature, f.Entry.Target, f.Err))
	}
	res.RevertedTweaks = append(res.RevertedTweaks, reverted...)
	res.FailedReverts = append(res.FailedReverts, failed...)
	res.FinishedAt = m.opts.now()

	m.cfg = Config{}
	m.info.Store(nil)
	m.setState(Inactive)
	m.metrics.setCounts(m.registry.Len(), m.ledger.Len())
	m.metrics.transition("deactivate", "ok")
	m.metrics.observe("deactivate", started)

	m.log.Info().Str("session_id", id).
		Int("resumed", res.ResumedCount).
		Strs("reverted_tweaks", featureStrings(res.RevertedTweaks)).
		Strs("failed_reverts", featureStrings(res.FailedReverts)).
		Int("warnings", len(res.Warnings)).
		Dur("took", res.FinishedAt.Sub(started)).
		Msg("Session inactive")
	return res, nil
}

func featureStrings(fs []Feature) []string {
	out := make([]string, len(fs))
	for i, f := range fs {
		out[i] = string(f)
	}
	return out
}
