package session

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"gameboost/internal/primitive"
)

// State is the lifecycle position of the session.
type State int32

const (
	Inactive State = iota
	Activating
	Active
	Deactivating
)

var stateNames = [...]string{
	Inactive:     "inactive",
	Activating:   "activating",
	Active:       "active",
	Deactivating: "deactivating",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// State errors. They are returned before any side effect happens.
var (
	ErrAlreadyActive = errors.New("session already active")
	ErrNotActive     = errors.New("session not active")

	// ErrOtherSession is returned by DeactivateSession when the active
	// session is not the one named.
	ErrOtherSession = errors.New("active session has a different id")
)

// Feature is a user-facing tweak toggle. One feature expands into one or
// more ledger targets.
type Feature string

const (
	FeaturePowerPlan   Feature = "power_plan"
	FeatureNetwork     Feature = "network"
	FeatureGPUPriority Feature = "gpu_priority"
	FeatureMemoryTrim  Feature = "memory_trim"

	// featureSuspend tags warnings produced while suspending or resuming.
	featureSuspend Feature = "suspend"
)

// ProcessGroupRule is a named set of executable names suspended together.
// Priority only orders groups for display.
type ProcessGroupRule struct {
	Name     string
	Patterns []string
	Enabled  bool
	Priority int
}

// Matches reports whether name equals one of the patterns, ignoring case.
func (r ProcessGroupRule) Matches(name string) bool {
	for _, p := range r.Patterns {
		if strings.EqualFold(p, name) {
			return true
		}
	}
	return false
}

// TweakSet selects the features applied on activation.
type TweakSet struct {
	MemoryTrim  bool
	PowerPlan   bool
	Network     bool
	GPUPriority bool
}

// Config is what a caller hands to Activate. The manager keeps a deep copy,
// so later edits by the caller never reach an active session.
type Config struct {
	Groups []ProcessGroupRule
	Tweaks TweakSet

	// PowerPlans lists candidate schemes in preference order; the first one
	// the host accepts becomes active. Empty means DefaultPowerPlans.
	PowerPlans []string

	// TrimExclude names executables whose working set is never trimmed.
	TrimExclude []string
}

// DefaultPowerPlans prefers Ultimate Performance and falls back to High
// Performance on editions that don't ship it.
var DefaultPowerPlans = []string{primitive.UltimatePerformancePlan, primitive.HighPerformancePlan}

func (c Config) clone() Config {
	out := Config{
		Tweaks:      c.Tweaks,
		PowerPlans:  slices.Clone(c.PowerPlans),
		TrimExclude: slices.Clone(c.TrimExclude),
		Groups:      make([]ProcessGroupRule, len(c.Groups)),
	}
	for i, g := range c.Groups {
		g.Patterns = slices.Clone(g.Patterns)
		out.Groups[i] = g
	}
	if len(out.PowerPlans) == 0 {
		out.PowerPlans = slices.Clone(DefaultPowerPlans)
	}
	return out
}

// SuspendedProcessRecord is a process this session holds suspended.
type SuspendedProcessRecord struct {
	PID         uint32    `json:"pid"`
	Name        string    `json:"name"`
	Group       string    `json:"group"`
	SuspendedAt time.Time `json:"suspended_at"`
}

// Warning is one recorded, non-fatal primitive failure.
type Warning struct {
	Feature Feature          `json:"feature"`
	Target  string           `json:"target"`
	Reason  primitive.Reason `json:"reason"`
	Message string           `json:"message"`
}

func newWarning(f Feature, target string, err error) Warning {
	return Warning{Feature: f, Target: target, Reason: primitive.ReasonOf(err), Message: err.Error()}
}

// TrimReport summarizes a memory-trim pass.
type TrimReport struct {
	Trimmed    int    `json:"trimmed"`
	Failed     int    `json:"failed"`
	FreedBytes uint64 `json:"freed_bytes"`
}

// ActivationResult reports everything Activate did, including partial failures.
type ActivationResult struct {
	SessionID         string      `json:"session_id"`
	SuspendedCount    int         `json:"suspended_count"`
	FailedSuspensions []string    `json:"failed_suspensions"`
	AppliedTweaks     []Feature   `json:"applied_tweaks"`
	FailedTweaks      []Feature   `json:"failed_tweaks"`
	Warnings          []Warning   `json:"warnings,omitempty"`
	MemoryTrim        *TrimReport `json:"memory_trim,omitempty"`
	StartedAt         time.Time   `json:"started_at"`
	FinishedAt        time.Time   `json:"finished_at"`
}

// DeactivationResult reports what Deactivate restored.
type DeactivationResult struct {
	SessionID      string    `json:"session_id"`
	ResumedCount   int       `json:"resumed_count"`
	RevertedTweaks []Feature `json:"reverted_tweaks"`
	FailedReverts  []Feature `json:"failed_reverts"`
	Warnings       []Warning `json:"warnings,omitempty"`
	StartedAt      time.Time `json:"started_at"`
	FinishedAt     time.Time `json:"finished_at"`
}

// Status is a point-in-time view of the session.
type Status struct {
	State             State     `json:"state"`
	SessionID         string    `json:"session_id,omitempty"`
	SuspendedCount    int       `json:"suspended_count"`
	AppliedTweakCount int       `json:"applied_tweak_count"`
	ActivatedAt       time.Time `json:"activated_at,omitzero"`
}

// processLabel identifies a process in failure lists.
func processLabel(name string, pid uint32) string {
	return fmt.Sprintf("%s[%d]", name, pid)
}

// featureSet keeps features in first-seen order without duplicates.
type featureSet []Feature

func (s *featureSet) add(f Feature) {
	if !slices.Contains(*s, f) {
		*s = append(*s, f)
	}
}
