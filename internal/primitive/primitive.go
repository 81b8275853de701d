// Package primitive defines the stateless OS operations the session engine
// consumes and the typed failures they report. Implementations live in
// internal/windowsapi; tests use primitivetest.
package primitive

import (
	"strconv"
	"strings"
)

// ProcessInfo is one entry of a process snapshot.
type ProcessInfo struct {
	PID       uint32
	ParentPID uint32
	Name      string
}

// SnapshotProvider returns the processes running right now. Implementations
// must not cache between calls.
type SnapshotProvider interface {
	Snapshot() ([]ProcessInfo, error)
}

// Adapter exposes the atomic, stateless operations applied by a session.
// Every method either succeeds or returns a *Failure.
type Adapter interface {
	Suspend(pid uint32) error
	Resume(pid uint32) error
	TrimWorkingSet(pid uint32) error

	// ReadValue fails with ReasonNotFound when the value does not exist.
	ReadValue(key RegistryKey) (Value, error)
	WriteValue(key RegistryKey, value Value) error
	DeleteValue(key RegistryKey) error

	ActivePowerPlan() (string, error)
	SetPowerPlan(id string) error
}

// KeyBrowser enumerates registry subkeys. Tweaks that fan out over network
// interfaces need it; adapters that cannot browse simply don't implement it.
type KeyBrowser interface {
	SubKeys(root Root, path string) ([]string, error)
}

// Root is a registry hive.
type Root string

const (
	LocalMachine Root = "HKLM"
	CurrentUser  Root = "HKCU"
)

// RegistryKey identifies a single registry value.
type RegistryKey struct {
	Root Root
	Path string
	Name string
}

func (k RegistryKey) String() string {
	return string(k.Root) + `\` + k.Path + `\` + k.Name
}

// ValueKind is the registry data type of a Value.
type ValueKind uint8

const (
	KindDWord ValueKind = iota
	KindString
	KindExpandString
)

// Value is a registry value as read or written by the adapter.
type Value struct {
	Kind   ValueKind
	Number uint32
	Text   string
}

// DWord returns a REG_DWORD value.
func DWord(n uint32) Value { return Value{Kind: KindDWord, Number: n} }

// String returns a REG_SZ value.
func String(s string) Value { return Value{Kind: KindString, Text: s} }

// ExpandString returns a REG_EXPAND_SZ value. Text is stored unexpanded.
func ExpandString(s string) Value { return Value{Kind: KindExpandString, Text: s} }

func (v Value) String() string {
	if v.Kind == KindDWord {
		return strconv.FormatUint(uint64(v.Number), 10)
	}
	return v.Text
}

// MarshalText renders the value as it would be shown by regedit.
func (v Value) MarshalText() ([]byte, error) { return []byte(v.String()), nil }

// Well-known power scheme GUIDs.
const (
	BalancedPlan            = "381b4222-f694-41f0-9685-ff5bb260df2e"
	HighPerformancePlan     = "8c5e7fda-e8bf-4a96-9a85-a6e23a8c635c"
	PowerSaverPlan          = "a1841308-3541-4fab-bc81-f71556f20b4a"
	UltimatePerformancePlan = "e9a42b02-d5df-448d-aa00-03f14749eb61"
)

// NormalizePlanID lowercases a scheme id and strips surrounding braces so ids
// from different sources compare equal.
func NormalizePlanID(id string) string {
	return strings.ToLower(strings.Trim(strings.TrimSpace(id), "{}"))
}
