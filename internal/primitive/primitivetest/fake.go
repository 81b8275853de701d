// Package primitivetest provides an in-memory machine implementing the
// primitive contracts, for tests of the session engine and its callers.
package primitivetest

import (
	"sort"
	"strconv"
	"sync"

	"gameboost/internal/primitive"
)

// Call records one primitive invocation.
type Call struct {
	Op     primitive.Op
	Target string
}

type injected struct {
	reason primitive.Reason
	once   bool
}

// Machine is a fake host: a process table, a registry, an active power plan
// and per-target failure injection. It is safe for concurrent use.
type Machine struct {
	mu sync.Mutex

	procs     map[uint32]primitive.ProcessInfo
	suspended map[uint32]int
	trimmed   map[uint32]int
	values    map[string]primitive.Value
	subkeys   map[string][]string
	noKeys    map[string]bool
	plan      string
	plans     map[string]bool

	failures    map[Call]injected
	snapshotErr error
	calls       []Call
}

var (
	_ primitive.Adapter          = (*Machine)(nil)
	_ primitive.KeyBrowser       = (*Machine)(nil)
	_ primitive.SnapshotProvider = (*Machine)(nil)
)

// NewMachine returns an empty machine whose active power plan is plan.
func NewMachine(plan string) *Machine {
	return &Machine{
		procs:     make(map[uint32]primitive.ProcessInfo),
		suspended: make(map[uint32]int),
		trimmed:   make(map[uint32]int),
		values:    make(map[string]primitive.Value),
		subkeys:   make(map[string][]string),
		noKeys:    make(map[string]bool),
		plan:      plan,
		plans:     make(map[string]bool),
		failures:  make(map[Call]injected),
	}
}

// PIDTarget is the target string used for pid-based operations.
func PIDTarget(pid uint32) string { return strconv.FormatUint(uint64(pid), 10) }

// --- setup ---

// Start adds a running process.
func (m *Machine) Start(pid uint32, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.procs[pid] = primitive.ProcessInfo{PID: pid, Name: name}
}

// Exit removes a process as if it terminated.
func (m *Machine) Exit(pid uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.procs, pid)
	delete(m.suspended, pid)
}

// SetValue stores a registry value without recording a call.
func (m *Machine) SetValue(key primitive.RegistryKey, v primitive.Value) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key.String()] = v
}

// RemoveKey makes root\path a missing key: writes under it fail with
// ReasonNotFound as they do on Windows. Keys exist unless removed.
func (m *Machine) RemoveKey(root primitive.Root, path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.noKeys[string(root)+`\`+path] = true
}

// AddSubKeys registers child keys under root\path.
func (m *Machine) AddSubKeys(root primitive.Root, path string, names ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := string(root) + `\` + path
	m.subkeys[k] = append(m.subkeys[k], names...)
}

// InstallPlans restricts SetPowerPlan to the given scheme ids. With no
// installed plans every id is accepted.
func (m *Machine) InstallPlans(ids ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		m.plans[id] = true
	}
}

// Fail makes every call of op against target fail with reason.
func (m *Machine) Fail(op primitive.Op, target string, reason primitive.Reason) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[Call{op, target}] = injected{reason: reason}
}

// FailOnce makes the next call of op against target fail with reason.
func (m *Machine) FailOnce(op primitive.Op, target string, reason primitive.Reason) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[Call{op, target}] = injected{reason: reason, once: true}
}

// ClearFailures removes all injected failures.
func (m *Machine) ClearFailures() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = make(map[Call]injected)
	m.snapshotErr = nil
}

// FailSnapshot makes Snapshot return err until ClearFailures.
func (m *Machine) FailSnapshot(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshotErr = err
}

// --- inspection ---

// SuspendCount returns how many outstanding suspensions pid has.
func (m *Machine) SuspendCount(pid uint32) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.suspended[pid]
}

// TrimCount returns how many times pid's working set was emptied.
func (m *Machine) TrimCount(pid uint32) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.trimmed[pid]
}

// Value returns the live registry value and whether it exists.
func (m *Machine) Value(key primitive.RegistryKey) (primitive.Value, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key.String()]
	return v, ok
}

// PowerPlan returns the live active scheme.
func (m *Machine) PowerPlan() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.plan
}

// Calls returns the number of recorded calls of op.
func (m *Machine) Calls(op primitive.Op) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c.Op == op {
			n++
		}
	}
	return n
}

// History returns a copy of all recorded calls in order.
func (m *Machine) History() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Call(nil), m.calls...)
}

// --- primitive.Adapter ---

// record logs the call and returns an injected failure, if any. Callers hold mu.
func (m *Machine) record(op primitive.Op, target string) error {
	c := Call{op, target}
	m.calls = append(m.calls, c)
	inj, ok := m.failures[c]
	if !ok {
		return nil
	}
	if inj.once {
		delete(m.failures, c)
	}
	return primitive.Fail(op, target, inj.reason, nil)
}

func (m *Machine) Snapshot() ([]primitive.ProcessInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{primitive.OpSnapshot, ""})
	if m.snapshotErr != nil {
		return nil, primitive.Fail(primitive.OpSnapshot, "", primitive.ReasonUnknown, m.snapshotErr)
	}
	out := make([]primitive.ProcessInfo, 0, len(m.procs))
	for _, p := range m.procs {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PID < out[j].PID })
	return out, nil
}

func (m *Machine) Suspend(pid uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	target := PIDTarget(pid)
	if err := m.record(primitive.OpSuspend, target); err != nil {
		return err
	}
	if _, ok := m.procs[pid]; !ok {
		return primitive.Fail(primitive.OpSuspend, target, primitive.ReasonNotFound, nil)
	}
	m.suspended[pid]++
	return nil
}

func (m *Machine) Resume(pid uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	target := PIDTarget(pid)
	if err := m.record(primitive.OpResume, target); err != nil {
		return err
	}
	if _, ok := m.procs[pid]; !ok {
		return primitive.Fail(primitive.OpResume, target, primitive.ReasonNotFound, nil)
	}
	if m.suspended[pid] > 0 {
		m.suspended[pid]--
	}
	return nil
}

func (m *Machine) TrimWorkingSet(pid uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	target := PIDTarget(pid)
	if err := m.record(primitive.OpTrimWorkingSet, target); err != nil {
		return err
	}
	if _, ok := m.procs[pid]; !ok {
		return primitive.Fail(primitive.OpTrimWorkingSet, target, primitive.ReasonNotFound, nil)
	}
	m.trimmed[pid]++
	return nil
}

func (m *Machine) ReadValue(key primitive.RegistryKey) (primitive.Value, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	target := key.String()
	if err := m.record(primitive.OpReadValue, target); err != nil {
		return primitive.Value{}, err
	}
	v, ok := m.values[target]
	if !ok {
		return primitive.Value{}, primitive.Fail(primitive.OpReadValue, target, primitive.ReasonNotFound, nil)
	}
	return v, nil
}

func (m *Machine) WriteValue(key primitive.RegistryKey, v primitive.Value) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	target := key.String()
	if err := m.record(primitive.OpWriteValue, target); err != nil {
		return err
	}
	if m.noKeys[string(key.Root)+`\`+key.Path] {
		return primitive.Fail(primitive.OpWriteValue, target, primitive.ReasonNotFound, nil)
	}
	m.values[target] = v
	return nil
}

func (m *Machine) DeleteValue(key primitive.RegistryKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	target := key.String()
	if err := m.record(primitive.OpDeleteValue, target); err != nil {
		return err
	}
	if _, ok := m.values[target]; !ok {
		return primitive.Fail(primitive.OpDeleteValue, target, primitive.ReasonNotFound, nil)
	}
	delete(m.values, target)
	return nil
}

func (m *Machine) SubKeys(root primitive.Root, path string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	target := string(root) + `\` + path
	if err := m.record(primitive.OpListSubKeys, target); err != nil {
		return nil, err
	}
	return append([]string(nil), m.subkeys[target]...), nil
}

func (m *Machine) ActivePowerPlan() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record(primitive.OpActivePowerPlan, ""); err != nil {
		return "", err
	}
	return m.plan, nil
}

func (m *Machine) SetPowerPlan(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record(primitive.OpSetPowerPlan, id); err != nil {
		return err
	}
	if len(m.plans) > 0 && !m.plans[id] {
		return primitive.Fail(primitive.OpSetPowerPlan, id, primitive.ReasonNotFound, nil)
	}
	m.plan = id
	return nil
}
