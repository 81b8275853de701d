package session

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/phuslu/log"
	"golang.org/x/sync/errgroup"

	"gameboost/internal/maps"
	"gameboost/internal/primitive"
)

// lowestUserPID: pids 0 (Idle) and 4 (System) are never touched.
const lowestUserPID = 4

// SkippedProcess is a matched process that could not be suspended.
type SkippedProcess struct {
	PID    uint32
	Name   string
	Group  string
	Reason primitive.Reason
	Err    error
}

// SuspendReport is the outcome of one SuspendGroup call.
type SuspendReport struct {
	Suspended []SuspendedProcessRecord
	Skipped   []SkippedProcess
}

// ResumeFailure is a record that was dropped although its resume call failed
// for a reason other than the process having exited.
type ResumeFailure struct {
	Record SuspendedProcessRecord
	Err    error
}

// ResumeReport is the outcome of ResumeGroup/ResumeAll.
type ResumeReport struct {
	Resumed []SuspendedProcessRecord
	Failed  []ResumeFailure
}

// claim reserves a pid before it is suspended. The record is published once
// the suspend succeeds; the map entry itself is never overwritten.
type claim struct {
	rec atomic.Pointer[SuspendedProcessRecord]
}

// SuspensionRegistry tracks the pids this session holds suspended. A pid is
// claimed in the map before it is suspended, so parallel workers and
// overlapping group rules can never suspend it twice.
type SuspensionRegistry struct {
	adapter     primitive.Adapter
	records     maps.ConcurrentMap[uint32, *claim]
	held        atomic.Int64
	concurrency int
	selfPID     uint32
	now         func() time.Time
	metrics     *Metrics
	log         *log.Logger
}

// NewSuspensionRegistry returns an empty registry issuing calls through adapter.
func NewSuspensionRegistry(adapter primitive.Adapter, opts ...Option) *SuspensionRegistry {
	o := buildOptions(opts)
	return &SuspensionRegistry{
		adapter:     adapter,
		records:     maps.New[uint32, *claim](o.mapBackend),
		concurrency: o.concurrency,
		selfPID:     o.selfPID,
		now:         o.now,
		metrics:     o.metrics,
		log:         o.log,
	}
}

// SuspendGroup suspends every process in snapshot whose name matches rule and
// that the registry does not already hold. Failures are reported as skipped
// and never abort the pass.
func (r *SuspensionRegistry) SuspendGroup(rule ProcessGroupRule, snapshot []primitive.ProcessInfo) SuspendReport {
	var (
		report SuspendReport
		mu     sync.Mutex
		g      errgroup.Group
	)
	g.SetLimit(r.concurrency)

	for _, p := range snapshot {
		if !rule.Matches(p.Name) || r.protected(p.PID) {
			continue
		}
		c, held := r.records.LoadOrStore(p.PID, func() *claim { return new(claim) })
		if held {
			r.log.Trace().Uint32("pid", p.PID).Str("group", rule.Name).Msg("Already held, skipping")
			continue
		}

		g.Go(func() error {
			err := retry(func() error { return r.adapter.Suspend(p.PID) })
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				r.records.Delete(p.PID)
				r.metrics.primitiveFailure(err)
				report.Skipped = append(report.Skipped, SkippedProcess{
					PID: p.PID, Name: p.Name, Group: rule.Name,
					Reason: primitive.ReasonOf(err), Err: err,
				})
				r.log.Warn().Err(err).Uint32("pid", p.PID).Str("name", p.Name).
					Str("group", rule.Name).Msg("Suspend failed")
				return nil
			}
			rec := SuspendedProcessRecord{PID: p.PID, Name: p.Name, Group: rule.Name, SuspendedAt: r.now()}
			c.rec.Store(&rec)
			r.held.Add(1)
			report.Suspended = append(report.Suspended, rec)
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(report.Suspended, func(i, j int) bool { return report.Suspended[i].PID < report.Suspended[j].PID })
	sort.Slice(report.Skipped, func(i, j int) bool { return report.Skipped[i].PID < report.Skipped[j].PID })

	r.log.Debug().Str("group", rule.Name).Int("suspended", len(report.Suspended)).
		Int("skipped", len(report.Skipped)).Msg("Group suspended")
	return report
}

// ResumeGroup resumes and forgets every record owned by group.
func (r *SuspensionRegistry) ResumeGroup(group string) ResumeReport {
	return r.resume(func(rec *SuspendedProcessRecord) bool { return rec.Group == group })
}

// ResumeAll resumes and forgets every record.
func (r *SuspensionRegistry) ResumeAll() ResumeReport {
	return r.resume(func(*SuspendedProcessRecord) bool { return true })
}

// resume drops each selected record whatever the resume outcome. A process
// that has exited counts as resumed: it is no longer suspended by us.
func (r *SuspensionRegistry) resume(match func(*SuspendedProcessRecord) bool) ResumeReport {
	var pids []uint32
	r.records.Range(func(pid uint32, c *claim) bool {
		if rec := c.rec.Load(); rec != nil && match(rec) {
			pids = append(pids, pid)
		}
		return true
	})

	var (
		report ResumeReport
		mu     sync.Mutex
		g      errgroup.Group
	)
	g.SetLimit(r.concurrency)

	for _, pid := range pids {
		c, ok := r.records.LoadAndDelete(pid)
		if !ok {
			continue
		}
		rec := c.rec.Load()
		r.held.Add(-1)

		g.Go(func() error {
			err := retry(func() error { return r.adapter.Resume(rec.PID) })
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil || primitive.IsNotFound(err):
				if err != nil {
					r.log.Debug().Uint32("pid", rec.PID).Str("name", rec.Name).Msg("Process exited while suspended")
				}
				report.Resumed = append(report.Resumed, *rec)
			default:
				r.metrics.primitiveFailure(err)
				report.Failed = append(report.Failed, ResumeFailure{Record: *rec, Err: err})
				r.log.Warn().Err(err).Uint32("pid", rec.PID).Str("name", rec.Name).Msg("Resume failed")
			}
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(report.Resumed, func(i, j int) bool { return report.Resumed[i].PID < report.Resumed[j].PID })
	sort.Slice(report.Failed, func(i, j int) bool { return report.Failed[i].Record.PID < report.Failed[j].Record.PID })
	return report
}

// Records returns the held records ordered by pid.
func (r *SuspensionRegistry) Records() []SuspendedProcessRecord {
	var out []SuspendedProcessRecord
	r.records.Range(func(_ uint32, c *claim) bool {
		if rec := c.rec.Load(); rec != nil {
			out = append(out, *rec)
		}
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].PID < out[j].PID })
	return out
}

// Holds reports whether pid is currently held suspended.
func (r *SuspensionRegistry) Holds(pid uint32) bool {
	c, ok := r.records.Load(pid)
	return ok && c.rec.Load() != nil
}

// Len returns the number of processes held suspended.
func (r *SuspensionRegistry) Len() int { return int(r.held.Load()) }

func (r *SuspensionRegistry) protected(pid uint32) bool {
	return pid <= lowestUserPID || pid == r.selfPID
}
