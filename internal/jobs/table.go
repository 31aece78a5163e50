package jobs

import (
	"errors"
	"fmt"
	"sort"
)

// State is the run state of one process.
type State int

const (
	Running State = iota
	Stopped
)

func (s State) String() string {
	if s == Stopped {
		return "stopped"
	}
	return "running"
}

// Process is a tracked child.
type Process struct {
	Pid   int
	Pgid  int
	State State
}

// Job is one launched pipeline.
type Job struct {
	ID      int
	Pgid    int
	Command string
}

type group struct {
	jobID int
	pids  map[int]struct{}
}

var ErrDuplicate = errors.New("already tracked")

// Table relates jobs, process groups and processes.
// It is not safe for concurrent use; the Worker owns it.
type Table struct {
	jobs   map[int]Job
	groups map[int]*group
	procs  map[int]*Process
}

func NewTable() *Table {
	return &Table{
		jobs:   make(map[int]Job),
		groups: make(map[int]*group),
		procs:  make(map[int]*Process),
	}
}

// NextID returns the smallest id not in use, or false when all ids
// below limit are taken.
func (t *Table) NextID(limit int) (int, bool) {
	for id := 0; id < limit; id++ {
		if _, ok := t.jobs[id]; !ok {
			return id, true
		}
	}
	return 0, false
}

// Insert registers a job whose processes all belong to pgid and are running.
func (t *Table) Insert(id, pgid int, pids []int, command string) error {
	if _, ok := t.jobs[id]; ok {
		return fmt.Errorf("job %d: %w", id, ErrDuplicate)
	}
	if _, ok := t.groups[pgid]; ok {
		return fmt.Errorf("process group %d: %w", pgid, ErrDuplicate)
	}
	for _, pid := range pids {
		if _, ok := t.procs[pid]; ok {
			return fmt.Errorf("process %d: %w", pid, ErrDuplicate)
		}
	}

	g := &group{jobID: id, pids: make(map[int]struct{}, len(pids))}
	for _, pid := range pids {
		g.pids[pid] = struct{}{}
		t.procs[pid] = &Process{Pid: pid, Pgid: pgid, State: Running}
	}
	t.groups[pgid] = g
	t.jobs[id] = Job{ID: id, Pgid: pgid, Command: command}
	return nil
}

func (t *Table) Len() int {
	return len(t.jobs)
}

func (t *Table) Job(id int) (Job, bool) {
	j, ok := t.jobs[id]
	return j, ok
}

// Jobs returns all jobs ordered by id.
func (t *Table) Jobs() []Job {
	out := make([]Job, 0, len(t.jobs))
	for _, j := range t.jobs {
		out = append(out, j)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ID < out[b].ID })
	return out
}

func (t *Table) Process(pid int) (Process, bool) {
	p, ok := t.procs[pid]
	if !ok {
		return Process{}, false
	}
	return *p, true
}

// SetState updates pid and returns its previous state.
func (t *Table) SetState(pid int, s State) (State, bool) {
	p, ok := t.procs[pid]
	if !ok {
		return 0, false
	}
	prev := p.State
	p.State = s
	return prev, true
}

// SetGroupState updates every member of pgid.
func (t *Table) SetGroupState(pgid int, s State) {
	g, ok := t.groups[pgid]
	if !ok {
		return
	}
	for pid := range g.pids {
		t.procs[pid].State = s
	}
}

// RemoveProcess drops pid and returns the job and group it belonged to.
func (t *Table) RemoveProcess(pid int) (jobID, pgid int, ok bool) {
	p, ok := t.procs[pid]
	if !ok {
		return 0, 0, false
	}
	delete(t.procs, pid)
	g, ok := t.groups[p.Pgid]
	if !ok {
		return 0, 0, false
	}
	delete(g.pids, pid)
	return g.jobID, p.Pgid, true
}

// RemoveJob deletes a job whose group has no members left.
// It refuses, returning false, while any member is still tracked.
func (t *Table) RemoveJob(id int) bool {
	j, ok := t.jobs[id]
	if !ok {
		return false
	}
	if g, ok := t.groups[j.Pgid]; ok {
		if len(g.pids) != 0 {
			return false
		}
		delete(t.groups, j.Pgid)
	}
	delete(t.jobs, id)
	return true
}

// GroupJob returns the id of the job owning pgid.
func (t *Table) GroupJob(pgid int) (int, bool) {
	g, ok := t.groups[pgid]
	if !ok {
		return 0, false
	}
	return g.jobID, true
}

func (t *Table) GroupEmpty(pgid int) bool {
	g, ok := t.groups[pgid]
	return !ok || len(g.pids) == 0
}

// GroupStopped reports whether every member of pgid is stopped.
// An empty or unknown group is not considered stopped.
func (t *Table) GroupStopped(pgid int) bool {
	g, ok := t.groups[pgid]
	if !ok || len(g.pids) == 0 {
		return false
	}
	for pid := range g.pids {
		if t.procs[pid].State != Stopped {
			return false
		}
	}
	return true
}

// Check verifies the cross-index invariants.
func (t *Table) Check() error {
	for pgid, g := range t.groups {
		j, ok := t.jobs[g.jobID]
		if !ok || j.Pgid != pgid {
			return fmt.Errorf("group %d has no job %d", pgid, g.jobID)
		}
		for pid := range g.pids {
			p, ok := t.procs[pid]
			if !ok {
				return fmt.Errorf("group %d member %d is not tracked", pgid, pid)
			}
			if p.Pgid != pgid {
				return fmt.Errorf("process %d in group %d records pgid %d", pid, pgid, p.Pgid)
			}
		}
	}
	for pid, p := range t.procs {
		g, ok := t.groups[p.Pgid]
		if !ok {
			return fmt.Errorf("process %d refers to unknown group %d", pid, p.Pgid)
		}
		if _, ok := g.pids[pid]; !ok {
			return fmt.Errorf("process %d missing from group %d", pid, p.Pgid)
		}
	}
	for id, j := range t.jobs {
		g, ok := t.groups[j.Pgid]
		if !ok {
			return fmt.Errorf("job %d has no group %d", id, j.Pgid)
		}
		if g.jobID != id {
			return fmt.Errorf("group %d belongs to job %d, not %d", j.Pgid, g.jobID, id)
		}
	}
	return nil
}
