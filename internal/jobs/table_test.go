package jobs

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestTable_NextIDIsSmallestFree(t *testing.T) {
	tab := NewTable()
	for i, pgid := range []int{10, 20, 30} {
		id, ok := tab.NextID(8)
		require.True(t, ok)
		require.Equal(t, i, id)
		require.NoError(t, tab.Insert(id, pgid, []int{pgid}, "cmd"))
	}

	_, _, ok := tab.RemoveProcess(20)
	require.True(t, ok)
	require.True(t, tab.RemoveJob(1))

	id, ok := tab.NextID(8)
	require.True(t, ok)
	assert.Equal(t, 1, id)
}

func TestTable_NextIDExhausted(t *testing.T) {
	tab := NewTable()
	require.NoError(t, tab.Insert(0, 10, []int{10}, "a"))
	require.NoError(t, tab.Insert(1, 20, []int{20}, "b"))

	_, ok := tab.NextID(2)
	assert.False(t, ok)
}

func TestTable_InsertRejectsDuplicates(t *testing.T) {
	tab := NewTable()
	require.NoError(t, tab.Insert(0, 10, []int{10, 11}, "a | b"))

	require.ErrorIs(t, tab.Insert(0, 20, []int{20}, "c"), ErrDuplicate)
	require.ErrorIs(t, tab.Insert(1, 10, []int{21}, "c"), ErrDuplicate)
	require.ErrorIs(t, tab.Insert(1, 20, []int{11}, "c"), ErrDuplicate)
	assert.Equal(t, 1, tab.Len())
	require.NoError(t, tab.Check())
}

func TestTable_RemoveJobRefusesWhileMembersRemain(t *testing.T) {
	tab := NewTable()
	require.NoError(t, tab.Insert(0, 10, []int{10, 11}, "a | b"))

	jobID, pgid, ok := tab.RemoveProcess(10)
	require.True(t, ok)
	assert.Equal(t, 0, jobID)
	assert.Equal(t, 10, pgid)
	assert.False(t, tab.GroupEmpty(10))
	assert.False(t, tab.RemoveJob(0))

	_, _, ok = tab.RemoveProcess(11)
	require.True(t, ok)
	assert.True(t, tab.GroupEmpty(10))
	assert.True(t, tab.RemoveJob(0))
	assert.Equal(t, 0, tab.Len())
	require.NoError(t, tab.Check())
}

func TestTable_GroupStopped(t *testing.T) {
	tab := NewTable()
	require.NoError(t, tab.Insert(0, 10, []int{10, 11}, "a | b"))

	assert.False(t, tab.GroupStopped(10))

	prev, ok := tab.SetState(10, Stopped)
	require.True(t, ok)
	assert.Equal(t, Running, prev)
	assert.False(t, tab.GroupStopped(10))

	tab.SetState(11, Stopped)
	assert.True(t, tab.GroupStopped(10))

	_, ok = tab.SetState(99, Stopped)
	assert.False(t, ok)
	assert.False(t, tab.GroupStopped(99))
}

func TestTable_SetGroupState(t *testing.T) {
	tab := NewTable()
	require.NoError(t, tab.Insert(0, 10, []int{10, 11}, "a | b"))
	tab.SetGroupState(10, Stopped)
	assert.True(t, tab.GroupStopped(10))

	tab.SetGroupState(10, Running)
	for _, pid := range []int{10, 11} {
		p, ok := tab.Process(pid)
		require.True(t, ok)
		assert.Equal(t, Running, p.State)
	}

	tab.SetGroupState(99, Stopped)
	require.NoError(t, tab.Check())
}

func TestTable_JobsOrderedByID(t *testing.T) {
	tab := NewTable()
	require.NoError(t, tab.Insert(2, 30, []int{30}, "c"))
	require.NoError(t, tab.Insert(0, 10, []int{10}, "a"))
	require.NoError(t, tab.Insert(1, 20, []int{20}, "b"))

	var ids []int
	for _, j := range tab.Jobs() {
		ids = append(ids, j.ID)
	}
	assert.Equal(t, []int{0, 1, 2}, ids)
}

func TestTable_RemoveUnknownProcess(t *testing.T) {
	tab := NewTable()
	_, _, ok := tab.RemoveProcess(1)
	assert.False(t, ok)
	assert.False(t, tab.RemoveJob(3))
}

// TestTable_Invariants drives random launches, exits and stops and
// checks the cross-index invariants after every step.
func TestTable_Invariants(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		const limit = 6
		tab := NewTable()
		nextPid := 100

		trackedPids := func() []int {
			keys := make([]int, 0, len(tab.procs))
			for k := range tab.procs {
				keys = append(keys, k)
			}
			slices.Sort(keys)
			return keys
		}

		t.Repeat(map[string]func(*rapid.T){
			"launch": func(t *rapid.T) {
				id, ok := tab.NextID(limit)
				if !ok {
					t.Skip("table full")
				}
				for i := 0; i < id; i++ {
					if _, used := tab.Job(i); !used {
						t.Fatalf("NextID returned %d but %d is free", id, i)
					}
				}
				n := rapid.IntRange(1, 2).Draw(t, "stages")
				pids := make([]int, n)
				for i := range pids {
					pids[i] = nextPid
					nextPid++
				}
				if err := tab.Insert(id, pids[0], pids, "cmd"); err != nil {
					t.Fatalf("insert: %v", err)
				}
			},
			"exit": func(t *rapid.T) {
				pids := trackedPids()
				if len(pids) == 0 {
					t.Skip("nothing running")
				}
				pid := rapid.SampledFrom(pids).Draw(t, "pid")
				jobID, pgid, ok := tab.RemoveProcess(pid)
				if !ok {
					t.Fatalf("pid %d was tracked but could not be removed", pid)
				}
				empty := tab.GroupEmpty(pgid)
				if removed := tab.RemoveJob(jobID); removed != empty {
					t.Fatalf("RemoveJob(%d) = %v with group empty = %v", jobID, removed, empty)
				}
			},
			"stop": func(t *rapid.T) {
				pids := trackedPids()
				if len(pids) == 0 {
					t.Skip("nothing running")
				}
				tab.SetState(rapid.SampledFrom(pids).Draw(t, "pid"), Stopped)
			},
			"continue": func(t *rapid.T) {
				pids := trackedPids()
				if len(pids) == 0 {
					t.Skip("nothing running")
				}
				tab.SetState(rapid.SampledFrom(pids).Draw(t, "pid"), Running)
			},
			"": func(t *rapid.T) {
				if err := tab.Check(); err != nil {
					t.Fatal(err)
				}
			},
		})
	})
}
