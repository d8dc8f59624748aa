package experiment

import (
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/acqlab/launcher/internal/supervise"
)

// ActiveRun is the registry entry for a run in flight. The supervisor
// pointer changes across engine relaunches, so reads go through a mutex.
type ActiveRun struct {
	RunUuid    string
	Experiment string
	StartedAt  time.Time

	mu  sync.Mutex
	sup *supervise.Supervisor
}

func (a *ActiveRun) SetSupervisor(s *supervise.Supervisor) {
	a.mu.Lock()
	a.sup = s
	a.mu.Unlock()
}

// PeakMemory reports the current peak resident memory of the run in bytes,
// or zero before the first launch.
func (a *ActiveRun) PeakMemory() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.sup == nil {
		return 0
	}
	return a.sup.PeakMemory()
}

func (a *ActiveRun) IsRunning() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.sup == nil {
		return false
	}
	return a.sup.IsRunning()
}

// Registry tracks runs in flight. Dispatch listeners and batch runs touch
// it from several goroutines.
type Registry struct {
	runs *xsync.MapOf[string, *ActiveRun]
}

func NewRegistry() *Registry {
	return &Registry{runs: xsync.NewMapOf[string, *ActiveRun]()}
}

func (r *Registry) Add(runUuid string, experiment string) *ActiveRun {
	active := &ActiveRun{
		RunUuid:    runUuid,
		Experiment: experiment,
		StartedAt:  time.Now(),
	}
	r.runs.Store(runUuid, active)
	return active
}

func (r *Registry) Remove(runUuid string) {
	r.runs.Delete(runUuid)
}

func (r *Registry) Get(runUuid string) (*ActiveRun, bool) {
	return r.runs.Load(runUuid)
}

func (r *Registry) Len() int {
	return r.runs.Size()
}

func (r *Registry) Snapshot() []*ActiveRun {
	var out []*ActiveRun
	r.runs.Range(func(_ string, active *ActiveRun) bool {
		out = append(out, active)
		return true
	})
	return out
}
