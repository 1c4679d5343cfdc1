package scheduler

import (
	"sort"
	"sync"

	"github.com/robfig/cron/v3"
)

// Entry is one installed per-user trigger.
type Entry struct {
	ID               cron.EntryID
	NotificationTime string
}

// Registry maps user ids to their cron entries. Build one per Scheduler.
type Registry struct {
	mu      sync.Mutex
	entries map[int64]Entry
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[int64]Entry)}
}

// Update runs fn under the registry lock with the user's current entry.
// fn returns the entry to store; ok=false removes the user.
func (r *Registry) Update(userID int64, fn func(prev Entry, exists bool) (next Entry, ok bool, err error)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev, exists := r.entries[userID]
	next, ok, err := fn(prev, exists)
	if err != nil {
		return err
	}
	if ok {
		r.entries[userID] = next
	} else {
		delete(r.entries, userID)
	}
	return nil
}

func (r *Registry) Get(userID int64) (Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[userID]
	return e, ok
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// UserIDs returns the scheduled user ids in ascending order.
func (r *Registry) UserIDs() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]int64, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
