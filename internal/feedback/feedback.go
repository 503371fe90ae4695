// Package feedback tracks short-lived "just added" flags that clear
// themselves after a delay.
package feedback

import (
	"cmp"
	"slices"
	"sync"
	"time"
)

// Key identifies a flag: an item (a product id) flagged for an owner (a user
// id). Comparing whole keys keeps owners apart whatever characters their ids
// contain.
type Key struct {
	Owner string
	Item  string
}

// Indicator holds flags per Key. Each flag expires after the configured
// delay; marking an active key again restarts its delay.
type Indicator struct {
	delay time.Duration

	mu      sync.Mutex
	flags   map[Key]*flag
	stopped bool
}

type flag struct {
	timer *time.Timer
	gen   uint64
}

// New creates an indicator whose flags last for delay.
func New(delay time.Duration) *Indicator {
	return &Indicator{
		delay: delay,
		flags: make(map[Key]*flag),
	}
}

// Mark sets key and schedules it to clear. Marking after Stop is a no-op.
func (i *Indicator) Mark(key Key) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.stopped {
		return
	}

	f, ok := i.flags[key]
	if ok {
		f.timer.Stop()
		f.gen++
	} else {
		f = &flag{}
		i.flags[key] = f
	}

	gen := f.gen
	f.timer = time.AfterFunc(i.delay, func() { i.expire(key, gen) })
}

// expire clears key unless it was re-marked after this timer was scheduled.
func (i *Indicator) expire(key Key, gen uint64) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if f, ok := i.flags[key]; ok && f.gen == gen {
		delete(i.flags, key)
	}
}

// Active reports whether key is currently flagged.
func (i *Indicator) Active(key Key) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	_, ok := i.flags[key]
	return ok
}

// ActiveKeys returns all flagged keys sorted by owner, then item.
func (i *Indicator) ActiveKeys() []Key {
	i.mu.Lock()
	defer i.mu.Unlock()
	out := make([]Key, 0, len(i.flags))
	for k := range i.flags {
		out = append(out, k)
	}
	slices.SortFunc(out, func(a, b Key) int {
		return cmp.Or(cmp.Compare(a.Owner, b.Owner), cmp.Compare(a.Item, b.Item))
	})
	return out
}

// ActiveFor returns the flagged items of owner, sorted.
func (i *Indicator) ActiveFor(owner string) []string {
	i.mu.Lock()
	defer i.mu.Unlock()
	out := make([]string, 0)
	for k := range i.flags {
		if k.Owner == owner {
			out = append(out, k.Item)
		}
	}
	slices.Sort(out)
	return out
}

// Clear removes key immediately.
func (i *Indicator) Clear(key Key) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if f, ok := i.flags[key]; ok {
		f.timer.Stop()
		delete(i.flags, key)
	}
}

// Stop cancels every pending timer and drops all flags.
func (i *Indicator) Stop() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.stopped = true
	for k, f := range i.flags {
		f.timer.Stop()
		delete(i.flags, k)
	}
}
