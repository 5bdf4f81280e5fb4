package playback

import (
	"slices"
	"sync"
)

// FocalSet holds the speakers the most recent response was addressed to.
// Only focal speakers can interrupt playback.
type FocalSet struct {
	mu      sync.RWMutex
	members map[string]struct{}
}

// NewFocalSet returns an empty set.
func NewFocalSet() *FocalSet {
	return &FocalSet{members: make(map[string]struct{})}
}

// Replace swaps the whole set for ids.
func (f *FocalSet) Replace(ids []string) {
	next := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		next[id] = struct{}{}
	}
	f.mu.Lock()
	f.members = next
	f.mu.Unlock()
}

// Clear empties the set.
func (f *FocalSet) Clear() {
	f.Replace(nil)
}

// Contains reports whether id is focal.
func (f *FocalSet) Contains(id string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, ok := f.members[id]
	return ok
}

// Members returns the sorted members.
func (f *FocalSet) Members() []string {
	f.mu.RLock()
	out := make([]string, 0, len(f.members))
	for id := range f.members {
		out = append(out, id)
	}
	f.mu.RUnlock()
	slices.Sort(out)
	return out
}
