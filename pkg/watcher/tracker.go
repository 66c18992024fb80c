package watcher

import (
	"sort"
	"sync"
	"time"
)

// lockSet is an in-memory Tracker
type lockSet struct {
	mu    sync.Mutex
	since map[string]time.Time
}

// NewTracker creates an empty tracker
func NewTracker() Tracker {
	return &lockSet{since: make(map[string]time.Time)}
}

func (l *lockSet) Acquire(path string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, held := l.since[path]; held {
		return false
	}
	l.since[path] = time.Now()
	return true
}

func (l *lockSet) Release(path string) {
	l.mu.Lock()
	delete(l.since, path)
	l.mu.Unlock()
}

func (l *lockSet) Held(path string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, held := l.since[path]
	return held
}

// Expire drops locks held longer than olderThan and returns how many
func (l *lockSet) Expire(olderThan time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := time.Now().Add(-olderThan)
	expired := 0
	for path, since := range l.since {
		if since.Before(cutoff) {
			delete(l.since, path)
			expired++
		}
	}
	return expired
}

// Paths returns the held paths in sorted order
func (l *lockSet) Paths() []string {
	l.mu.Lock()
	paths := make([]string, 0, len(l.since))
	for path := range l.since {
		paths = append(paths, path)
	}
	l.mu.Unlock()

	sort.Strings(paths)
	return paths
}
