package service

import (
	"strings"
	"sync"
)

// Deduplicator is the session's set of resolved booking ids. It only grows; a new session
// gets a new set.
type Deduplicator struct {
	mu       sync.RWMutex
	resolved map[string]struct{}
}

func NewDeduplicator() *Deduplicator {
	return &Deduplicator{resolved: make(map[string]struct{})}
}

// ShouldAccept reports whether an offer for bookingID may still be surfaced.
func (d *Deduplicator) ShouldAccept(bookingID string) bool {
	return !d.Contains(bookingID)
}

// MarkResolved records bookingID as accepted, rejected or taken.
func (d *Deduplicator) MarkResolved(bookingID string) {
	bookingID = strings.TrimSpace(bookingID)
	if bookingID == "" {
		return
	}
	d.mu.Lock()
	d.resolved[bookingID] = struct{}{}
	d.mu.Unlock()
}

func (d *Deduplicator) Contains(bookingID string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.resolved[strings.TrimSpace(bookingID)]
	return ok
}

func (d *Deduplicator) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.resolved)
}
