// Transilio - Plex Auto-Skip Controller
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/transilio

package engine

import "sync"

// ignoreEntry is a node in the ignore list's recency order.
type ignoreEntry struct {
	key  string
	prev *ignoreEntry
	next *ignoreEntry
}

// ignoreList is a fixed-capacity set of session identifiers. Once full,
// the oldest identifier falls off; an evicted session that is still alive
// simply goes through admission again on its next alert.
//
// A doubly-linked list gives O(1) add and eviction, a map O(1) lookup.
// head.next is the most recently ignored entry, tail.prev the oldest.
type ignoreList struct {
	mu       sync.Mutex
	capacity int
	items    map[string]*ignoreEntry
	head     *ignoreEntry
	tail     *ignoreEntry
}

func newIgnoreList(capacity int) *ignoreList {
	l := &ignoreList{
		capacity: capacity,
		items:    make(map[string]*ignoreEntry, capacity),
		head:     &ignoreEntry{},
		tail:     &ignoreEntry{},
	}
	l.head.next = l.tail
	l.tail.prev = l.head
	return l
}

// Add records a session identifier, refreshing its position when it is
// already on the list.
func (l *ignoreList) Add(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if entry, ok := l.items[key]; ok {
		l.moveToFront(entry)
		return
	}

	entry := &ignoreEntry{key: key}
	l.addToFront(entry)
	l.items[key] = entry

	for len(l.items) > l.capacity {
		l.evictOldest()
	}
}

// Contains reports whether the identifier is ignored. Lookups do not
// refresh recency: an entry ages from the moment it was ignored, no
// matter how often the player keeps alerting.
func (l *ignoreList) Contains(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.items[key]
	return ok
}

// Len returns the number of ignored identifiers.
func (l *ignoreList) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.items)
}

// addToFront links an entry in as the most recent. Caller holds mu.
func (l *ignoreList) addToFront(entry *ignoreEntry) {
	entry.prev = l.head
	entry.next = l.head.next
	l.head.next.prev = entry
	l.head.next = entry
}

// moveToFront relinks an existing entry as the most recent. Caller holds mu.
func (l *ignoreList) moveToFront(entry *ignoreEntry) {
	entry.prev.next = entry.next
	entry.next.prev = entry.prev
	l.addToFront(entry)
}

// evictOldest drops the least recently ignored entry. Caller holds mu.
func (l *ignoreList) evictOldest() {
	oldest := l.tail.prev
	if oldest == l.head {
		return
	}
	oldest.prev.next = oldest.next
	oldest.next.prev = oldest.prev
	delete(l.items, oldest.key)
}
