/*
Package chat contains the core logic of the realtime presence-and-chat hub.

This file defines the Registry, the authoritative mapping from connection id to
UserRecord. The registry is not safe for concurrent use on its own: the hub run
loop is its single owner, which gives mutual exclusion without locks. It is
injected into the hub as an explicit dependency so it can be exercised without
a live transport.
*/
package chat

import (
	"sort"

	"github.com/samber/lo"

	"aquahub/internal/app/user"
)

// registryEntry pairs a record with its join sequence so snapshots come out in
// a stable join order.
type registryEntry struct {
	record user.UserRecord
	seq    uint64
}

// Registry is the server-side authoritative map from connection id to UserRecord.
type Registry struct {
	entries map[string]registryEntry
	nextSeq uint64
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]registryEntry),
	}
}

// Put inserts or replaces the record for the given connection id.
// A replacement keeps the original join sequence.
func (r *Registry) Put(id string, record user.UserRecord) {
	seq := r.nextSeq
	if existing, ok := r.entries[id]; ok {
		seq = existing.seq
	} else {
		r.nextSeq++
	}

	r.entries[id] = registryEntry{record: record, seq: seq}
}

// Get returns the record for the given connection id, if present.
func (r *Registry) Get(id string) (user.UserRecord, bool) {
	entry, ok := r.entries[id]
	return entry.record, ok
}

// Update applies mutate to the record for the given connection id in place.
// It reports whether a record existed; an absent id is a no-op.
func (r *Registry) Update(id string, mutate func(*user.UserRecord)) bool {
	entry, ok := r.entries[id]
	if !ok {
		return false
	}

	mutate(&entry.record)
	r.entries[id] = entry
	return true
}

// Remove deletes the record for the given connection id and returns it, so the
// caller can synthesize a leave notice from the last-known name.
func (r *Registry) Remove(id string) (user.UserRecord, bool) {
	entry, ok := r.entries[id]
	if !ok {
		return user.UserRecord{}, false
	}

	delete(r.entries, id)
	return entry.record, true
}

// Len returns the number of live records.
func (r *Registry) Len() int {
	return len(r.entries)
}

// Snapshot returns a full, consistent copy of every record ordered by join
// sequence. It is the payload of every users:update broadcast and must be taken
// after the triggering mutation, never interleaved with one.
func (r *Registry) Snapshot() []user.UserRecord {
	entries := lo.Values(r.entries)

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].seq < entries[j].seq
	})

	return lo.Map(entries, func(e registryEntry, _ int) user.UserRecord {
		return e.record
	})
}
