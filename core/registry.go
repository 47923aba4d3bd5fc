// Copyright DAQCore Project contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package core

import (
	"errors"
	"fmt"
	"sync"

	"go.daqcore.io/tdo/messages"
)

// ErrDuplicateDestination ...
var ErrDuplicateDestination = errors.New("ErrDuplicateDestination")

// cursorEnd is the sentinel position of the round-robin cursor before the
// first assignment of a run.
const cursorEnd = -1

// DestinationRegistry is the insertion-ordered set of configured
// destinations with the persistent round-robin cursor. The set itself is
// immutable between configure and scrap; only the cursor and the freed
// epoch move during a run.
//
// The freed epoch and its condition replace the source's selection spin:
// the token path bumps the epoch whenever a slot may have become eligible,
// and the dispatcher waits on it when a probe revolution finds no
// candidate.
type DestinationRegistry struct {
	mu    sync.Mutex
	names []string
	slots map[string]*DestinationSlot

	cursor int

	freed     *sync.Cond
	freedSeq  uint64
	cancelled bool
}

// NewDestinationRegistry returns an empty registry with the cursor at the
// end sentinel.
func NewDestinationRegistry() *DestinationRegistry {
	r := &DestinationRegistry{
		slots:  make(map[string]*DestinationSlot),
		cursor: cursorEnd,
	}
	r.freed = sync.NewCond(&r.mu)
	return r
}

// Insert registers a slot. Iteration and round-robin selection follow
// insertion order.
func (r *DestinationRegistry) Insert(slot *DestinationSlot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, found := r.slots[slot.Name()]; found {
		return fmt.Errorf("%w: %s", ErrDuplicateDestination, slot.Name())
	}
	r.names = append(r.names, slot.Name())
	r.slots[slot.Name()] = slot
	return nil
}

// Lookup returns the slot registered under name.
func (r *DestinationRegistry) Lookup(name string) (*DestinationSlot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	slot, found := r.slots[name]
	return slot, found
}

// Size returns the number of registered destinations.
func (r *DestinationRegistry) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.names)
}

// Visit calls fn for every slot in insertion order.
func (r *DestinationRegistry) Visit(fn func(*DestinationSlot)) {
	r.mu.Lock()
	names := append([]string(nil), r.names...)
	slots := r.slots
	r.mu.Unlock()

	for _, name := range names {
		fn(slots[name])
	}
}

// Clear removes every destination and resets the cursor. Called by scrap.
func (r *DestinationRegistry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.names = nil
	r.slots = make(map[string]*DestinationSlot)
	r.cursor = cursorEnd
}

// ResetCursor moves the round-robin cursor back to the end sentinel.
// Called by start.
func (r *DestinationRegistry) ResetCursor() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cursor = cursorEnd
}

// CursorName returns the destination the cursor points at, or the empty
// string for the end sentinel.
func (r *DestinationRegistry) CursorName() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cursor == cursorEnd {
		return ""
	}
	return r.names[r.cursor]
}

// FindSlot probes at most one full revolution starting one step past the
// cursor (or at the first destination if the cursor is at the end
// sentinel). Destinations that are busy or in error are skipped. On
// success the cursor advances to the picked destination and a tentative
// assignment is returned; nil means no destination is currently eligible.
func (r *DestinationRegistry) FindSlot(decision messages.TriggerDecision) *AssignedTriggerDecision {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := len(r.names)
	if n == 0 {
		return nil
	}

	idx := r.cursor + 1
	if idx >= n {
		idx = 0
	}

	for probed := 0; probed < n; probed++ {
		slot := r.slots[r.names[idx]]
		if !slot.IsInError() && !slot.IsBusy() {
			r.cursor = idx
			return slot.MakeAssignment(decision)
		}
		idx++
		if idx >= n {
			idx = 0
		}
	}
	return nil
}

// FreedEpoch returns the current freed epoch. Sample it before FindSlot so
// that a completion arriving between the probe and the wait is not missed.
func (r *DestinationRegistry) FreedEpoch() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.freedSeq
}

// AwaitFreed blocks until the freed epoch has moved past the sampled value
// or the wait is cancelled. It returns false when cancelled.
func (r *DestinationRegistry) AwaitFreed(epoch uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for r.freedSeq == epoch && !r.cancelled {
		r.freed.Wait()
	}
	return !r.cancelled
}

// NotifyFreed bumps the freed epoch and wakes waiting dispatchers. Called
// by the token path after a completion or an in-error clear.
func (r *DestinationRegistry) NotifyFreed() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.freedSeq++
	r.freed.Broadcast()
}

// CancelAwait aborts current and future AwaitFreed calls. Called by stop.
func (r *DestinationRegistry) CancelAwait() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancelled = true
	r.freed.Broadcast()
}

// ResetAwait re-arms AwaitFreed for a new run.
func (r *DestinationRegistry) ResetAwait() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancelled = false
}
