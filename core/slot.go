// Copyright DAQCore Project contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package core

import (
	"errors"
	"fmt"
	"sync"

	"go.daqcore.io/tdo/messages"
	"go.daqcore.io/tdo/metering"
)

// ErrAssignedTriggerDecisionNotFound means a token referred to a trigger
// number not tracked in the named slot.
var ErrAssignedTriggerDecisionNotFound = errors.New("ErrAssignedTriggerDecisionNotFound")

// DestinationSlot tracks the outstanding assignments of one trigger-record
// builder. The busy flag is hysteretic: it rises once the outstanding count
// reaches the busy threshold and falls only when the count is back at the
// free threshold. All mutations are serialized by the slot's own lock; the
// decision and token callbacks may touch the same slot concurrently.
type DestinationSlot struct {
	name          string
	busyThreshold uint32
	freeThreshold uint32

	mu          sync.Mutex
	outstanding map[messages.TriggerNumber]*AssignedTriggerDecision
	busy        bool
	inError     bool
}

// NewDestinationSlot creates a slot for the named destination. The caller
// must guarantee busyThreshold >= freeThreshold.
func NewDestinationSlot(name string, busyThreshold, freeThreshold uint32) *DestinationSlot {
	return &DestinationSlot{
		name:          name,
		busyThreshold: busyThreshold,
		freeThreshold: freeThreshold,
		outstanding:   make(map[messages.TriggerNumber]*AssignedTriggerDecision),
	}
}

// Name returns the logical destination identifier, which is also the name
// of its decision connection.
func (s *DestinationSlot) Name() string {
	return s.name
}

// IsBusy returns the current hysteretic busy state.
func (s *DestinationSlot) IsBusy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busy
}

// UsedSlots returns the number of outstanding assignments.
func (s *DestinationSlot) UsedSlots() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.outstanding)
}

// MakeAssignment builds a tentative assignment for this destination without
// inserting it. The dispatcher inserts via AddAssignment only after the
// network send succeeded.
func (s *DestinationSlot) MakeAssignment(decision messages.TriggerDecision) *AssignedTriggerDecision {
	return &AssignedTriggerDecision{
		Decision:       decision,
		ConnectionName: s.name,
	}
}

// AddAssignment inserts the assignment, stamps its assigned time and updates
// the busy state.
func (s *DestinationSlot) AddAssignment(a *AssignedTriggerDecision) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a.AssignedTime = metering.Monotime()
	s.outstanding[a.Decision.TriggerNumber] = a
	s.updateBusyLocked()
}

// CompleteAssignment removes and returns the assignment matching the trigger
// number. The metadata function, if any, annotates the returned record.
func (s *DestinationSlot) CompleteAssignment(triggerNumber messages.TriggerNumber, metadata MetadataFunc) (*AssignedTriggerDecision, error) {
	s.mu.Lock()
	a, found := s.outstanding[triggerNumber]
	if !found {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: trigger number %d is not assigned to %s", ErrAssignedTriggerDecisionNotFound, triggerNumber, s.name)
	}
	delete(s.outstanding, triggerNumber)
	s.updateBusyLocked()
	s.mu.Unlock()

	if metadata != nil {
		metadata(a, metering.Monotime())
	}
	return a, nil
}

// Flush removes and returns all outstanding assignments. Used only during
// the stop drain.
func (s *DestinationSlot) Flush() []*AssignedTriggerDecision {
	s.mu.Lock()
	defer s.mu.Unlock()
	remnants := make([]*AssignedTriggerDecision, 0, len(s.outstanding))
	for _, a := range s.outstanding {
		remnants = append(remnants, a)
	}
	s.outstanding = make(map[messages.TriggerNumber]*AssignedTriggerDecision)
	s.updateBusyLocked()
	return remnants
}

// SetInError flags or clears the dispatch-failure state of the destination.
func (s *DestinationSlot) SetInError(inError bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inError = inError
}

// IsInError reports whether the last dispatch to this destination failed
// after retries and no token has arrived since.
func (s *DestinationSlot) IsInError() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inError
}

// updateBusyLocked applies the hysteresis rule: busy rises at the busy
// threshold and falls at the free threshold; in between the previous state
// is kept.
func (s *DestinationSlot) updateBusyLocked() {
	used := uint32(len(s.outstanding))
	switch {
	case used >= s.busyThreshold:
		s.busy = true
	case used <= s.freeThreshold:
		s.busy = false
	}
}
