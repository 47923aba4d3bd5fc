// Copyright DAQCore Project contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package core

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.daqcore.io/tdo/messages"
)

func decision(triggerNumber messages.TriggerNumber) messages.TriggerDecision {
	return messages.TriggerDecision{TriggerNumber: triggerNumber, RunNumber: 7}
}

func assign(t *testing.T, slot *DestinationSlot, triggerNumber messages.TriggerNumber) {
	t.Helper()
	a := slot.MakeAssignment(decision(triggerNumber))
	require.Equal(t, slot.Name(), a.ConnectionName)
	slot.AddAssignment(a)
}

func TestSlotBusyHysteresis(t *testing.T) {
	slot := NewDestinationSlot("trb_a", 3, 1)

	assign(t, slot, 1)
	assert.False(t, slot.IsBusy())
	assign(t, slot, 2)
	assert.False(t, slot.IsBusy())
	assign(t, slot, 3)
	assert.True(t, slot.IsBusy())
	assert.Equal(t, 3, slot.UsedSlots())

	// Busy falls only at the free threshold.
	_, err := slot.CompleteAssignment(3, nil)
	require.NoError(t, err)
	assert.True(t, slot.IsBusy())
	_, err = slot.CompleteAssignment(2, nil)
	require.NoError(t, err)
	assert.False(t, slot.IsBusy())

	// And rises again only at the busy threshold.
	assign(t, slot, 4)
	assert.False(t, slot.IsBusy())
	assign(t, slot, 5)
	assert.True(t, slot.IsBusy())
}

func TestSlotZeroBusyThresholdIsAlwaysBusy(t *testing.T) {
	slot := NewDestinationSlot("trb_a", 0, 0)
	assert.False(t, slot.IsBusy())

	// The first busy evaluation happens on the first mutation.
	assign(t, slot, 1)
	assert.True(t, slot.IsBusy())
	_, err := slot.CompleteAssignment(1, nil)
	require.NoError(t, err)
	assert.True(t, slot.IsBusy())
}

func TestCompleteAssignmentNotFound(t *testing.T) {
	slot := NewDestinationSlot("trb_a", 2, 1)
	assign(t, slot, 1)

	_, err := slot.CompleteAssignment(99, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAssignedTriggerDecisionNotFound))
	assert.Equal(t, 1, slot.UsedSlots())
}

func TestCompleteAssignmentInvokesMetadataFunction(t *testing.T) {
	slot := NewDestinationSlot("trb_a", 2, 1)
	assign(t, slot, 1)

	annotated := false
	a, err := slot.CompleteAssignment(1, func(a *AssignedTriggerDecision, completedAtNs int64) {
		annotated = true
		assert.GreaterOrEqual(t, completedAtNs, a.AssignedTime)
		if a.CompletionMetadata == nil {
			a.CompletionMetadata = make(map[string]string)
		}
		a.CompletionMetadata["annotated"] = "yes"
	})
	require.NoError(t, err)
	assert.True(t, annotated)
	assert.Equal(t, "yes", a.CompletionMetadata["annotated"])
	assert.Equal(t, 0, slot.UsedSlots())
}

func TestFlushRemovesEverything(t *testing.T) {
	slot := NewDestinationSlot("trb_a", 2, 1)
	assign(t, slot, 1)
	assign(t, slot, 2)
	require.True(t, slot.IsBusy())

	remnants := slot.Flush()
	assert.Len(t, remnants, 2)
	assert.Equal(t, 0, slot.UsedSlots())
	assert.False(t, slot.IsBusy())

	numbers := map[messages.TriggerNumber]bool{}
	for _, r := range remnants {
		numbers[r.Decision.TriggerNumber] = true
	}
	assert.True(t, numbers[1])
	assert.True(t, numbers[2])
}

func TestInErrorFlag(t *testing.T) {
	slot := NewDestinationSlot("trb_a", 2, 1)
	assert.False(t, slot.IsInError())
	slot.SetInError(true)
	assert.True(t, slot.IsInError())
	slot.SetInError(false)
	assert.False(t, slot.IsInError())
}
