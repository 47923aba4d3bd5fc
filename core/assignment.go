// Copyright DAQCore Project contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package core holds the destination bookkeeping of the trigger decision
// orchestrator: per-destination slots with hysteretic busy state and the
// insertion-ordered registry with its round-robin cursor.
package core

import (
	"go.daqcore.io/tdo/messages"
)

// AssignedTriggerDecision is the record of one decision handed to one
// trigger-record builder. It is owned by a single DestinationSlot from
// successful dispatch until the matching token arrives or the stop drain
// flushes it.
type AssignedTriggerDecision struct {
	Decision       messages.TriggerDecision
	ConnectionName string

	// AssignedTime is the metering.Monotime nanosecond timestamp taken at
	// the moment of successful transmission.
	AssignedTime int64

	// CompletionMetadata is filled by the injected MetadataFunc when the
	// assignment completes. Empty in the core.
	CompletionMetadata map[string]string
}

// MetadataFunc annotates a completed assignment. completedAtNs is the
// metering.Monotime timestamp of the completion.
type MetadataFunc func(a *AssignedTriggerDecision, completedAtNs int64)
