// Copyright DAQCore Project contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package messages defines the dataflow messages exchanged between the
// trigger logic, the orchestrator and the trigger-record builder apps.
package messages

// RunNumber identifies a bounded data-acquisition period. Messages
// across runs are isolated.
type RunNumber uint64

// TriggerNumber is a monotonic decision identifier within a run.
type TriggerNumber uint64

// TimestampTicks is a hardware clock timestamp carried by decisions.
type TimestampTicks uint64

// TriggerType discriminates the trigger algorithm that produced a decision.
type TriggerType uint16

// TriggerDecision is a directive from upstream trigger logic to build one
// event record. Copyable by value.
type TriggerDecision struct {
	TriggerNumber    TriggerNumber  `json:"trigger_number"`
	RunNumber        RunNumber      `json:"run_number"`
	TriggerTimestamp TimestampTicks `json:"trigger_timestamp"`
	TriggerType      TriggerType    `json:"trigger_type"`
}

// TriggerDecisionToken is the completion receipt emitted by a
// trigger-record builder when it finishes a decision.
type TriggerDecisionToken struct {
	RunNumber           RunNumber     `json:"run_number"`
	TriggerNumber       TriggerNumber `json:"trigger_number"`
	DecisionDestination string        `json:"decision_destination"`
}

// TriggerInhibit is the only message the orchestrator emits upstream. It
// asks the trigger logic to stop (busy) or resume (not busy) emitting
// decisions.
type TriggerInhibit struct {
	Busy      bool      `json:"busy"`
	RunNumber RunNumber `json:"run_number"`
}

// Fragment is one block of detector data addressed to a trigger record.
// The orchestrator core never inspects fragments; they are handled by the
// peripheral fragment receiver.
type Fragment struct {
	RunNumber     RunNumber     `json:"run_number"`
	TriggerNumber TriggerNumber `json:"trigger_number"`
	DetectorType  string        `json:"detector_type"`
	APANumber     int           `json:"apa_number"`
	LinkNumber    int           `json:"link_number"`
	Payload       []byte        `json:"payload"`
}
