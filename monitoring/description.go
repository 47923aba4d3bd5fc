// Copyright DAQCore Project contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package monitoring defines the operational info records sampled by the
// monitoring collector and the internal-state description served for
// debugging.
package monitoring

import (
	"encoding/json"

	log "github.com/sirupsen/logrus"
)

// Info is the orchestrator counter snapshot. Every counter is
// atomic-exchanged to zero on read; time accumulators are in microseconds.
type Info struct {
	TokensReceived    int64 `json:"tokens_received"`
	DecisionsSent     int64 `json:"decisions_sent"`
	DecisionsReceived int64 `json:"decisions_received"`

	WaitingForDecision  int64 `json:"waiting_for_decision"`
	DecidingDestination int64 `json:"deciding_destination"`
	ForwardingDecision  int64 `json:"forwarding_decision"`
	WaitingForToken     int64 `json:"waiting_for_token"`
	ProcessingToken     int64 `json:"processing_token"`

	Destinations map[string]DestinationInfo `json:"destinations"`
}

// DestinationInfo is the per-destination sub-record. OutstandingDecisions
// is a live reading; the other two fields are exchanged to zero on read.
type DestinationInfo struct {
	OutstandingDecisions    int   `json:"outstanding_decisions"`
	CompletedTriggerRecords int64 `json:"completed_trigger_records"`
	WaitingTime             int64 `json:"waiting_time"`
}

// DestinationDescription describes one slot for debugging purposes.
type DestinationDescription struct {
	Name                 string `json:"name"`
	Busy                 bool   `json:"busy"`
	InError              bool   `json:"inError"`
	OutstandingDecisions int    `json:"outstandingDecisions"`
}

// InternalStateDescription describes the orchestrator state for debugging
// purposes.
type InternalStateDescription struct {
	InstanceID     string                   `json:"instanceId"`
	RunNumber      uint64                   `json:"runNumber"`
	Running        bool                     `json:"running"`
	LastAssignment string                   `json:"lastAssignment"`
	Destinations   []DestinationDescription `json:"destinations"`
}

func (s *InternalStateDescription) AsJSON() []byte {
	bytes, err := json.Marshal(s)
	if err != nil {
		log.Panicf("Failed to marshal internal state: %s", err)
	}
	return bytes
}
