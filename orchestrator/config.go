// Copyright DAQCore Project contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package orchestrator

import (
	"go.daqcore.io/tdo/messages"
)

// Thresholds bound the outstanding-assignment hysteresis of one
// destination: busy rises at Busy, falls back at Free. Busy >= Free.
type Thresholds struct {
	Busy uint32 `json:"busy" yaml:"busy"`
	Free uint32 `json:"free" yaml:"free"`
}

// DataflowApplication configures one trigger-record builder destination.
// ConnectionUID doubles as the name of its decision connection.
type DataflowApplication struct {
	ConnectionUID string     `json:"connection_uid" yaml:"connection_uid"`
	Thresholds    Thresholds `json:"thresholds" yaml:"thresholds"`
}

// ConfParams is the configure payload. Iteration order of
// DataflowApplications is preserved and determines round-robin fairness.
type ConfParams struct {
	DataflowApplications []DataflowApplication `json:"dataflow_applications" yaml:"dataflow_applications"`

	// GeneralQueueTimeoutMs bounds every outbound send, in milliseconds.
	GeneralQueueTimeoutMs int64 `json:"general_queue_timeout" yaml:"general_queue_timeout"`

	// StopTimeoutMs bounds the stop drain, in milliseconds.
	StopTimeoutMs int64 `json:"stop_timeout" yaml:"stop_timeout"`

	// TDSendRetries is the per-decision send attempt budget.
	TDSendRetries int `json:"td_send_retries" yaml:"td_send_retries"`
}

// StartParams is the start payload.
type StartParams struct {
	Run messages.RunNumber `json:"run" yaml:"run"`
}
