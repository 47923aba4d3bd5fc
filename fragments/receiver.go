// Copyright DAQCore Project contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package fragments

import (
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"go.daqcore.io/tdo/iomanager"
	"go.daqcore.io/tdo/messages"
)

// ReceiverInfo is the monitoring record of a fragment receiver.
type ReceiverInfo struct {
	FragmentsReceived int64 `json:"fragments_received"`
}

// Receiver is the peripheral module that forwards fragments from its input
// connection to its output sender. It shares the configure/start/stop/
// scrap lifecycle of the orchestrator but carries no per-destination
// state.
type Receiver struct {
	iom             *iomanager.IOManager
	inputConnection string
	output          iomanager.Sender[messages.Fragment]

	queueTimeout time.Duration
	runNumber    atomic.Uint64

	receivedFragments atomic.Int64
}

// NewReceiver resolves the input and output connections.
func NewReceiver(iom *iomanager.IOManager, inputConnection, outputConnection string) (*Receiver, error) {
	if _, err := iomanager.GetReceiver[messages.Fragment](iom, inputConnection); err != nil {
		return nil, err
	}
	output, err := iomanager.GetSender[messages.Fragment](iom, outputConnection)
	if err != nil {
		return nil, err
	}
	return &Receiver{
		iom:             iom,
		inputConnection: inputConnection,
		output:          output,
	}, nil
}

// Configure sets the send timeout.
func (r *Receiver) Configure(generalQueueTimeoutMs int64) {
	r.queueTimeout = time.Duration(generalQueueTimeoutMs) * time.Millisecond
}

// Start binds the fragment callback for the new run.
func (r *Receiver) Start(run messages.RunNumber) error {
	r.receivedFragments.Store(0)
	r.runNumber.Store(uint64(run))
	if err := iomanager.AddCallback[messages.Fragment](r.iom, r.inputConnection, r.dispatchFragment); err != nil {
		return err
	}
	log.WithField("run", run).Info("Fragment receiver successfully started")
	return nil
}

// Stop unbinds the fragment callback.
func (r *Receiver) Stop() error {
	if err := iomanager.RemoveCallback[messages.Fragment](r.iom, r.inputConnection); err != nil {
		return err
	}
	log.Info("Fragment receiver successfully stopped")
	return nil
}

// GetInfo returns the live fragment counter.
func (r *Receiver) GetInfo() ReceiverInfo {
	return ReceiverInfo{FragmentsReceived: r.receivedFragments.Load()}
}

func (r *Receiver) dispatchFragment(fragment messages.Fragment) {
	if err := r.output.Send(fragment, r.queueTimeout); err != nil {
		log.WithError(err).WithField("connection", r.output.Name()).Warn("Send of fragment failed")
		return
	}
	r.receivedFragments.Add(1)
}
