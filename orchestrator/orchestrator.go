// Copyright DAQCore Project contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package orchestrator implements the trigger decision orchestrator: it
// dispatches every inbound trigger decision to one eligible trigger-record
// builder, reconciles completion tokens against the outstanding
// assignments and drives the global trigger inhibit from destination
// availability.
package orchestrator

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"go.daqcore.io/tdo/core"
	"go.daqcore.io/tdo/iomanager"
	"go.daqcore.io/tdo/messages"
	"go.daqcore.io/tdo/metering"
	"go.daqcore.io/tdo/monitoring"
)

const stopWaitSteps = 20

const defaultQueueTimeout = 100 * time.Millisecond

// ErrInvalidThresholds means a configured destination has a free threshold
// above its busy threshold.
var ErrInvalidThresholds = errors.New("ErrInvalidThresholds")

// ErrStillRunning is returned by scrap while a run is in progress.
var ErrStillRunning = errors.New("ErrStillRunning")

type destinationStats struct {
	completedRecords  atomic.Int64
	waitingTimeMicros atomic.Int64
}

// Orchestrator coordinates decision dispatch, token reconciliation and the
// inhibit signal. Lifecycle commands (Configure, Start, Stop, Scrap) are
// driven by the external controller; the decision and token callbacks run
// on transport-owned goroutines and may execute concurrently with each
// other.
type Orchestrator struct {
	instanceID uuid.UUID
	iom        *iomanager.IOManager

	tokenConnection string
	tdConnection    string
	busySender      iomanager.Sender[messages.TriggerInhibit]

	registry *core.DestinationRegistry

	queueTimeout  time.Duration
	stopTimeout   time.Duration
	tdSendRetries int

	runNumber atomic.Uint64
	running   atomic.Bool

	// inhibitMu serializes the only-on-change check, the inhibit send and
	// the last-notified store so racing decision and token callbacks cannot
	// reorder emissions past the state update.
	inhibitMu        sync.Mutex
	lastNotifiedBusy bool

	metadataFn core.MetadataFunc

	receivedTokens    atomic.Int64
	receivedDecisions atomic.Int64
	sentDecisions     atomic.Int64

	waitingForDecision  atomic.Int64
	decidingDestination atomic.Int64
	forwardingDecision  atomic.Int64
	waitingForToken     atomic.Int64
	processingToken     atomic.Int64

	// Touched only by the owning callback goroutine and by Start, which
	// happens before the callbacks are bound.
	lastTDReceived    int64
	lastTokenReceived int64

	statsMu  sync.Mutex
	appStats map[string]*destinationStats
}

// New builds an orchestrator over the injected transport. The three
// mandatory connections are the inbound token stream, the inbound decision
// stream and the outbound inhibit stream; all must be registered before
// init.
func New(iom *iomanager.IOManager, tokenConnection, tdConnection, busyConnection string) (*Orchestrator, error) {
	if _, err := iomanager.GetReceiver[messages.TriggerDecisionToken](iom, tokenConnection); err != nil {
		return nil, err
	}
	if _, err := iomanager.GetReceiver[messages.TriggerDecision](iom, tdConnection); err != nil {
		return nil, err
	}
	busySender, err := iomanager.GetSender[messages.TriggerInhibit](iom, busyConnection)
	if err != nil {
		return nil, err
	}

	o := &Orchestrator{
		instanceID:      uuid.New(),
		iom:             iom,
		tokenConnection: tokenConnection,
		tdConnection:    tdConnection,
		busySender:      busySender,
		registry:        core.NewDestinationRegistry(),
		queueTimeout:    defaultQueueTimeout,
		appStats:        make(map[string]*destinationStats),
	}
	log.WithField("instanceId", o.instanceID).Info("Trigger decision orchestrator created")
	return o, nil
}

// SetMetadataFunction injects the hook that annotates completed
// assignments. Must be called before start.
func (o *Orchestrator) SetMetadataFunction(fn core.MetadataFunc) {
	o.metadataFn = fn
}

// Configure creates the destination slots in payload order and records the
// timeouts and the send retry budget. It is the only command that may fail
// on user input.
func (o *Orchestrator) Configure(params ConfParams) error {
	for _, app := range params.DataflowApplications {
		if app.Thresholds.Busy < app.Thresholds.Free {
			return fmt.Errorf("%w: %s busy=%d free=%d", ErrInvalidThresholds,
				app.ConnectionUID, app.Thresholds.Busy, app.Thresholds.Free)
		}
	}

	o.registry.Clear()
	o.statsMu.Lock()
	o.appStats = make(map[string]*destinationStats)
	o.statsMu.Unlock()

	for _, app := range params.DataflowApplications {
		log.WithFields(log.Fields{
			"destination": app.ConnectionUID,
			"busy":        app.Thresholds.Busy,
			"free":        app.Thresholds.Free,
		}).Debug("Creating dataflow availability slot")
		slot := core.NewDestinationSlot(app.ConnectionUID, app.Thresholds.Busy, app.Thresholds.Free)
		if err := o.registry.Insert(slot); err != nil {
			return err
		}
		o.statsMu.Lock()
		o.appStats[app.ConnectionUID] = &destinationStats{}
		o.statsMu.Unlock()
	}

	o.queueTimeout = time.Duration(params.GeneralQueueTimeoutMs) * time.Millisecond
	o.stopTimeout = time.Duration(params.StopTimeoutMs) * time.Millisecond
	o.tdSendRetries = params.TDSendRetries

	log.Infof("Configured with %d TRB apps defined", o.registry.Size())
	return nil
}

// Start initializes the run context and binds the token and decision
// callbacks.
func (o *Orchestrator) Start(params StartParams) error {
	o.receivedTokens.Store(0)
	o.runNumber.Store(uint64(params.Run))

	o.running.Store(true)
	o.inhibitMu.Lock()
	o.lastNotifiedBusy = false
	o.inhibitMu.Unlock()
	o.registry.ResetCursor()
	o.registry.ResetAwait()

	now := metering.Monotime()
	o.lastTDReceived = now
	o.lastTokenReceived = now

	if err := iomanager.AddCallback[messages.TriggerDecisionToken](o.iom, o.tokenConnection, o.receiveTriggerCompleteToken); err != nil {
		return err
	}
	if err := iomanager.AddCallback[messages.TriggerDecision](o.iom, o.tdConnection, o.receiveTriggerDecision); err != nil {
		return err
	}

	log.WithField("run", params.Run).Info("Trigger decision orchestrator started")
	return nil
}

// Stop freezes the run context, drains outstanding assignments for up to
// the stop timeout and reports every assignment that never received a
// token.
func (o *Orchestrator) Stop() error {
	o.running.Store(false)
	o.registry.CancelAwait()

	if err := iomanager.RemoveCallback[messages.TriggerDecision](o.iom, o.tdConnection); err != nil {
		return err
	}

	// The token callback stays bound so in-flight work can still complete.
	stepTimeout := o.stopTimeout / stopWaitSteps
	for step := 0; step < stopWaitSteps && !o.isEmpty(); step++ {
		time.Sleep(stepTimeout)
	}

	if err := iomanager.RemoveCallback[messages.TriggerDecisionToken](o.iom, o.tokenConnection); err != nil {
		return err
	}

	var remnants []*core.AssignedTriggerDecision
	o.registry.Visit(func(slot *core.DestinationSlot) {
		remnants = append(remnants, slot.Flush()...)
	})
	for _, r := range remnants {
		log.WithFields(log.Fields{
			"triggerNumber": r.Decision.TriggerNumber,
			"destination":   r.ConnectionName,
		}).Error("Incomplete trigger decision removed at stop")
	}

	log.Info("Trigger decision orchestrator successfully stopped")
	return nil
}

// Scrap clears the destination registry and the per-destination stats.
// Valid only after stop.
func (o *Orchestrator) Scrap() error {
	if o.running.Load() {
		return ErrStillRunning
	}

	o.registry.Clear()
	o.statsMu.Lock()
	o.appStats = make(map[string]*destinationStats)
	o.statsMu.Unlock()

	log.Info("Trigger decision orchestrator successfully scrapped")
	return nil
}

// receiveTriggerDecision is the delivery callback of the decision stream.
func (o *Orchestrator) receiveTriggerDecision(decision messages.TriggerDecision) {
	if run := messages.RunNumber(o.runNumber.Load()); decision.RunNumber != run {
		log.WithFields(log.Fields{
			"decisionRun": decision.RunNumber,
			"currentRun":  run,
			"source":      "MLT",
		}).Warn("Run number mismatch, dropping trigger decision")
		return
	}

	o.receivedDecisions.Add(1)
	decisionReceived := metering.Monotime()
	decisionAssigned := decisionReceived

	for o.running.Load() {
		epoch := o.registry.FreedEpoch()
		assignment := o.registry.FindSlot(decision)
		if assignment == nil {
			// Every destination is busy or in error. Wait for the token
			// path to free a slot; cancelled by stop.
			if !o.registry.AwaitFreed(epoch) {
				break
			}
			continue
		}

		decisionAssigned = metering.Monotime()
		slot, _ := o.registry.Lookup(assignment.ConnectionName)
		if o.dispatch(assignment) {
			slot.AddAssignment(assignment)
			break
		}

		log.WithField("destination", assignment.ConnectionName).Error("Could not send trigger decision, marking TRB app in error")
		slot.SetInError(true)
	}

	o.notifyTrigger(o.isBusy())

	now := metering.Monotime()
	o.waitingForDecision.Add(metering.Micros(decisionReceived - o.lastTDReceived))
	o.lastTDReceived = now
	o.decidingDestination.Add(metering.Micros(decisionAssigned - decisionReceived))
	o.forwardingDecision.Add(metering.Micros(now - decisionAssigned))
}

// dispatch sends the assigned decision over the destination connection.
// The retry budget and the running flag are orthogonal limits; at least
// one attempt is always made.
func (o *Orchestrator) dispatch(assignment *core.AssignedTriggerDecision) bool {
	sent := false
	retries := o.tdSendRetries
	for {
		sender, err := iomanager.GetSender[messages.TriggerDecision](o.iom, assignment.ConnectionName)
		if err == nil {
			decisionCopy := assignment.Decision
			err = sender.Send(decisionCopy, o.queueTimeout)
		}
		if err != nil {
			log.WithError(err).WithField("connection", assignment.ConnectionName).Warn("Send of trigger decision failed")
		} else {
			sent = true
			o.sentDecisions.Add(1)
		}

		retries--
		if sent || retries <= 0 || !o.running.Load() {
			break
		}
	}
	return sent
}

// receiveTriggerCompleteToken is the delivery callback of the token
// stream.
func (o *Orchestrator) receiveTriggerCompleteToken(token messages.TriggerDecisionToken) {
	if run := messages.RunNumber(o.runNumber.Load()); token.RunNumber != run {
		log.WithFields(log.Fields{
			"tokenRun":   token.RunNumber,
			"currentRun": run,
			"source":     token.DecisionDestination,
		}).Warn("Run number mismatch, dropping token")
		return
	}

	slot, found := o.registry.Lookup(token.DecisionDestination)
	if !found {
		log.WithField("destination", token.DecisionDestination).Warn("Received token from unknown source")
		return
	}

	o.receivedTokens.Add(1)
	callbackStart := metering.Monotime()

	assignment, err := slot.CompleteAssignment(token.TriggerNumber, o.metadataFn)
	if err != nil {
		log.WithError(err).Warn("Token does not match any outstanding assignment")
	} else {
		stats := o.destinationStats(token.DecisionDestination)
		if stats != nil {
			stats.completedRecords.Add(1)
			stats.waitingTimeMicros.Add(metering.Micros(metering.Monotime() - assignment.AssignedTime))
		}
	}

	if slot.IsInError() {
		log.WithField("destination", token.DecisionDestination).Info("TRB app has reconnected")
		slot.SetInError(false)
	}

	o.registry.NotifyFreed()

	if !slot.IsBusy() {
		o.notifyTrigger(false)
	}

	now := metering.Monotime()
	o.waitingForToken.Add(metering.Micros(callbackStart - o.lastTokenReceived))
	o.lastTokenReceived = now
	o.processingToken.Add(metering.Micros(now - callbackStart))
}

// isBusy is the global busy predicate: true iff every destination is busy.
// An empty registry reports busy; configure is assumed to run before
// start.
func (o *Orchestrator) isBusy() bool {
	busy := true
	o.registry.Visit(func(slot *core.DestinationSlot) {
		if !slot.IsBusy() {
			busy = false
		}
	})
	return busy
}

// isEmpty reports whether no destination has outstanding assignments.
func (o *Orchestrator) isEmpty() bool {
	empty := true
	o.registry.Visit(func(slot *core.DestinationSlot) {
		if slot.UsedSlots() != 0 {
			empty = false
		}
	})
	return empty
}

// notifyTrigger emits a TriggerInhibit iff busy differs from the last
// successfully emitted value. Transport failures are retried while the
// run is in progress; the last-notified value is only updated after a
// successful send.
func (o *Orchestrator) notifyTrigger(busy bool) {
	o.inhibitMu.Lock()
	defer o.inhibitMu.Unlock()

	if busy == o.lastNotifiedBusy {
		return
	}

	for {
		message := messages.TriggerInhibit{Busy: busy, RunNumber: messages.RunNumber(o.runNumber.Load())}
		if err := o.busySender.Send(message, o.queueTimeout); err != nil {
			log.WithError(err).Warnf("Send with sender %q failed", o.busySender.Name())
			if o.running.Load() {
				continue
			}
			return
		}
		o.lastNotifiedBusy = busy
		log.WithField("busy", busy).Debug("Trigger inhibit notified")
		return
	}
}

func (o *Orchestrator) destinationStats(name string) *destinationStats {
	o.statsMu.Lock()
	defer o.statsMu.Unlock()
	return o.appStats[name]
}

// GetInfo fills the monitoring info record. Counters and accumulators are
// exchanged to zero on read; outstanding decisions are a live reading.
func (o *Orchestrator) GetInfo() monitoring.Info {
	info := monitoring.Info{
		TokensReceived:    o.receivedTokens.Swap(0),
		DecisionsSent:     o.sentDecisions.Swap(0),
		DecisionsReceived: o.receivedDecisions.Swap(0),

		WaitingForDecision:  o.waitingForDecision.Swap(0),
		DecidingDestination: o.decidingDestination.Swap(0),
		ForwardingDecision:  o.forwardingDecision.Swap(0),
		WaitingForToken:     o.waitingForToken.Swap(0),
		ProcessingToken:     o.processingToken.Swap(0),

		Destinations: make(map[string]monitoring.DestinationInfo),
	}

	o.statsMu.Lock()
	defer o.statsMu.Unlock()
	for name, stats := range o.appStats {
		outstanding := 0
		if slot, found := o.registry.Lookup(name); found {
			outstanding = slot.UsedSlots()
		}
		info.Destinations[name] = monitoring.DestinationInfo{
			OutstandingDecisions:    outstanding,
			CompletedTriggerRecords: stats.completedRecords.Swap(0),
			WaitingTime:             stats.waitingTimeMicros.Swap(0),
		}
	}
	return info
}

// InternalState describes the orchestrator state for debugging purposes.
func (o *Orchestrator) InternalState() *monitoring.InternalStateDescription {
	desc := &monitoring.InternalStateDescription{
		InstanceID:     o.instanceID.String(),
		RunNumber:      o.runNumber.Load(),
		Running:        o.running.Load(),
		LastAssignment: o.registry.CursorName(),
	}
	o.registry.Visit(func(slot *core.DestinationSlot) {
		desc.Destinations = append(desc.Destinations, monitoring.DestinationDescription{
			Name:                 slot.Name(),
			Busy:                 slot.IsBusy(),
			InError:              slot.IsInError(),
			OutstandingDecisions: slot.UsedSlots(),
		})
	})
	return desc
}
