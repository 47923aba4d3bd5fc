// Copyright DAQCore Project contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package agents holds peripheral watchdog agents that run alongside the
// orchestrator core.
package agents

import (
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"go.daqcore.io/tdo/iomanager"
	"go.daqcore.io/tdo/messages"
)

const defaultCheckInterval = 100 * time.Millisecond

// TriggerInhibitAgent infers a trigger inhibit from the spread between the
// newest trigger number seen entering the processing chain and the newest
// one reported leaving it. It is independent of the orchestrator core,
// which drives the inhibit directly from destination availability; the
// agent serves deployments where only decision counts are observable.
type TriggerInhibitAgent struct {
	name          string
	receiver      iomanager.Receiver[messages.TriggerDecision]
	sender        iomanager.Sender[messages.TriggerInhibit]
	queueTimeout  time.Duration
	checkInterval time.Duration

	thresholdForInhibit atomic.Uint32
	chainHead           atomic.Uint64
	chainTail           atomic.Uint64
	runNumber           atomic.Uint64

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

// NewTriggerInhibitAgent wires the agent between a decision receiver and
// an inhibit sender. A zero threshold disables checking.
func NewTriggerInhibitAgent(name string, receiver iomanager.Receiver[messages.TriggerDecision], sender iomanager.Sender[messages.TriggerInhibit], queueTimeout time.Duration) *TriggerInhibitAgent {
	return &TriggerInhibitAgent{
		name:          name,
		receiver:      receiver,
		sender:        sender,
		queueTimeout:  queueTimeout,
		checkInterval: defaultCheckInterval,
	}
}

// SetThresholdForInhibit sets the in-flight trigger-number spread at which
// the agent asserts the inhibit.
func (a *TriggerInhibitAgent) SetThresholdForInhibit(value uint32) {
	a.thresholdForInhibit.Store(value)
}

// SetLatestTriggerNumber records the newest trigger number observed at the
// end of the processing chain.
func (a *TriggerInhibitAgent) SetLatestTriggerNumber(triggerNumber messages.TriggerNumber) {
	a.chainTail.Store(uint64(triggerNumber))
}

// StartChecking binds the decision callback and starts the periodic
// worker.
func (a *TriggerInhibitAgent) StartChecking(run messages.RunNumber) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stop != nil {
		return
	}

	a.runNumber.Store(uint64(run))
	a.receiver.AddCallback(func(decision messages.TriggerDecision) {
		a.chainHead.Store(uint64(decision.TriggerNumber))
	})

	stop := make(chan struct{})
	done := make(chan struct{})
	a.stop, a.done = stop, done
	go a.doWork(stop, done)

	log.WithFields(log.Fields{"agent": a.name, "run": run}).Info("Trigger inhibit agent started checking")
}

// StopChecking unbinds the callback and stops the worker.
func (a *TriggerInhibitAgent) StopChecking() {
	a.mu.Lock()
	stop, done := a.stop, a.done
	a.stop, a.done = nil, nil
	a.mu.Unlock()

	if stop == nil {
		return
	}
	a.receiver.RemoveCallback()
	close(stop)
	<-done
	log.WithField("agent", a.name).Info("Trigger inhibit agent stopped checking")
}

func (a *TriggerInhibitAgent) doWork(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(a.checkInterval)
	defer ticker.Stop()

	lastInhibited := false
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		threshold := a.thresholdForInhibit.Load()
		if threshold == 0 {
			continue
		}

		head := a.chainHead.Load()
		tail := a.chainTail.Load()
		inhibit := head > tail && head-tail >= uint64(threshold)
		if inhibit == lastInhibited {
			continue
		}

		message := messages.TriggerInhibit{
			Busy:      inhibit,
			RunNumber: messages.RunNumber(a.runNumber.Load()),
		}
		if err := a.sender.Send(message, a.queueTimeout); err != nil {
			log.WithError(err).WithField("agent", a.name).Warn("Send of trigger inhibit failed")
			continue
		}
		lastInhibited = inhibit
	}
}
