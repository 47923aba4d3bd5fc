// Copyright DAQCore Project contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package agents

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.daqcore.io/tdo/iomanager"
	"go.daqcore.io/tdo/messages"
)

func newAgentFixture(t *testing.T) (*TriggerInhibitAgent, iomanager.Sender[messages.TriggerDecision], chan messages.TriggerInhibit) {
	t.Helper()

	iom := iomanager.New()
	require.NoError(t, iomanager.Register[messages.TriggerDecision](iom, iomanager.NewQueue[messages.TriggerDecision]("decisions", 16)))
	require.NoError(t, iomanager.Register[messages.TriggerInhibit](iom, iomanager.NewQueue[messages.TriggerInhibit]("inhibits", 16)))

	receiver, err := iomanager.GetReceiver[messages.TriggerDecision](iom, "decisions")
	require.NoError(t, err)
	sender, err := iomanager.GetSender[messages.TriggerInhibit](iom, "inhibits")
	require.NoError(t, err)

	agent := NewTriggerInhibitAgent("agent-under-test", receiver, sender, 50*time.Millisecond)
	agent.checkInterval = 5 * time.Millisecond

	inhibits := make(chan messages.TriggerInhibit, 16)
	require.NoError(t, iomanager.AddCallback[messages.TriggerInhibit](iom, "inhibits", func(m messages.TriggerInhibit) {
		inhibits <- m
	}))
	t.Cleanup(func() {
		_ = iomanager.RemoveCallback[messages.TriggerInhibit](iom, "inhibits")
	})

	decisions, err := iomanager.GetSender[messages.TriggerDecision](iom, "decisions")
	require.NoError(t, err)
	return agent, decisions, inhibits
}

func awaitAgentInhibit(t *testing.T, inhibits chan messages.TriggerInhibit, timeout time.Duration) (messages.TriggerInhibit, bool) {
	t.Helper()
	select {
	case m := <-inhibits:
		return m, true
	case <-time.After(timeout):
		return messages.TriggerInhibit{}, false
	}
}

func TestAgentAssertsInhibitAtThreshold(t *testing.T) {
	agent, decisions, inhibits := newAgentFixture(t)
	agent.SetThresholdForInhibit(5)
	agent.StartChecking(3)
	defer agent.StopChecking()

	// A spread below the threshold keeps the agent silent.
	require.NoError(t, decisions.Send(messages.TriggerDecision{TriggerNumber: 4, RunNumber: 3}, time.Second))
	_, ok := awaitAgentInhibit(t, inhibits, 50*time.Millisecond)
	assert.False(t, ok)

	// Crossing the threshold emits exactly one inhibit.
	require.NoError(t, decisions.Send(messages.TriggerDecision{TriggerNumber: 10, RunNumber: 3}, time.Second))
	m, ok := awaitAgentInhibit(t, inhibits, time.Second)
	require.True(t, ok)
	assert.True(t, m.Busy)
	assert.Equal(t, messages.RunNumber(3), m.RunNumber)
	_, ok = awaitAgentInhibit(t, inhibits, 50*time.Millisecond)
	assert.False(t, ok, "inhibit re-emitted without a state change")
}

func TestAgentReleasesInhibitWhenChainCatchesUp(t *testing.T) {
	agent, decisions, inhibits := newAgentFixture(t)
	agent.SetThresholdForInhibit(3)
	agent.StartChecking(3)
	defer agent.StopChecking()

	require.NoError(t, decisions.Send(messages.TriggerDecision{TriggerNumber: 8, RunNumber: 3}, time.Second))
	m, ok := awaitAgentInhibit(t, inhibits, time.Second)
	require.True(t, ok)
	require.True(t, m.Busy)

	agent.SetLatestTriggerNumber(7)
	m, ok = awaitAgentInhibit(t, inhibits, time.Second)
	require.True(t, ok)
	assert.False(t, m.Busy)
}

func TestAgentZeroThresholdNeverInhibits(t *testing.T) {
	agent, decisions, inhibits := newAgentFixture(t)
	agent.StartChecking(3)
	defer agent.StopChecking()

	require.NoError(t, decisions.Send(messages.TriggerDecision{TriggerNumber: 1000, RunNumber: 3}, time.Second))
	_, ok := awaitAgentInhibit(t, inhibits, 50*time.Millisecond)
	assert.False(t, ok)
}

func TestAgentStartStopIdempotence(t *testing.T) {
	agent, _, _ := newAgentFixture(t)

	agent.StartChecking(1)
	agent.StartChecking(1)
	agent.StopChecking()
	agent.StopChecking()
}
