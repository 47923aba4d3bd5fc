// Copyright DAQCore Project contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package iomanager

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.daqcore.io/tdo/messages"
)

func TestRegisterAndLookup(t *testing.T) {
	m := New()
	require.NoError(t, Register[messages.TriggerDecision](m, NewQueue[messages.TriggerDecision]("td", 4)))

	sender, err := GetSender[messages.TriggerDecision](m, "td")
	require.NoError(t, err)
	assert.Equal(t, "td", sender.Name())

	_, err = GetReceiver[messages.TriggerDecision](m, "td")
	require.NoError(t, err)
}

func TestLookupUnknownConnection(t *testing.T) {
	m := New()
	_, err := GetSender[messages.TriggerDecision](m, "missing")
	assert.True(t, errors.Is(err, ErrConnectionNotFound))
}

func TestLookupTypeMismatch(t *testing.T) {
	m := New()
	require.NoError(t, Register[messages.TriggerDecision](m, NewQueue[messages.TriggerDecision]("td", 4)))

	_, err := GetSender[messages.TriggerDecisionToken](m, "td")
	assert.True(t, errors.Is(err, ErrConnectionTypeMismatch))
}

func TestDuplicateRegistration(t *testing.T) {
	m := New()
	require.NoError(t, Register[messages.TriggerDecision](m, NewQueue[messages.TriggerDecision]("td", 4)))
	err := Register[messages.TriggerDecision](m, NewQueue[messages.TriggerDecision]("td", 4))
	assert.True(t, errors.Is(err, ErrDuplicateConnection))
}

func TestSendTimesOutWhenQueueStaysFull(t *testing.T) {
	m := New()
	require.NoError(t, Register[messages.TriggerInhibit](m, NewQueue[messages.TriggerInhibit]("busy", 1)))
	sender, err := GetSender[messages.TriggerInhibit](m, "busy")
	require.NoError(t, err)

	require.NoError(t, sender.Send(messages.TriggerInhibit{Busy: true}, 10*time.Millisecond))
	err = sender.Send(messages.TriggerInhibit{Busy: false}, 10*time.Millisecond)
	assert.True(t, errors.Is(err, ErrSendTimeout))
}

func TestCallbackDeliversQueuedMessagesInOrder(t *testing.T) {
	m := New()
	require.NoError(t, Register[messages.TriggerDecision](m, NewQueue[messages.TriggerDecision]("td", 8)))
	sender, err := GetSender[messages.TriggerDecision](m, "td")
	require.NoError(t, err)

	// Messages sent before a callback is bound stay queued.
	for tn := 1; tn <= 3; tn++ {
		require.NoError(t, sender.Send(messages.TriggerDecision{TriggerNumber: messages.TriggerNumber(tn)}, time.Millisecond))
	}

	delivered := make(chan messages.TriggerNumber, 8)
	require.NoError(t, AddCallback[messages.TriggerDecision](m, "td", func(d messages.TriggerDecision) {
		delivered <- d.TriggerNumber
	}))

	for tn := 1; tn <= 3; tn++ {
		select {
		case got := <-delivered:
			assert.Equal(t, messages.TriggerNumber(tn), got)
		case <-time.After(time.Second):
			t.Fatalf("message %d was not delivered", tn)
		}
	}
}

func TestRemoveCallbackStopsDelivery(t *testing.T) {
	m := New()
	require.NoError(t, Register[messages.TriggerDecision](m, NewQueue[messages.TriggerDecision]("td", 8)))
	sender, err := GetSender[messages.TriggerDecision](m, "td")
	require.NoError(t, err)

	delivered := make(chan messages.TriggerNumber, 8)
	require.NoError(t, AddCallback[messages.TriggerDecision](m, "td", func(d messages.TriggerDecision) {
		delivered <- d.TriggerNumber
	}))
	require.NoError(t, RemoveCallback[messages.TriggerDecision](m, "td"))

	require.NoError(t, sender.Send(messages.TriggerDecision{TriggerNumber: 1}, time.Millisecond))
	select {
	case <-delivered:
		t.Fatal("message delivered after RemoveCallback")
	case <-time.After(50 * time.Millisecond):
	}

	// Rebinding resumes delivery of retained messages.
	require.NoError(t, AddCallback[messages.TriggerDecision](m, "td", func(d messages.TriggerDecision) {
		delivered <- d.TriggerNumber
	}))
	select {
	case got := <-delivered:
		assert.Equal(t, messages.TriggerNumber(1), got)
	case <-time.After(time.Second):
		t.Fatal("retained message was not delivered after rebinding")
	}
	require.NoError(t, RemoveCallback[messages.TriggerDecision](m, "td"))
}

func TestRemoveCallbackWithoutBindingIsANoop(t *testing.T) {
	m := New()
	require.NoError(t, Register[messages.TriggerDecision](m, NewQueue[messages.TriggerDecision]("td", 1)))
	assert.NoError(t, RemoveCallback[messages.TriggerDecision](m, "td"))
}
