// Copyright DAQCore Project contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package fragments

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.daqcore.io/tdo/iomanager"
	"go.daqcore.io/tdo/messages"
)

func TestReceiverForwardsFragments(t *testing.T) {
	iom := iomanager.New()
	require.NoError(t, iomanager.Register[messages.Fragment](iom, iomanager.NewQueue[messages.Fragment]("fragments_in", 8)))
	require.NoError(t, iomanager.Register[messages.Fragment](iom, iomanager.NewQueue[messages.Fragment]("fragments_out", 8)))

	receiver, err := NewReceiver(iom, "fragments_in", "fragments_out")
	require.NoError(t, err)
	receiver.Configure(50)

	forwarded := make(chan messages.Fragment, 8)
	require.NoError(t, iomanager.AddCallback[messages.Fragment](iom, "fragments_out", func(f messages.Fragment) {
		forwarded <- f
	}))
	t.Cleanup(func() {
		_ = iomanager.RemoveCallback[messages.Fragment](iom, "fragments_out")
	})

	require.NoError(t, receiver.Start(3))
	defer func() {
		require.NoError(t, receiver.Stop())
	}()

	input, err := iomanager.GetSender[messages.Fragment](iom, "fragments_in")
	require.NoError(t, err)

	fragment := messages.Fragment{
		RunNumber:     3,
		TriggerNumber: 17,
		DetectorType:  "TPC",
		APANumber:     2,
		LinkNumber:    5,
	}
	require.NoError(t, input.Send(fragment, time.Second))

	select {
	case got := <-forwarded:
		assert.Equal(t, fragment, got)
	case <-time.After(time.Second):
		t.Fatal("fragment was not forwarded")
	}

	deadline := time.Now().Add(time.Second)
	for receiver.GetInfo().FragmentsReceived != 1 && time.Now().Before(deadline) {
		time.Sleep(2 * time.Millisecond)
	}
	assert.Equal(t, int64(1), receiver.GetInfo().FragmentsReceived)
}

func TestNewReceiverRequiresConnections(t *testing.T) {
	iom := iomanager.New()
	require.NoError(t, iomanager.Register[messages.Fragment](iom, iomanager.NewQueue[messages.Fragment]("fragments_in", 8)))

	_, err := NewReceiver(iom, "fragments_in", "missing")
	assert.Error(t, err)
	_, err = NewReceiver(iom, "missing", "fragments_in")
	assert.Error(t, err)
}

func TestStorageKeyForFragment(t *testing.T) {
	key := KeyFor(messages.Fragment{
		RunNumber:     3,
		TriggerNumber: 17,
		DetectorType:  "TPC",
		APANumber:     2,
		LinkNumber:    5,
	})

	assert.Equal(t, 3, key.RunNumber())
	assert.Equal(t, 17, key.TriggerNumber())
	assert.Equal(t, "TPC", key.DetectorType())
	assert.Equal(t, 2, key.APANumber())
	assert.Equal(t, 5, key.LinkNumber())
}

func TestStorageKeyInvalidSentinels(t *testing.T) {
	key := NewStorageKey(InvalidRunNumber, InvalidTriggerNumber, "Invalid", InvalidAPANumber, InvalidLinkNumber)
	assert.Equal(t, InvalidRunNumber, key.RunNumber())
	assert.Equal(t, InvalidTriggerNumber, key.TriggerNumber())
}
