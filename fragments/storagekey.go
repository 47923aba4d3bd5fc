// Copyright DAQCore Project contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package fragments holds the peripheral fragment receiver and the storage
// key used to identify a block of data.
package fragments

import (
	"math"

	"go.daqcore.io/tdo/messages"
)

// Invalid sentinel values for StorageKey fields.
const (
	InvalidRunNumber     = math.MaxInt32
	InvalidTriggerNumber = math.MaxInt32
	InvalidAPANumber     = math.MaxInt32
	InvalidLinkNumber    = math.MaxInt32
)

// StorageKey identifies a given block of data.
type StorageKey struct {
	runNumber     int
	triggerNumber int
	detectorType  string
	apaNumber     int
	linkNumber    int
}

// NewStorageKey ...
func NewStorageKey(runNumber, triggerNumber int, detectorType string, apaNumber, linkNumber int) StorageKey {
	return StorageKey{
		runNumber:     runNumber,
		triggerNumber: triggerNumber,
		detectorType:  detectorType,
		apaNumber:     apaNumber,
		linkNumber:    linkNumber,
	}
}

// KeyFor derives the storage key of a fragment.
func KeyFor(f messages.Fragment) StorageKey {
	return NewStorageKey(int(f.RunNumber), int(f.TriggerNumber), f.DetectorType, f.APANumber, f.LinkNumber)
}

func (k StorageKey) RunNumber() int {
	return k.runNumber
}

func (k StorageKey) TriggerNumber() int {
	return k.triggerNumber
}

func (k StorageKey) DetectorType() string {
	return k.detectorType
}

func (k StorageKey) APANumber() int {
	return k.apaNumber
}

func (k StorageKey) LinkNumber() int {
	return k.linkNumber
}
