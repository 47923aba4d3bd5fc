// Copyright DAQCore Project contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package iomanager provides named, typed, bidirectional connections between
// dataflow applications. Senders enqueue with a bounded timeout; receivers
// deliver messages by invoking a registered callback on a connection-owned
// goroutine, one message at a time.
package iomanager

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrConnectionNotFound ...
var ErrConnectionNotFound = errors.New("ErrConnectionNotFound")

// ErrConnectionTypeMismatch means a connection name is registered with a
// different message type than the one requested.
var ErrConnectionTypeMismatch = errors.New("ErrConnectionTypeMismatch")

// ErrDuplicateConnection ...
var ErrDuplicateConnection = errors.New("ErrDuplicateConnection")

// ErrSendTimeout means the destination queue stayed full for the whole
// send timeout.
var ErrSendTimeout = errors.New("ErrSendTimeout")

// Sender is the outbound half of a named connection.
type Sender[T any] interface {
	Name() string
	Send(msg T, timeout time.Duration) error
}

// Receiver is the inbound half of a named connection. Callbacks are invoked
// serially per connection; two different connections may invoke their
// callbacks concurrently.
type Receiver[T any] interface {
	Name() string
	AddCallback(fn func(T))
	RemoveCallback()
}

// Connection is a named bidirectional channel.
type Connection[T any] interface {
	Sender[T]
	Receiver[T]
}

// IOManager is the registry of named connections for one process.
type IOManager struct {
	mu          sync.Mutex
	connections map[string]interface{}
}

// New returns an empty IOManager.
func New() *IOManager {
	return &IOManager{connections: make(map[string]interface{})}
}

// Register adds a connection under its name.
func Register[T any](m *IOManager, conn Connection[T]) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, found := m.connections[conn.Name()]; found {
		return fmt.Errorf("%w: %s", ErrDuplicateConnection, conn.Name())
	}
	m.connections[conn.Name()] = conn
	return nil
}

func lookup[T any](m *IOManager, name string) (Connection[T], error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, found := m.connections[name]
	if !found {
		return nil, fmt.Errorf("%w: %s", ErrConnectionNotFound, name)
	}
	conn, ok := raw.(Connection[T])
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrConnectionTypeMismatch, name)
	}
	return conn, nil
}

// GetSender returns the typed sender handle for a registered connection.
func GetSender[T any](m *IOManager, name string) (Sender[T], error) {
	return lookup[T](m, name)
}

// GetReceiver returns the typed receiver handle for a registered connection.
func GetReceiver[T any](m *IOManager, name string) (Receiver[T], error) {
	return lookup[T](m, name)
}

// AddCallback binds fn as the delivery callback of a registered connection.
func AddCallback[T any](m *IOManager, name string, fn func(T)) error {
	recv, err := GetReceiver[T](m, name)
	if err != nil {
		return err
	}
	recv.AddCallback(fn)
	return nil
}

// RemoveCallback unbinds the delivery callback of a registered connection and
// waits for an in-flight delivery to finish.
func RemoveCallback[T any](m *IOManager, name string) error {
	recv, err := GetReceiver[T](m, name)
	if err != nil {
		return err
	}
	recv.RemoveCallback()
	return nil
}
