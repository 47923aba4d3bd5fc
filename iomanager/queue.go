// Copyright DAQCore Project contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package iomanager

import (
	"fmt"
	"sync"
	"time"
)

// queue is the in-process Connection implementation backed by a buffered
// channel. Messages sent while no callback is bound stay queued and are
// delivered once a callback is added.
type queue[T any] struct {
	name string
	ch   chan T

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

// NewQueue returns an in-process connection with the given buffering
// capacity.
func NewQueue[T any](name string, capacity int) Connection[T] {
	return &queue[T]{
		name: name,
		ch:   make(chan T, capacity),
	}
}

func (q *queue[T]) Name() string {
	return q.name
}

func (q *queue[T]) Send(msg T, timeout time.Duration) error {
	if timeout <= 0 {
		select {
		case q.ch <- msg:
			return nil
		default:
			return fmt.Errorf("%w: %s", ErrSendTimeout, q.name)
		}
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case q.ch <- msg:
		return nil
	case <-timer.C:
		return fmt.Errorf("%w: %s", ErrSendTimeout, q.name)
	}
}

// AddCallback starts the delivery goroutine. A previously bound callback is
// removed first.
func (q *queue[T]) AddCallback(fn func(T)) {
	q.RemoveCallback()

	q.mu.Lock()
	defer q.mu.Unlock()

	stop := make(chan struct{})
	done := make(chan struct{})
	q.stop, q.done = stop, done

	go func() {
		defer close(done)
		for {
			select {
			case <-stop:
				return
			case msg := <-q.ch:
				fn(msg)
			}
		}
	}()
}

// RemoveCallback stops the delivery goroutine and waits for a delivery in
// progress to complete. Queued messages are retained.
func (q *queue[T]) RemoveCallback() {
	q.mu.Lock()
	stop, done := q.stop, q.done
	q.stop, q.done = nil, nil
	q.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done
}
