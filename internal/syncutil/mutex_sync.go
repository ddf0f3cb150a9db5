//go:build !deadlock

// Package syncutil provides the mutex type used by the simulator. The default
// build uses sync.Mutex; build with -tags=deadlock to detect lock-order
// problems between the interrupt controller and register access through
// github.com/sasha-s/go-deadlock.
package syncutil

import "sync"

// Mutex wraps sync.Mutex.
type Mutex struct {
	sync.Mutex
}
