package queue

import "time"

// Locker serializes access to the device's shared persistent storage.
// Acquire returns false if the lock could not be taken within the timeout;
// the caller must abort the operation without side effects.
type Locker interface {
	Acquire(op string, timeout time.Duration) bool
	Release()
}

// StorageLock is a channel-based mutual exclusion lock with bounded
// acquisition. One StorageLock guards one storage resource; every queue
// operation that touches the file holds it for the full duration.
type StorageLock struct {
	ch chan struct{}
}

// NewStorageLock creates an unlocked StorageLock.
func NewStorageLock() *StorageLock {
	return &StorageLock{ch: make(chan struct{}, 1)}
}

// Acquire takes the lock, waiting up to timeout. The op name is carried for
// the caller's logging only.
func (l *StorageLock) Acquire(op string, timeout time.Duration) bool {
	select {
	case l.ch <- struct{}{}:
		return true
	case <-time.After(timeout):
		return false
	}
}

// Release frees the lock. Must only be called after a successful Acquire.
func (l *StorageLock) Release() {
	<-l.ch
}
