package device

import "sync"

// AcquireDeviceLock locks l and returns a token for it.
func AcquireDeviceLock(l sync.Locker) *DeviceLock {
	l.Lock()
	return &DeviceLock{locker: l}
}

// DeviceLock is a held device lock. It is not reentrant: locking the same
// device twice from one goroutine deadlocks.
type DeviceLock struct {
	mutex  sync.Mutex
	locker sync.Locker
}

// Release unlocks the device. Releasing a token twice, or a nil token,
// does nothing.
func (d *DeviceLock) Release() {
	if d == nil {
		return
	}
	d.mutex.Lock()
	l := d.locker
	d.locker = nil
	d.mutex.Unlock()

	if l != nil {
		l.Unlock()
	}
}

// Held reports whether the token still holds its lock.
func (d *DeviceLock) Held() bool {
	if d == nil {
		return false
	}
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.locker != nil
}
