package core

import (
	"sync"

	"github.com/devblok/koruvr/device"
)

// Lock order: a caller needing both the device lock and the submission lock
// takes the device lock first. AcquireDevice and the guards it hands out
// only allow that order.

// BeginExternalSubmission waits for the host stream to drain and then takes
// the submission lock. Nothing recorded by the host is submitted until
// EndExternalSubmission.
func (i *VulkanInterop) BeginExternalSubmission() error {
	i.dev.SynchronizeStream()
	i.dev.LockSubmission()
	i.setQueueHeld()
	return nil
}

// EndExternalSubmission implements interface
func (i *VulkanInterop) EndExternalSubmission() error {
	return i.releaseQueue()
}

// LockSubmissionQueue takes the submission lock without draining the stream.
func (i *VulkanInterop) LockSubmissionQueue() error {
	i.dev.LockSubmission()
	i.setQueueHeld()
	return nil
}

// UnlockSubmissionQueue implements interface
func (i *VulkanInterop) UnlockSubmissionQueue() error {
	return i.releaseQueue()
}

func (i *VulkanInterop) setQueueHeld() {
	i.mutex.Lock()
	i.queueHeld = true
	i.mutex.Unlock()
}

func (i *VulkanInterop) releaseQueue() error {
	i.mutex.Lock()
	if !i.queueHeld {
		i.mutex.Unlock()
		return ErrInvalidCall
	}
	i.queueHeld = false
	i.mutex.Unlock()

	i.dev.UnlockSubmission()
	return nil
}

// SubmissionHeld reports whether the interop holds the submission lock.
func (i *VulkanInterop) SubmissionHeld() bool {
	i.mutex.Lock()
	defer i.mutex.Unlock()
	return i.queueHeld
}

// Flush implements interface
func (i *VulkanInterop) Flush() error {
	i.dev.Flush()
	i.dev.SynchronizeStream()
	return nil
}

// WaitDeviceIdle implements interface
func (i *VulkanInterop) WaitDeviceIdle(flush bool) error {
	if flush {
		if err := i.Flush(); err != nil {
			return err
		}
	}
	return i.dev.WaitForIdle()
}

// WaitGraphicsQueueIdle implements interface
func (i *VulkanInterop) WaitGraphicsQueueIdle(flush bool) error {
	if flush {
		if err := i.Flush(); err != nil {
			return err
		}
	}
	return i.dev.WaitQueueIdle(i.dev.Identity().Graphics.Handle)
}

// LockDevice implements interface. The device lock is not reentrant.
func (i *VulkanInterop) LockDevice() error {
	lock := i.dev.LockDevice()

	i.mutex.Lock()
	i.deviceLock = lock
	i.mutex.Unlock()
	return nil
}

// UnlockDevice implements interface. Unlocking an unlocked device does nothing.
func (i *VulkanInterop) UnlockDevice() error {
	i.mutex.Lock()
	lock := i.deviceLock
	i.deviceLock = nil
	i.mutex.Unlock()

	lock.Release()
	return nil
}

// DeviceHeld reports whether the interop holds the device lock.
func (i *VulkanInterop) DeviceHeld() bool {
	i.mutex.Lock()
	defer i.mutex.Unlock()
	return i.deviceLock.Held()
}

// AcquireDevice takes the device lock and returns it as a guard. Only a
// held guard can take the submission lock.
func (i *VulkanInterop) AcquireDevice() *DeviceGuard {
	return &DeviceGuard{
		iface: i,
		lock:  i.dev.LockDevice(),
	}
}

// DeviceGuard is evidence of a held device lock.
type DeviceGuard struct {
	iface *VulkanInterop
	lock  *device.DeviceLock
}

// BeginSubmission drains the host stream and takes the submission lock.
func (g *DeviceGuard) BeginSubmission() (*SubmissionGuard, error) {
	if !g.lock.Held() {
		return nil, ErrInvalidCall
	}
	if err := g.iface.BeginExternalSubmission(); err != nil {
		return nil, err
	}
	return &SubmissionGuard{iface: g.iface}, nil
}

// LockQueue takes the submission lock without draining the stream.
func (g *DeviceGuard) LockQueue() (*SubmissionGuard, error) {
	if !g.lock.Held() {
		return nil, ErrInvalidCall
	}
	if err := g.iface.LockSubmissionQueue(); err != nil {
		return nil, err
	}
	return &SubmissionGuard{iface: g.iface}, nil
}

// Release releases the device lock. Release any submission guard first.
func (g *DeviceGuard) Release() {
	g.lock.Release()
}

// SubmissionGuard is a held submission lock.
type SubmissionGuard struct {
	iface *VulkanInterop
	once  sync.Once
}

// Release releases the submission lock. Calling it again does nothing and
// returns nil. Fails with ErrInvalidCall if the lock was already given up
// through UnlockSubmissionQueue or EndExternalSubmission.
func (s *SubmissionGuard) Release() error {
	var err error
	s.once.Do(func() {
		err = s.iface.releaseQueue()
	})
	return err
}
