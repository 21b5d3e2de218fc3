package software

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/devblok/koruvr/device"
)

// Fence errors
var (
	ErrUnknownHandle  = errors.New("unknown shared fence handle")
	ErrFenceDestroyed = errors.New("fence was destroyed")
	ErrFenceRegress   = errors.New("timeline value must increase")
)

// timeline is the OS side of a shared fence.
type timeline struct {
	mutex sync.Mutex
	cond  *sync.Cond
	value uint64
}

func (t *timeline) signal(value uint64) error {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	if value <= t.value {
		return fmt.Errorf("%w: signal %d, current %d", ErrFenceRegress, value, t.value)
	}
	t.value = value
	t.cond.Broadcast()
	return nil
}

func (t *timeline) load() uint64 {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.value
}

// FenceTable holds the shared fences a process has created. It stands in for
// the OS objects a compositor would create with its own API.
type FenceTable struct {
	mutex     sync.Mutex
	next      device.SharedHandle
	timelines map[device.SharedHandle]*timeline
}

// NewFenceTable creates an empty table
func NewFenceTable() *FenceTable {
	return &FenceTable{
		next:      0x100,
		timelines: make(map[device.SharedHandle]*timeline),
	}
}

// Create creates a shared fence starting at value and returns its handle.
func (f *FenceTable) Create(value uint64) device.SharedHandle {
	t := &timeline{value: value}
	t.cond = sync.NewCond(&t.mutex)

	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.next += 4
	f.timelines[f.next] = t
	return f.next
}

// Value returns the current value of the fence behind h.
func (f *FenceTable) Value(h device.SharedHandle) (uint64, error) {
	t, err := f.lookup(h)
	if err != nil {
		return 0, err
	}
	return t.load(), nil
}

// Signal signals the fence behind h from the external side.
func (f *FenceTable) Signal(h device.SharedHandle, value uint64) error {
	t, err := f.lookup(h)
	if err != nil {
		return err
	}
	return t.signal(value)
}

// Wait blocks until the fence behind h reaches value or ctx is done.
func (f *FenceTable) Wait(ctx context.Context, h device.SharedHandle, value uint64) error {
	t, err := f.lookup(h)
	if err != nil {
		return err
	}

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			t.mutex.Lock()
			t.cond.Broadcast()
			t.mutex.Unlock()
		case <-stop:
		}
	}()

	t.mutex.Lock()
	defer t.mutex.Unlock()
	for t.value < value {
		if err := ctx.Err(); err != nil {
			return err
		}
		t.cond.Wait()
	}
	return nil
}

func (f *FenceTable) lookup(h device.SharedHandle) (*timeline, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	t, ok := f.timelines[h]
	if !ok {
		return nil, fmt.Errorf("%w: %#x", ErrUnknownHandle, uintptr(h))
	}
	return t, nil
}

// Fence is a device side import of a shared fence.
type Fence struct {
	handle device.SharedHandle

	mutex    sync.Mutex
	timeline *timeline
}

// Signal implements interface
func (f *Fence) Signal(value uint64) error {
	f.mutex.Lock()
	t := f.timeline
	f.mutex.Unlock()
	if t == nil {
		return ErrFenceDestroyed
	}
	return t.signal(value)
}

// Value implements interface
func (f *Fence) Value() uint64 {
	f.mutex.Lock()
	t := f.timeline
	f.mutex.Unlock()
	if t == nil {
		return 0
	}
	return t.load()
}

// Handle implements interface
func (f *Fence) Handle() device.SharedHandle {
	return f.handle
}

// Destroy implements interface. The shared fence itself stays alive.
func (f *Fence) Destroy() {
	f.mutex.Lock()
	f.timeline = nil
	f.mutex.Unlock()
}
