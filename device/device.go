// Package device describes the host rendering device that the VR interop layer
// is built on. The interop layer never owns GPU objects itself; everything it
// touches goes through the interfaces declared here.
package device

import (
	vk "github.com/devblok/vulkan"
)

// Handles crossing the API boundary. The values originate in the Vulkan driver
// (or in the OS for SharedHandle) and are passed through untouched.
type (
	InstanceHandle       uintptr
	PhysicalDeviceHandle uintptr
	DeviceHandle         uintptr
	QueueHandle          uintptr

	// ImageHandle is a non-dispatchable VkImage. OpenVR carries it as
	// a 64 bit integer on every platform.
	ImageHandle uint64

	// SharedHandle is an OS level handle to a shareable sync object.
	SharedHandle uintptr
)

// PhysicalDeviceInfo describes available physical properties of a rendering device
type PhysicalDeviceInfo struct {
	ID            int
	VendorID      int
	DriverVersion int
	Name          string
	Invalid       bool
	Extensions    []string
	Layers        []string
	Memory        uint
}

// QueueInfo identifies a device queue.
type QueueInfo struct {
	Handle QueueHandle
	Family uint32
	Index  uint32
}

// Identity is a snapshot of the Vulkan objects that back a host device.
// Devices may recreate their queues, so callers should not hold on to it.
type Identity struct {
	Instance       InstanceHandle
	PhysicalDevice PhysicalDeviceHandle
	Device         DeviceHandle
	Graphics       QueueInfo
}

// Destroyable is implemented by objects holding resources outside of the GC.
type Destroyable interface {
	Destroy()
}

// TextureFilter selects the sampling used by stretch blits.
type TextureFilter int

// Filters accepted by Device.StretchRect
const (
	FilterNone TextureFilter = iota
	FilterPoint
	FilterLinear
)

// Device is the host rendering device. Implementations record work on an
// internal stream that a single worker consumes asynchronously.
type Device interface {
	// LockDevice acquires the device lock. It blocks until the lock is free.
	LockDevice() *DeviceLock

	// Flush submits everything recorded so far to the internal stream.
	Flush()

	// SynchronizeStream blocks until the internal stream has executed
	// every command recorded before the call.
	SynchronizeStream()

	// Identity returns the current Vulkan identity of the device.
	Identity() Identity

	// TransformImage records a layout transition for the given subresources.
	// The texture must belong to the device.
	TransformImage(tex Texture, subresources vk.ImageSubresourceRange, oldLayout, newLayout vk.ImageLayout) error

	// CopyTextureToImage records a copy of the texture's top level into dst.
	CopyTextureToImage(tex Texture, dst Image) error

	// CreateTextureFromDesc creates a sampled texture.
	CreateTextureFromDesc(desc TextureDesc) (Texture, error)

	// CreateRenderTargetFromDesc creates a render target or depth stencil surface.
	CreateRenderTargetFromDesc(desc TextureDesc) (Texture, error)

	// StretchRect blits layer of src into the first layer of dst.
	StretchRect(src, dst Texture, filter TextureFilter, layer uint32) error

	// CreateFence imports a shared timeline fence.
	CreateFence(info FenceInfo) (Fence, error)

	// LockSubmission and UnlockSubmission guard the graphics queue.
	LockSubmission()
	UnlockSubmission()

	// WaitForIdle blocks until the whole device is idle.
	WaitForIdle() error

	// WaitQueueIdle blocks until the given queue is idle.
	WaitQueueIdle(queue QueueHandle) error

	// SetMultiView toggles multi view rendering for subsequent draws.
	SetMultiView(enable bool)
}

// Texture is a host owned texture.
type Texture interface {
	// Image returns the image currently backing the texture.
	Image() Image

	// Desc returns the description the texture was created with.
	Desc() TextureDesc

	// Device returns the owning device.
	Device() Device

	// FormatMapping returns the Vulkan formats the host format maps to.
	FormatMapping() FormatMapping
}

// Image is a GPU image known to the host.
type Image interface {
	Handle() ImageHandle
	Info() ImageInfo
}

// Shader is a host shader object whose compiled form can be swapped.
type Shader interface {
	// Compiled returns the current compiled representation.
	Compiled() *CompiledShader

	// Replace swaps the compiled representation in place.
	Replace(cs *CompiledShader)
}

// Fence is a timeline fence shared with another API.
type Fence interface {
	Destroyable

	// Signal advances the timeline to value.
	Signal(value uint64) error

	// Value returns the last signalled value.
	Value() uint64

	// Handle returns the OS handle the fence was imported from.
	Handle() SharedHandle
}

// ExternalHandleType tells the device what kind of OS object a shared handle is.
type ExternalHandleType uint32

// Values match VkExternalSemaphoreHandleTypeFlagBits.
const (
	HandleTypeUnknown     ExternalHandleType = 0x00000000
	HandleTypeOpaqueFd    ExternalHandleType = 0x00000001
	HandleTypeOpaqueWin32 ExternalHandleType = 0x00000002
	HandleTypeD3D12Fence  ExternalHandleType = 0x00000008
	HandleTypeSyncFd      ExternalHandleType = 0x00000010
)

// HandleTypeD3D11Fence shares its bit with D3D12 fences.
const HandleTypeD3D11Fence = HandleTypeD3D12Fence

// FenceInfo describes a fence to import.
type FenceInfo struct {
	InitialValue uint64
	HandleType   ExternalHandleType
	Handle       SharedHandle
}
