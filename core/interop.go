// Package core implements the interop surface a VR compositor uses to share
// textures, fences and queue access with a host device, and the protocol
// arbitrating submissions between the two.
package core

import (
	"fmt"
	"sync"

	vk "github.com/devblok/vulkan"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/devblok/koruvr/device"
)

// Interface IDs understood by QueryInterface
var (
	IIDUnknown = uuid.MustParse("00000000-0000-0000-c000-000000000046")
	IIDInterop = uuid.MustParse("7e272b32-a49c-46c7-b1a4-ef52936bec87")
)

// Interop is the operation set exposed to a VR compositor.
// New operations are only ever appended.
type Interop interface {
	// QueryInterface returns the interop if id names it.
	QueryInterface(id uuid.UUID) (Interop, error)

	// Describe returns what the compositor needs to know about tex.
	Describe(tex device.Texture) (TextureInteropDesc, error)

	// PrepareForExternalRead records a transition of tex into a transfer
	// source layout. It is visible to the GPU after Flush.
	PrepareForExternalRead(tex device.Texture) error

	BeginExternalSubmission() error
	EndExternalSubmission() error
	LockDevice() error
	UnlockDevice() error

	// WaitDeviceIdle and WaitGraphicsQueueIdle optionally flush, then block
	// until the GPU is done. They do not take the submission lock.
	WaitDeviceIdle(flush bool) error
	WaitGraphicsQueueIdle(flush bool) error

	DescribeOpenXRDevice() (OXRDeviceDesc, error)

	// CopyToForeignImage copies the top level of tex into an image owned by
	// the caller. The image must match the texture in size.
	CopyToForeignImage(tex device.Texture, dst device.ImageHandle, format vk.Format, width, height uint32) error

	Flush() error
	LockSubmissionQueue() error
	UnlockSubmissionQueue() error

	// ImportFence imports a shared fence, replacing the previous one.
	ImportFence(handle device.SharedHandle, value uint64) error

	// SignalFence advances the imported fence.
	SignalFence(value uint64) error

	ComputeShaderHash(shader device.Shader) (string, error)
	PatchVertexShaderCode(shader device.Shader, code []uint32) error

	CreateArrayRenderTarget(desc ArrayDesc) (device.Texture, error)
	CreateArrayDepthStencil(desc ArrayDesc) (device.Texture, error)

	// CopyLayeredSurface blits layer i of src into dsts[i].
	CopyLayeredSurface(src device.Texture, dsts []device.Texture) error

	ShaderCode(shader device.Shader) ([]uint32, error)
	ShaderConstantCount(shader device.Shader) (uint32, error)
	SetShaderConstantCount(shader device.Shader, count uint32) error
	EnableMultiView(enable bool) error

	CreateArrayTexture(desc ArrayDesc) (device.Texture, error)
	DescribeVkDevice() (device.Identity, error)
}

// TextureInteropDesc describes a host texture in Vulkan terms. It is a view,
// holding it keeps nothing alive.
type TextureInteropDesc struct {
	Image            device.ImageHandle
	Device           device.DeviceHandle
	PhysicalDevice   device.PhysicalDeviceHandle
	Instance         device.InstanceHandle
	Queue            device.QueueHandle
	QueueFamilyIndex uint32

	Width       uint32
	Height      uint32
	Format      vk.Format
	SampleCount uint32
}

// OXRDeviceDesc is the device description OpenXR session creation wants.
type OXRDeviceDesc struct {
	Device           device.DeviceHandle
	PhysicalDevice   device.PhysicalDeviceHandle
	Instance         device.InstanceHandle
	QueueIndex       uint32
	QueueFamilyIndex uint32
}

// ArrayDesc describes a texture with one layer per view.
// Levels, Usage and Pool are only used by CreateArrayTexture, Lockable only
// by CreateArrayRenderTarget and Discard only by CreateArrayDepthStencil.
type ArrayDesc struct {
	Width              uint32
	Height             uint32
	Levels             uint32
	Usage              device.Usage
	Format             device.Format
	Pool               device.Pool
	MultiSample        device.MultiSampleType
	MultisampleQuality uint32
	Lockable           bool
	Discard            bool
	Views              uint32
}

// NewVulkanInterop creates the interop surface of dev.
func NewVulkanInterop(dev device.Device, cfg Configuration) (*VulkanInterop, error) {
	if dev == nil {
		return nil, ErrInvalidCall
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}
	return &VulkanInterop{
		dev: dev,
		log: logger.WithField("component", "interop"),
	}, nil
}

// VulkanInterop implements Interop on top of a Vulkan backed host device.
type VulkanInterop struct {
	dev device.Device
	log *log.Entry

	mutex      sync.Mutex
	deviceLock *device.DeviceLock
	queueHeld  bool
	fence      device.Fence
}

// QueryInterface implements interface
func (i *VulkanInterop) QueryInterface(id uuid.UUID) (Interop, error) {
	if id == IIDUnknown || id == IIDInterop {
		return i, nil
	}
	i.log.WithField("iid", id.String()).Warn("unknown interface query")
	return nil, ErrNoInterface
}

// Describe implements interface
func (i *VulkanInterop) Describe(tex device.Texture) (TextureInteropDesc, error) {
	if tex == nil {
		return TextureInteropDesc{}, ErrInvalidCall
	}
	desc := tex.Desc()
	img := tex.Image()
	id := tex.Device().Identity()

	return TextureInteropDesc{
		Image:            img.Handle(),
		Device:           id.Device,
		PhysicalDevice:   id.PhysicalDevice,
		Instance:         id.Instance,
		Queue:            id.Graphics.Handle,
		QueueFamilyIndex: id.Graphics.Family,
		Width:            desc.Width,
		Height:           desc.Height,
		Format:           tex.FormatMapping().FormatColor,
		SampleCount:      uint32(img.Info().SampleCount),
	}, nil
}

// PrepareForExternalRead implements interface
func (i *VulkanInterop) PrepareForExternalRead(tex device.Texture) error {
	if tex == nil {
		return ErrInvalidCall
	}
	info := tex.Image().Info()
	subresources := info.FullRange(vk.ImageAspectFlags(vk.ImageAspectColorBit))
	return i.dev.TransformImage(tex, subresources, info.Layout, vk.ImageLayoutTransferSrcOptimal)
}

// CopyToForeignImage implements interface
func (i *VulkanInterop) CopyToForeignImage(tex device.Texture, dst device.ImageHandle, format vk.Format, width, height uint32) error {
	if tex == nil || dst == 0 || width == 0 || height == 0 {
		return ErrInvalidCall
	}

	img := device.WrapForeignImage(dst, device.ImageInfo{
		Type:        vk.ImageType2d,
		Format:      format,
		SampleCount: vk.SampleCount1Bit,
		Extent:      vk.Extent3D{Width: width, Height: height, Depth: 1},
		Layers:      1,
		MipLevels:   1,
		Usage:       vk.ImageUsageFlags(vk.ImageUsageTransferDstBit),
		Stages:      vk.PipelineStageFlags(vk.PipelineStageTransferBit),
		Access:      vk.AccessFlags(vk.AccessTransferWriteBit),
		Tiling:      vk.ImageTilingOptimal,
		Layout:      vk.ImageLayoutUndefined,
		ViewFormats: []vk.Format{format},
	}, vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit))

	return tex.Device().CopyTextureToImage(tex, img)
}

// DescribeVkDevice implements interface
func (i *VulkanInterop) DescribeVkDevice() (device.Identity, error) {
	return i.dev.Identity(), nil
}

// DescribeOpenXRDevice implements interface
func (i *VulkanInterop) DescribeOpenXRDevice() (OXRDeviceDesc, error) {
	id := i.dev.Identity()
	return OXRDeviceDesc{
		Device:           id.Device,
		PhysicalDevice:   id.PhysicalDevice,
		Instance:         id.Instance,
		QueueIndex:       id.Graphics.Index,
		QueueFamilyIndex: id.Graphics.Family,
	}, nil
}

func validArray(desc ArrayDesc) error {
	if desc.Views == 0 || desc.Width == 0 || desc.Height == 0 {
		return fmt.Errorf("%w: %dx%d with %d views", ErrInvalidCall, desc.Width, desc.Height, desc.Views)
	}
	return nil
}

// CreateArrayRenderTarget implements interface
func (i *VulkanInterop) CreateArrayRenderTarget(desc ArrayDesc) (device.Texture, error) {
	if err := validArray(desc); err != nil {
		return nil, err
	}
	return i.dev.CreateRenderTargetFromDesc(device.TextureDesc{
		Width:              desc.Width,
		Height:             desc.Height,
		Depth:              1,
		ArraySize:          desc.Views,
		MipLevels:          1,
		Usage:              device.UsageRenderTarget,
		Format:             desc.Format,
		Pool:               device.PoolDefault,
		MultiSample:        desc.MultiSample,
		MultisampleQuality: desc.MultisampleQuality,
		IsAttachmentOnly:   true,
		IsLockable:         desc.Lockable,
	})
}

// CreateArrayDepthStencil implements interface
func (i *VulkanInterop) CreateArrayDepthStencil(desc ArrayDesc) (device.Texture, error) {
	if err := validArray(desc); err != nil {
		return nil, err
	}
	return i.dev.CreateRenderTargetFromDesc(device.TextureDesc{
		Width:              desc.Width,
		Height:             desc.Height,
		Depth:              1,
		ArraySize:          desc.Views,
		MipLevels:          1,
		Usage:              device.UsageDepthStencil,
		Format:             desc.Format,
		Pool:               device.PoolDefault,
		Discard:            desc.Discard,
		MultiSample:        desc.MultiSample,
		MultisampleQuality: desc.MultisampleQuality,
		IsAttachmentOnly:   true,
		IsLockable:         device.IsLockableDepthStencil(desc.Format),
	})
}

// CreateArrayTexture implements interface
func (i *VulkanInterop) CreateArrayTexture(desc ArrayDesc) (device.Texture, error) {
	if err := validArray(desc); err != nil {
		return nil, err
	}
	return i.dev.CreateTextureFromDesc(device.TextureDesc{
		Width:       desc.Width,
		Height:      desc.Height,
		Depth:       1,
		ArraySize:   desc.Views,
		MipLevels:   desc.Levels,
		Usage:       desc.Usage,
		Format:      desc.Format,
		Pool:        desc.Pool,
		MultiSample: device.MultiSampleNone,
	})
}

// CopyLayeredSurface implements interface. Every destination is checked
// before anything is copied. The device lock is held for the whole copy, so
// calling it between LockDevice and UnlockDevice deadlocks.
func (i *VulkanInterop) CopyLayeredSurface(src device.Texture, dsts []device.Texture) error {
	if src == nil {
		return ErrInvalidCall
	}
	if layers := src.Desc().ArraySize; uint32(len(dsts)) > layers {
		return fmt.Errorf("%w: %d destinations for %d layers", ErrInvalidCall, len(dsts), layers)
	}
	for idx, dst := range dsts {
		if dst == nil || dst == src {
			return fmt.Errorf("%w: destination %d", ErrInvalidCall, idx)
		}
	}

	lock := i.dev.LockDevice()
	defer lock.Release()

	for idx, dst := range dsts {
		if err := i.dev.StretchRect(src, dst, device.FilterNone, uint32(idx)); err != nil {
			return err
		}
	}
	return nil
}

// ImportFence implements interface
func (i *VulkanInterop) ImportFence(handle device.SharedHandle, value uint64) error {
	if handle == 0 {
		return ErrInvalidCall
	}
	fence, err := i.dev.CreateFence(device.FenceInfo{
		InitialValue: value,
		HandleType:   device.HandleTypeD3D11Fence,
		Handle:       handle,
	})
	if err != nil {
		return err
	}

	i.mutex.Lock()
	previous := i.fence
	i.fence = fence
	i.mutex.Unlock()

	if previous != nil {
		previous.Destroy()
	}
	i.log.WithFields(log.Fields{
		"handle": fmt.Sprintf("%#x", uintptr(handle)),
		"value":  value,
	}).Debug("fence imported")
	return nil
}

// SignalFence implements interface
func (i *VulkanInterop) SignalFence(value uint64) error {
	i.mutex.Lock()
	fence := i.fence
	i.mutex.Unlock()

	if fence == nil {
		return ErrNoFence
	}
	return fence.Signal(value)
}

// EnableMultiView implements interface
func (i *VulkanInterop) EnableMultiView(enable bool) error {
	i.dev.SetMultiView(enable)
	return nil
}

// Destroy releases what the interop still holds: the device lock, the
// submission lock and the imported fence.
func (i *VulkanInterop) Destroy() {
	i.mutex.Lock()
	lock, fence, queueHeld := i.deviceLock, i.fence, i.queueHeld
	i.deviceLock, i.fence, i.queueHeld = nil, nil, false
	i.mutex.Unlock()

	if queueHeld {
		i.dev.UnlockSubmission()
	}
	lock.Release()
	if fence != nil {
		fence.Destroy()
	}
}
