package device

import (
	vk "github.com/devblok/vulkan"
)

// Format is a host pixel format. Values follow D3DFORMAT.
type Format uint32

// Host formats the interop layer knows how to map
const (
	FormatUnknown      Format = 0
	FormatR8G8B8       Format = 20
	FormatA8R8G8B8     Format = 21
	FormatX8R8G8B8     Format = 22
	FormatA8B8G8R8     Format = 32
	FormatX8B8G8R8     Format = 33
	FormatA16B16G16R16 Format = 36
	FormatD16Lockable  Format = 70
	FormatD32          Format = 71
	FormatD24S8        Format = 75
	FormatD24X8        Format = 77
	FormatD16          Format = 80
	FormatD32FLockable Format = 82
	FormatD32Lockable  Format = 84
	FormatS8Lockable   Format = 85
)

// IsLockableDepthStencil reports whether the depth stencil format can be
// mapped for CPU access.
func IsLockableDepthStencil(f Format) bool {
	switch f {
	case FormatD16Lockable, FormatD32Lockable, FormatD32FLockable, FormatS8Lockable:
		return true
	}
	return false
}

// IsDepthStencil reports whether f is a depth and/or stencil format.
func IsDepthStencil(f Format) bool {
	switch f {
	case FormatD16Lockable, FormatD32, FormatD24S8, FormatD24X8, FormatD16,
		FormatD32FLockable, FormatD32Lockable, FormatS8Lockable:
		return true
	}
	return false
}

// FormatMapping is the Vulkan side of a host format.
type FormatMapping struct {
	FormatColor vk.Format
	FormatSrgb  vk.Format
	Aspect      vk.ImageAspectFlags
}

var (
	depthAspect   = vk.ImageAspectFlags(vk.ImageAspectDepthBit)
	stencilAspect = vk.ImageAspectFlags(vk.ImageAspectStencilBit)
)

var formatMappings = map[Format]FormatMapping{
	FormatA8R8G8B8:     {vk.FormatB8g8r8a8Unorm, vk.FormatB8g8r8a8Srgb, vk.ImageAspectFlags(vk.ImageAspectColorBit)},
	FormatX8R8G8B8:     {vk.FormatB8g8r8a8Unorm, vk.FormatB8g8r8a8Srgb, vk.ImageAspectFlags(vk.ImageAspectColorBit)},
	FormatA8B8G8R8:     {vk.FormatR8g8b8a8Unorm, vk.FormatR8g8b8a8Srgb, vk.ImageAspectFlags(vk.ImageAspectColorBit)},
	FormatX8B8G8R8:     {vk.FormatR8g8b8a8Unorm, vk.FormatR8g8b8a8Srgb, vk.ImageAspectFlags(vk.ImageAspectColorBit)},
	FormatA16B16G16R16: {vk.FormatR16g16b16a16Unorm, vk.FormatUndefined, vk.ImageAspectFlags(vk.ImageAspectColorBit)},
	FormatD16Lockable:  {vk.FormatD16Unorm, vk.FormatUndefined, depthAspect},
	FormatD16:          {vk.FormatD16Unorm, vk.FormatUndefined, depthAspect},
	FormatD32:          {vk.FormatD32Sfloat, vk.FormatUndefined, depthAspect},
	FormatD32Lockable:  {vk.FormatD32Sfloat, vk.FormatUndefined, depthAspect},
	FormatD32FLockable: {vk.FormatD32Sfloat, vk.FormatUndefined, depthAspect},
	FormatD24S8:        {vk.FormatD24UnormS8Uint, vk.FormatUndefined, depthAspect | stencilAspect},
	FormatD24X8:        {vk.FormatD24UnormS8Uint, vk.FormatUndefined, depthAspect},
	FormatS8Lockable:   {vk.FormatS8Uint, vk.FormatUndefined, stencilAspect},
}

// LookupFormat returns the Vulkan mapping of a host format.
func LookupFormat(f Format) (FormatMapping, bool) {
	m, ok := formatMappings[f]
	return m, ok
}

// Usage flags, following D3DUSAGE.
type Usage uint32

// Usages relevant to interop textures
const (
	UsageRenderTarget Usage = 0x00000001
	UsageDepthStencil Usage = 0x00000002
	UsageDynamic      Usage = 0x00000200
)

// Pool is the memory class of a resource.
type Pool uint32

// Pools
const (
	PoolDefault   Pool = 0
	PoolManaged   Pool = 1
	PoolSystemMem Pool = 2
)

// MultiSampleType is the number of samples per pixel. Zero and one both
// mean no multisampling.
type MultiSampleType uint32

// MultiSampleNone disables multisampling
const MultiSampleNone MultiSampleType = 0

// SampleCount converts to the Vulkan sample count.
func (m MultiSampleType) SampleCount() vk.SampleCountFlagBits {
	switch {
	case m >= 16:
		return vk.SampleCount16Bit
	case m >= 8:
		return vk.SampleCount8Bit
	case m >= 4:
		return vk.SampleCount4Bit
	case m >= 2:
		return vk.SampleCount2Bit
	}
	return vk.SampleCount1Bit
}

// TextureDesc is the common description all host textures are created from.
type TextureDesc struct {
	Width              uint32
	Height             uint32
	Depth              uint32
	ArraySize          uint32
	MipLevels          uint32
	Usage              Usage
	Format             Format
	Pool               Pool
	Discard            bool
	MultiSample        MultiSampleType
	MultisampleQuality uint32
	IsBackBuffer       bool
	IsAttachmentOnly   bool
	IsLockable         bool
}
