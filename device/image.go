package device

import (
	vk "github.com/devblok/vulkan"
)

// ImageInfo describes a Vulkan image the way the host tracks it.
// Layout is the layout the image is in outside of any command stream.
type ImageInfo struct {
	Type        vk.ImageType
	Format      vk.Format
	SampleCount vk.SampleCountFlagBits
	Extent      vk.Extent3D
	Layers      uint32
	MipLevels   uint32
	Usage       vk.ImageUsageFlags
	Stages      vk.PipelineStageFlags
	Access      vk.AccessFlags
	Tiling      vk.ImageTiling
	Layout      vk.ImageLayout
	Shared      bool
	ViewFormats []vk.Format
}

// FullRange returns a subresource range covering every mip and layer of the
// image for the given aspect.
func (i ImageInfo) FullRange(aspect vk.ImageAspectFlags) vk.ImageSubresourceRange {
	return vk.ImageSubresourceRange{
		AspectMask:     aspect,
		BaseMipLevel:   0,
		LevelCount:     i.MipLevels,
		BaseArrayLayer: 0,
		LayerCount:     i.Layers,
	}
}

// WrapForeignImage wraps an image owned by someone else so it can be used as
// a copy destination. Nothing is allocated and nothing is freed.
func WrapForeignImage(handle ImageHandle, info ImageInfo, memory vk.MemoryPropertyFlags) *ForeignImage {
	return &ForeignImage{
		handle: handle,
		info:   info,
		memory: memory,
	}
}

// ForeignImage is an image imported from outside the host device.
type ForeignImage struct {
	handle ImageHandle
	info   ImageInfo
	memory vk.MemoryPropertyFlags
}

// Handle implements interface
func (f *ForeignImage) Handle() ImageHandle {
	return f.handle
}

// Info implements interface
func (f *ForeignImage) Info() ImageInfo {
	return f.info
}

// MemoryProperties returns the memory residency the image was imported with.
func (f *ForeignImage) MemoryProperties() vk.MemoryPropertyFlags {
	return f.memory
}
