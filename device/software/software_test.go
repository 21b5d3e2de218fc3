package software_test

import (
	"context"
	"errors"
	"image/color"
	"testing"
	"time"

	vk "github.com/devblok/vulkan"

	"github.com/devblok/koruvr/device"
	"github.com/devblok/koruvr/device/software"
)

func renderTargetDesc(width, height, layers uint32) device.TextureDesc {
	return device.TextureDesc{
		Width:     width,
		Height:    height,
		ArraySize: layers,
		MipLevels: 1,
		Usage:     device.UsageRenderTarget,
		Format:    device.FormatA8R8G8B8,
		Pool:      device.PoolDefault,
	}
}

func TestCreateRenderTarget(t *testing.T) {
	dev := software.New(software.Configuration{})
	defer dev.Destroy()

	tex, err := dev.CreateRenderTargetFromDesc(renderTargetDesc(64, 32, 2))
	if err != nil {
		t.Fatal(err)
	}

	info := tex.Image().Info()
	if info.Extent.Width != 64 || info.Extent.Height != 32 {
		t.Fatalf("incorrect extent: %dx%d", info.Extent.Width, info.Extent.Height)
	}
	if info.Layers != 2 {
		t.Fatalf("incorrect layer count: %d", info.Layers)
	}
	if info.Layout != vk.ImageLayoutColorAttachmentOptimal {
		t.Fatalf("incorrect initial layout: %d", info.Layout)
	}
	if info.Usage&vk.ImageUsageFlags(vk.ImageUsageSampledBit) == 0 {
		t.Fatal("render target should be sampled")
	}
	if tex.Device() != device.Device(dev) {
		t.Fatal("texture reports wrong device")
	}
}

func TestCreateRenderTargetRejects(t *testing.T) {
	dev := software.New(software.Configuration{})
	defer dev.Destroy()

	cases := map[string]device.TextureDesc{
		"zero width":  {Height: 4, ArraySize: 1, Usage: device.UsageRenderTarget, Format: device.FormatA8R8G8B8},
		"no layers":   {Width: 4, Height: 4, Usage: device.UsageRenderTarget, Format: device.FormatA8R8G8B8},
		"no usage":    {Width: 4, Height: 4, ArraySize: 1, Format: device.FormatA8R8G8B8},
		"depth color": {Width: 4, Height: 4, ArraySize: 1, Usage: device.UsageDepthStencil, Format: device.FormatA8R8G8B8},
	}
	for name, desc := range cases {
		if _, err := dev.CreateRenderTargetFromDesc(desc); !errors.Is(err, software.ErrInvalidDesc) {
			t.Errorf("%s: expected ErrInvalidDesc, got %v", name, err)
		}
	}

	desc := renderTargetDesc(4, 4, 1)
	desc.Format = device.FormatUnknown
	if _, err := dev.CreateRenderTargetFromDesc(desc); !errors.Is(err, software.ErrUnsupportedFormat) {
		t.Errorf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestFullMipChain(t *testing.T) {
	dev := software.New(software.Configuration{})
	defer dev.Destroy()

	desc := renderTargetDesc(256, 64, 1)
	desc.Usage = 0
	desc.MipLevels = 0
	tex, err := dev.CreateTextureFromDesc(desc)
	if err != nil {
		t.Fatal(err)
	}
	if levels := tex.Image().Info().MipLevels; levels != 9 {
		t.Fatalf("expected 9 mip levels, got %d", levels)
	}
}

func TestRecordingIsDeferred(t *testing.T) {
	dev := software.New(software.Configuration{})
	defer dev.Destroy()

	tex, err := dev.CreateRenderTargetFromDesc(renderTargetDesc(4, 4, 1))
	if err != nil {
		t.Fatal(err)
	}
	rt := tex.(*software.Texture)
	red := color.RGBA{R: 255, A: 255}

	rt.Fill(0, red)
	if dev.Idle() {
		t.Fatal("recorded work should be pending")
	}
	if got := rt.At(0, 1, 1); got == red {
		t.Fatal("fill executed before flush")
	}

	dev.SynchronizeStream()
	if got := rt.At(0, 1, 1); got != red {
		t.Fatalf("expected %v after synchronize, got %v", red, got)
	}
	if !dev.Idle() {
		t.Fatal("device should be idle after synchronize")
	}
}

func TestSubmissionLockBlocksWorker(t *testing.T) {
	dev := software.New(software.Configuration{})
	defer dev.Destroy()

	tex, err := dev.CreateRenderTargetFromDesc(renderTargetDesc(4, 4, 1))
	if err != nil {
		t.Fatal(err)
	}
	rt := tex.(*software.Texture)

	dev.LockSubmission()
	before := dev.Submissions()
	rt.Fill(0, color.RGBA{G: 255, A: 255})
	dev.Flush()

	time.Sleep(20 * time.Millisecond)
	if dev.Submissions() != before {
		dev.UnlockSubmission()
		t.Fatal("worker submitted while submission lock was held")
	}
	dev.UnlockSubmission()

	dev.SynchronizeStream()
	if dev.Submissions() != before+1 {
		t.Fatalf("expected one submission, got %d", dev.Submissions()-before)
	}
}

func TestStretchRectLayer(t *testing.T) {
	dev := software.New(software.Configuration{})
	defer dev.Destroy()

	src, err := dev.CreateRenderTargetFromDesc(renderTargetDesc(8, 8, 2))
	if err != nil {
		t.Fatal(err)
	}
	dst, err := dev.CreateRenderTargetFromDesc(renderTargetDesc(4, 4, 1))
	if err != nil {
		t.Fatal(err)
	}

	blue := color.RGBA{B: 255, A: 255}
	src.(*software.Texture).Fill(1, blue)
	if err := dev.StretchRect(src, dst, device.FilterPoint, 1); err != nil {
		t.Fatal(err)
	}
	dev.SynchronizeStream()

	if got := dst.(*software.Texture).At(0, 2, 2); got != blue {
		t.Fatalf("expected %v, got %v", blue, got)
	}

	if err := dev.StretchRect(src, dst, device.FilterLinear, 2); !errors.Is(err, software.ErrLayerRange) {
		t.Fatalf("expected ErrLayerRange, got %v", err)
	}
}

func TestCopyTextureToImage(t *testing.T) {
	dev := software.New(software.Configuration{})
	defer dev.Destroy()

	tex, err := dev.CreateRenderTargetFromDesc(renderTargetDesc(4, 4, 1))
	if err != nil {
		t.Fatal(err)
	}
	handle := dev.ForeignImages().Allocate(4, 4)
	dst := device.WrapForeignImage(handle, device.ImageInfo{
		Type:   vk.ImageType2d,
		Format: tex.FormatMapping().FormatColor,
		Extent: vk.Extent3D{Width: 4, Height: 4, Depth: 1},
		Layers: 1,
		Usage:  vk.ImageUsageFlags(vk.ImageUsageTransferDstBit),
	}, vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit))

	white := color.RGBA{R: 255, G: 255, B: 255, A: 255}
	tex.(*software.Texture).Fill(0, white)
	if err := dev.CopyTextureToImage(tex, dst); err != nil {
		t.Fatal(err)
	}
	dev.SynchronizeStream()

	if got := dev.ForeignImages().At(handle, 3, 3); got != white {
		t.Fatalf("expected %v, got %v", white, got)
	}

	small := device.WrapForeignImage(dev.ForeignImages().Allocate(2, 2), device.ImageInfo{
		Format: tex.FormatMapping().FormatColor,
		Extent: vk.Extent3D{Width: 2, Height: 2, Depth: 1},
		Usage:  vk.ImageUsageFlags(vk.ImageUsageTransferDstBit),
	}, 0)
	if err := dev.CopyTextureToImage(tex, small); !errors.Is(err, software.ErrImageMismatch) {
		t.Fatalf("expected ErrImageMismatch, got %v", err)
	}
}

func TestTransformImage(t *testing.T) {
	dev := software.New(software.Configuration{})
	defer dev.Destroy()

	tex, err := dev.CreateRenderTargetFromDesc(renderTargetDesc(4, 4, 2))
	if err != nil {
		t.Fatal(err)
	}
	info := tex.Image().Info()
	if err := dev.TransformImage(tex, info.FullRange(tex.FormatMapping().Aspect), info.Layout, vk.ImageLayoutTransferSrcOptimal); err != nil {
		t.Fatal(err)
	}
	dev.SynchronizeStream()

	if layout := tex.Image().Info().Layout; layout != vk.ImageLayoutTransferSrcOptimal {
		t.Fatalf("expected transfer source layout, got %d", layout)
	}
}

func TestTransformForeignTexture(t *testing.T) {
	dev := software.New(software.Configuration{})
	defer dev.Destroy()
	other := software.New(software.Configuration{})
	defer other.Destroy()

	tex, err := other.CreateRenderTargetFromDesc(renderTargetDesc(4, 4, 1))
	if err != nil {
		t.Fatal(err)
	}
	info := tex.Image().Info()
	err = dev.TransformImage(tex, info.FullRange(tex.FormatMapping().Aspect), info.Layout, vk.ImageLayoutTransferSrcOptimal)
	if !errors.Is(err, software.ErrForeignTexture) {
		t.Fatalf("expected ErrForeignTexture, got %v", err)
	}

	other.SynchronizeStream()
	if layout := tex.Image().Info().Layout; layout != info.Layout {
		t.Fatalf("layout changed to %d", layout)
	}
}

func TestSharedFence(t *testing.T) {
	dev := software.New(software.Configuration{})
	defer dev.Destroy()

	handle := dev.Fences().Create(0)
	fence, err := dev.CreateFence(device.FenceInfo{
		InitialValue: 3,
		HandleType:   device.HandleTypeD3D11Fence,
		Handle:       handle,
	})
	if err != nil {
		t.Fatal(err)
	}
	if fence.Value() != 3 {
		t.Fatalf("expected initial value 3, got %d", fence.Value())
	}

	done := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		done <- dev.Fences().Wait(ctx, handle, 5)
	}()

	if err := fence.Signal(5); err != nil {
		t.Fatal(err)
	}
	if err := <-done; err != nil {
		t.Fatalf("waiter failed: %v", err)
	}
	if err := fence.Signal(4); !errors.Is(err, software.ErrFenceRegress) {
		t.Fatalf("expected ErrFenceRegress, got %v", err)
	}

	fence.Destroy()
	if err := fence.Signal(6); !errors.Is(err, software.ErrFenceDestroyed) {
		t.Fatalf("expected ErrFenceDestroyed, got %v", err)
	}
	if v, err := dev.Fences().Value(handle); err != nil || v != 5 {
		t.Fatalf("shared fence should outlive the import: %d, %v", v, err)
	}
}

func TestCreateFenceRejects(t *testing.T) {
	dev := software.New(software.Configuration{})
	defer dev.Destroy()

	if _, err := dev.CreateFence(device.FenceInfo{HandleType: device.HandleTypeD3D12Fence, Handle: 0xdead}); !errors.Is(err, software.ErrUnknownHandle) {
		t.Fatalf("expected ErrUnknownHandle, got %v", err)
	}
	handle := dev.Fences().Create(0)
	if _, err := dev.CreateFence(device.FenceInfo{HandleType: device.HandleTypeSyncFd, Handle: handle}); !errors.Is(err, software.ErrHandleType) {
		t.Fatalf("expected ErrHandleType, got %v", err)
	}
}

func TestWaitQueueIdle(t *testing.T) {
	dev := software.New(software.Configuration{})
	defer dev.Destroy()

	if err := dev.WaitQueueIdle(dev.Identity().Graphics.Handle); err != nil {
		t.Fatal(err)
	}
	if err := dev.WaitQueueIdle(0x1); !errors.Is(err, software.ErrUnknownQueue) {
		t.Fatalf("expected ErrUnknownQueue, got %v", err)
	}
}
