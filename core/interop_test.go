package core_test

import (
	"context"
	"errors"
	"image/color"
	"testing"
	"time"

	vk "github.com/devblok/vulkan"
	"github.com/google/uuid"

	"github.com/devblok/koruvr/core"
	"github.com/devblok/koruvr/device"
	"github.com/devblok/koruvr/device/software"
)

func newInterop(t *testing.T) (*core.VulkanInterop, *software.Device) {
	dev := software.New(software.Configuration{})
	iface, err := core.NewVulkanInterop(dev, core.Configuration{})
	if err != nil {
		t.Fatal(err)
	}
	return iface, dev
}

func arrayRenderTarget(t *testing.T, iface core.Interop, width, height, views uint32) *software.Texture {
	tex, err := iface.CreateArrayRenderTarget(core.ArrayDesc{
		Width:  width,
		Height: height,
		Format: device.FormatA8R8G8B8,
		Views:  views,
	})
	if err != nil {
		t.Fatal(err)
	}
	return tex.(*software.Texture)
}

func TestNewVulkanInteropNilDevice(t *testing.T) {
	if _, err := core.NewVulkanInterop(nil, core.Configuration{}); core.ResultOf(err) != core.ResultInvalidCall {
		t.Fatalf("expected invalid call, got %v", err)
	}
}

func TestDescribeAfterPrepare(t *testing.T) {
	iface, dev := newInterop(t)
	defer dev.Destroy()

	tex := arrayRenderTarget(t, iface, 128, 64, 2)
	before, err := iface.Describe(tex)
	if err != nil {
		t.Fatal(err)
	}

	if err := iface.PrepareForExternalRead(tex); err != nil {
		t.Fatal(err)
	}
	if err := iface.Flush(); err != nil {
		t.Fatal(err)
	}
	if layout := tex.Image().Info().Layout; layout != vk.ImageLayoutTransferSrcOptimal {
		t.Fatalf("expected transfer source layout, got %d", layout)
	}

	after, err := iface.Describe(tex)
	if err != nil {
		t.Fatal(err)
	}
	if after != before {
		t.Fatalf("description changed: %+v != %+v", after, before)
	}
	if after.Width != 128 || after.Height != 64 {
		t.Fatalf("incorrect extent: %dx%d", after.Width, after.Height)
	}
	if after.Format != vk.FormatB8g8r8a8Unorm {
		t.Fatalf("incorrect format: %d", after.Format)
	}
	if after.SampleCount != 1 {
		t.Fatalf("incorrect sample count: %d", after.SampleCount)
	}
	id := dev.Identity()
	if after.Device != id.Device || after.Queue != id.Graphics.Handle || after.Instance != id.Instance {
		t.Fatalf("identity does not match device: %+v", after)
	}
}

func TestNilArguments(t *testing.T) {
	iface, dev := newInterop(t)
	defer dev.Destroy()

	if _, err := iface.Describe(nil); core.ResultOf(err) != core.ResultInvalidCall {
		t.Errorf("Describe: %v", err)
	}
	if err := iface.PrepareForExternalRead(nil); core.ResultOf(err) != core.ResultInvalidCall {
		t.Errorf("PrepareForExternalRead: %v", err)
	}
	if err := iface.CopyToForeignImage(nil, 1, vk.FormatB8g8r8a8Unorm, 1, 1); core.ResultOf(err) != core.ResultInvalidCall {
		t.Errorf("CopyToForeignImage: %v", err)
	}
	if err := iface.CopyLayeredSurface(nil, nil); core.ResultOf(err) != core.ResultInvalidCall {
		t.Errorf("CopyLayeredSurface: %v", err)
	}
	if err := iface.ImportFence(0, 0); core.ResultOf(err) != core.ResultInvalidCall {
		t.Errorf("ImportFence: %v", err)
	}
	if _, err := iface.ComputeShaderHash(nil); core.ResultOf(err) != core.ResultInvalidCall {
		t.Errorf("ComputeShaderHash: %v", err)
	}
}

func TestPrepareForeignTexture(t *testing.T) {
	iface, dev := newInterop(t)
	defer dev.Destroy()
	other := software.New(software.Configuration{})
	defer other.Destroy()

	tex, err := other.CreateRenderTargetFromDesc(device.TextureDesc{
		Width:     4,
		Height:    4,
		ArraySize: 1,
		MipLevels: 1,
		Usage:     device.UsageRenderTarget,
		Format:    device.FormatA8R8G8B8,
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := iface.PrepareForExternalRead(tex); !errors.Is(err, software.ErrForeignTexture) {
		t.Fatalf("expected ErrForeignTexture, got %v", err)
	}
	if err := iface.Flush(); err != nil {
		t.Fatal(err)
	}
	other.SynchronizeStream()
	if layout := tex.Image().Info().Layout; layout == vk.ImageLayoutTransferSrcOptimal {
		t.Fatal("foreign texture was transitioned")
	}
}

func TestCopyToForeignImage(t *testing.T) {
	iface, dev := newInterop(t)
	defer dev.Destroy()

	tex := arrayRenderTarget(t, iface, 8, 8, 1)
	dst := dev.ForeignImages().Allocate(8, 8)

	green := color.RGBA{G: 255, A: 255}
	tex.Fill(0, green)
	if err := iface.CopyToForeignImage(tex, dst, tex.FormatMapping().FormatColor, 8, 8); err != nil {
		t.Fatal(err)
	}
	if err := iface.WaitDeviceIdle(true); err != nil {
		t.Fatal(err)
	}
	if got := dev.ForeignImages().At(dst, 7, 0); got != green {
		t.Fatalf("expected %v, got %v", green, got)
	}

	err := iface.CopyToForeignImage(tex, dst, tex.FormatMapping().FormatColor, 4, 4)
	if !errors.Is(err, software.ErrImageMismatch) {
		t.Fatalf("device failure should be returned as is, got %v", err)
	}
	if core.ResultOf(err) != core.ResultFailed {
		t.Fatalf("expected failure result, got %v", core.ResultOf(err))
	}
}

func TestCreateArrayRenderTarget(t *testing.T) {
	iface, dev := newInterop(t)
	defer dev.Destroy()

	for _, views := range []uint32{1, 2, 4} {
		tex := arrayRenderTarget(t, iface, 32, 32, views)
		desc := tex.Desc()
		if desc.ArraySize != views {
			t.Errorf("expected %d layers, got %d", views, desc.ArraySize)
		}
		if !desc.IsAttachmentOnly {
			t.Error("render target should be attachment only")
		}
		if desc.Usage != device.UsageRenderTarget || desc.MipLevels != 1 || desc.Depth != 1 {
			t.Errorf("unexpected description: %+v", desc)
		}
	}

	if _, err := iface.CreateArrayRenderTarget(core.ArrayDesc{Width: 4, Height: 4, Format: device.FormatA8R8G8B8}); core.ResultOf(err) != core.ResultInvalidCall {
		t.Errorf("zero views: %v", err)
	}
}

func TestCreateArrayDepthStencil(t *testing.T) {
	iface, dev := newInterop(t)
	defer dev.Destroy()

	cases := map[device.Format]bool{
		device.FormatD16Lockable: true,
		device.FormatD24S8:       false,
		device.FormatD32:         false,
	}
	for format, lockable := range cases {
		tex, err := iface.CreateArrayDepthStencil(core.ArrayDesc{
			Width:    16,
			Height:   16,
			Format:   format,
			Views:    2,
			Lockable: !lockable,
			Discard:  true,
		})
		if err != nil {
			t.Fatal(err)
		}
		desc := tex.Desc()
		if desc.IsLockable != lockable {
			t.Errorf("format %d: expected lockable %v", format, lockable)
		}
		if !desc.Discard || !desc.IsAttachmentOnly || desc.ArraySize != 2 {
			t.Errorf("format %d: unexpected description %+v", format, desc)
		}
	}
}

func TestCreateArrayTexture(t *testing.T) {
	iface, dev := newInterop(t)
	defer dev.Destroy()

	tex, err := iface.CreateArrayTexture(core.ArrayDesc{
		Width:       64,
		Height:      64,
		Levels:      3,
		Format:      device.FormatA8B8G8R8,
		Pool:        device.PoolManaged,
		MultiSample: 4,
		Views:       2,
	})
	if err != nil {
		t.Fatal(err)
	}
	desc := tex.Desc()
	if desc.IsAttachmentOnly || desc.MultiSample != device.MultiSampleNone {
		t.Errorf("unexpected description %+v", desc)
	}
	if desc.MipLevels != 3 || desc.ArraySize != 2 || desc.Pool != device.PoolManaged {
		t.Errorf("unexpected description %+v", desc)
	}
}

func TestCopyLayeredSurface(t *testing.T) {
	iface, dev := newInterop(t)
	defer dev.Destroy()

	src := arrayRenderTarget(t, iface, 8, 8, 3)
	colors := []color.RGBA{
		{R: 255, A: 255},
		{G: 255, A: 255},
		{B: 255, A: 255},
	}
	var dsts []device.Texture
	for layer, c := range colors {
		src.Fill(uint32(layer), c)
		dsts = append(dsts, arrayRenderTarget(t, iface, 8, 8, 1))
	}

	if err := iface.CopyLayeredSurface(src, dsts); err != nil {
		t.Fatal(err)
	}
	if err := iface.Flush(); err != nil {
		t.Fatal(err)
	}

	for idx, dst := range dsts {
		if got := dst.(*software.Texture).At(0, 4, 4); got != colors[idx] {
			t.Errorf("destination %d: expected %v, got %v", idx, colors[idx], got)
		}
	}
}

func TestCopyLayeredSurfaceValidatesFirst(t *testing.T) {
	iface, dev := newInterop(t)
	defer dev.Destroy()

	src := arrayRenderTarget(t, iface, 4, 4, 2)
	src.Fill(0, color.RGBA{R: 255, A: 255})
	d0 := arrayRenderTarget(t, iface, 4, 4, 1)

	cases := map[string][]device.Texture{
		"nil destination":  {d0, nil},
		"source as target": {d0, src},
		"more than layers": {d0, arrayRenderTarget(t, iface, 4, 4, 1), arrayRenderTarget(t, iface, 4, 4, 1)},
	}
	for name, dsts := range cases {
		if err := iface.CopyLayeredSurface(src, dsts); core.ResultOf(err) != core.ResultInvalidCall {
			t.Errorf("%s: expected invalid call, got %v", name, err)
		}
	}

	iface.Flush()
	if got := d0.At(0, 0, 0); got != (color.RGBA{}) {
		t.Fatalf("rejected copy touched the first destination: %v", got)
	}
}

func TestImportAndSignalFence(t *testing.T) {
	iface, dev := newInterop(t)
	defer dev.Destroy()

	handle := dev.Fences().Create(0)
	if err := iface.ImportFence(handle, 10); err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		done <- dev.Fences().Wait(ctx, handle, 11)
	}()

	if err := iface.SignalFence(11); err != nil {
		t.Fatal(err)
	}
	if err := <-done; err != nil {
		t.Fatalf("waiter did not observe the signal: %v", err)
	}
	if v, _ := dev.Fences().Value(handle); v != 11 {
		t.Fatalf("expected 11, got %d", v)
	}
}

func TestImportFenceReplaces(t *testing.T) {
	iface, dev := newInterop(t)
	defer dev.Destroy()

	first := dev.Fences().Create(0)
	second := dev.Fences().Create(0)
	if err := iface.ImportFence(first, 1); err != nil {
		t.Fatal(err)
	}
	if err := iface.ImportFence(second, 5); err != nil {
		t.Fatal(err)
	}
	if err := iface.SignalFence(6); err != nil {
		t.Fatal(err)
	}

	if v, _ := dev.Fences().Value(first); v != 1 {
		t.Errorf("superseded fence was signalled: %d", v)
	}
	if v, _ := dev.Fences().Value(second); v != 6 {
		t.Errorf("expected 6, got %d", v)
	}

	if err := iface.ImportFence(0xbad, 1); !errors.Is(err, software.ErrUnknownHandle) {
		t.Fatalf("expected ErrUnknownHandle, got %v", err)
	}
	if err := iface.SignalFence(7); err != nil {
		t.Fatalf("failed import should keep the previous fence: %v", err)
	}
}

func TestSignalWithoutImport(t *testing.T) {
	iface, dev := newInterop(t)
	defer dev.Destroy()

	err := iface.SignalFence(1)
	if !errors.Is(err, core.ErrNoFence) {
		t.Fatalf("expected ErrNoFence, got %v", err)
	}
	if core.ResultOf(err) != core.ResultInvalidCall {
		t.Fatalf("expected invalid call, got %v", core.ResultOf(err))
	}
}

func TestQueryInterface(t *testing.T) {
	iface, dev := newInterop(t)
	defer dev.Destroy()

	for _, id := range []uuid.UUID{core.IIDUnknown, core.IIDInterop} {
		got, err := iface.QueryInterface(id)
		if err != nil {
			t.Fatal(err)
		}
		if got != core.Interop(iface) {
			t.Fatal("query returned another object")
		}
	}

	if _, err := iface.QueryInterface(uuid.New()); core.ResultOf(err) != core.ResultNoInterface {
		t.Fatalf("expected no interface, got %v", err)
	}
}

func TestDescribeDevice(t *testing.T) {
	id := device.Identity{
		Instance:       1,
		PhysicalDevice: 2,
		Device:         3,
		Graphics:       device.QueueInfo{Handle: 4, Family: 5, Index: 6},
	}
	dev := software.New(software.Configuration{Identity: id})
	defer dev.Destroy()
	iface, err := core.NewVulkanInterop(dev, core.Configuration{})
	if err != nil {
		t.Fatal(err)
	}

	got, err := iface.DescribeVkDevice()
	if err != nil {
		t.Fatal(err)
	}
	if got != id {
		t.Fatalf("expected %+v, got %+v", id, got)
	}
	oxr, err := iface.DescribeOpenXRDevice()
	if err != nil {
		t.Fatal(err)
	}
	if oxr.QueueIndex != 6 || oxr.QueueFamilyIndex != 5 || oxr.Device != 3 {
		t.Fatalf("unexpected OpenXR description %+v", oxr)
	}
}

func TestEnableMultiView(t *testing.T) {
	iface, dev := newInterop(t)
	defer dev.Destroy()

	iface.EnableMultiView(true)
	if !dev.MultiView() {
		t.Fatal("multi view should be enabled")
	}
	iface.EnableMultiView(false)
	if dev.MultiView() {
		t.Fatal("multi view should be disabled")
	}
}
