// Package software implements device.Device on the CPU. Work is recorded on
// the calling goroutine and executed by one worker, the same way a real host
// records commands for its submission thread, so the interop protocol can be
// exercised without a GPU.
package software

import (
	"errors"
	"fmt"
	"image"
	"sync"
	"sync/atomic"

	vk "github.com/devblok/vulkan"
	log "github.com/sirupsen/logrus"
	"golang.org/x/image/draw"

	"github.com/devblok/koruvr/device"
)

// Device errors
var (
	ErrInvalidDesc       = errors.New("invalid texture description")
	ErrUnsupportedFormat = errors.New("unsupported texture format")
	ErrForeignTexture    = errors.New("texture does not belong to this device")
	ErrUnknownImage      = errors.New("unknown destination image")
	ErrImageMismatch     = errors.New("destination image does not match source")
	ErrLayerRange        = errors.New("layer out of range")
	ErrUnknownQueue      = errors.New("unknown queue")
	ErrHandleType        = errors.New("unsupported external handle type")
)

// Configuration configures a software device
type Configuration struct {
	// Identity is reported as the Vulkan identity of the device. A zero
	// value gets placeholder handles.
	Identity device.Identity

	Logger *log.Entry
}

var defaultIdentity = device.Identity{
	Instance:       0x1000,
	PhysicalDevice: 0x2000,
	Device:         0x3000,
	Graphics: device.QueueInfo{
		Handle: 0x4000,
		Family: 0,
		Index:  0,
	},
}

// New creates a software device and starts its stream worker
func New(cfg Configuration) *Device {
	if cfg.Identity == (device.Identity{}) {
		cfg.Identity = defaultIdentity
	}
	if cfg.Logger == nil {
		cfg.Logger = log.NewEntry(log.StandardLogger())
	}

	d := &Device{
		identity:  cfg.Identity,
		log:       cfg.Logger.WithField("device", "software"),
		fences:    NewFenceTable(),
		foreign:   newForeignImagePool(),
		nextImage: 0x10000,
	}
	d.stream = newStream(d.execute)
	return d
}

// Device is a CPU backed host device
type Device struct {
	identity device.Identity
	log      *log.Entry

	deviceMutex     sync.Mutex
	submissionMutex sync.Mutex

	stream  *stream
	fences  *FenceTable
	foreign *ForeignImagePool

	nextImage   uint64
	submissions uint64
	multiView   int32
}

func (d *Device) execute(chunk []command) {
	d.submissionMutex.Lock()
	defer d.submissionMutex.Unlock()
	for _, c := range chunk {
		c()
	}
	atomic.AddUint64(&d.submissions, 1)
}

// Fences returns the process wide shared fence table
func (d *Device) Fences() *FenceTable {
	return d.fences
}

// ForeignImages returns the pool of compositor owned images
func (d *Device) ForeignImages() *ForeignImagePool {
	return d.foreign
}

// Submissions returns how many chunks the worker has submitted
func (d *Device) Submissions() uint64 {
	return atomic.LoadUint64(&d.submissions)
}

// MultiView reports whether multi view rendering is enabled
func (d *Device) MultiView() bool {
	return atomic.LoadInt32(&d.multiView) != 0
}

// Idle reports whether nothing is recorded or in flight
func (d *Device) Idle() bool {
	return d.stream.Idle()
}

// LockDevice implements interface
func (d *Device) LockDevice() *device.DeviceLock {
	return device.AcquireDeviceLock(&d.deviceMutex)
}

// Flush implements interface
func (d *Device) Flush() {
	d.stream.Flush()
}

// SynchronizeStream implements interface
func (d *Device) SynchronizeStream() {
	d.stream.Synchronize()
}

// Identity implements interface
func (d *Device) Identity() device.Identity {
	return d.identity
}

// TransformImage implements interface
func (d *Device) TransformImage(tex device.Texture, subresources vk.ImageSubresourceRange, oldLayout, newLayout vk.ImageLayout) error {
	t, err := d.own(tex)
	if err != nil {
		return err
	}
	d.stream.Record(func() {
		info := t.image.Info()
		if info.Layout != oldLayout {
			d.log.WithFields(log.Fields{
				"image":    t.image.handle,
				"expected": oldLayout,
				"actual":   info.Layout,
			}).Debug("layout transition from unexpected layout")
		}
		if subresources.BaseMipLevel == 0 && subresources.LevelCount >= info.MipLevels &&
			subresources.BaseArrayLayer == 0 && subresources.LayerCount >= info.Layers {
			t.image.setLayout(newLayout)
		}
	})
	return nil
}

// CopyTextureToImage implements interface
func (d *Device) CopyTextureToImage(tex device.Texture, dst device.Image) error {
	t, err := d.own(tex)
	if err != nil {
		return err
	}
	plane, ok := d.foreign.lookup(dst.Handle())
	if !ok {
		return fmt.Errorf("%w: %#x", ErrUnknownImage, uint64(dst.Handle()))
	}

	info := dst.Info()
	size := plane.Bounds().Size()
	if info.Extent.Width != t.desc.Width || info.Extent.Height != t.desc.Height ||
		int(info.Extent.Width) != size.X || int(info.Extent.Height) != size.Y {
		return fmt.Errorf("%w: extent %dx%d, texture %dx%d", ErrImageMismatch,
			info.Extent.Width, info.Extent.Height, t.desc.Width, t.desc.Height)
	}
	if info.Format != t.mapping.FormatColor && info.Format != t.mapping.FormatSrgb {
		return fmt.Errorf("%w: format %d, texture %d", ErrImageMismatch, info.Format, t.mapping.FormatColor)
	}
	if info.Usage&vk.ImageUsageFlags(vk.ImageUsageTransferDstBit) == 0 {
		return fmt.Errorf("%w: not a transfer destination", ErrImageMismatch)
	}

	d.stream.Record(func() {
		t.mutex.RLock()
		defer t.mutex.RUnlock()
		src := t.plane(0)
		d.foreign.mutex.Lock()
		copy(plane.Pix, src.Pix)
		d.foreign.mutex.Unlock()
	})
	return nil
}

// CreateTextureFromDesc implements interface
func (d *Device) CreateTextureFromDesc(desc device.TextureDesc) (device.Texture, error) {
	if desc.Usage&(device.UsageRenderTarget|device.UsageDepthStencil) != 0 && desc.Pool != device.PoolDefault {
		return nil, fmt.Errorf("%w: attachments must live in the default pool", ErrInvalidDesc)
	}
	tex, err := d.createTexture(desc)
	if err != nil {
		return nil, err
	}
	return tex, nil
}

// CreateRenderTargetFromDesc implements interface
func (d *Device) CreateRenderTargetFromDesc(desc device.TextureDesc) (device.Texture, error) {
	isRT := desc.Usage&device.UsageRenderTarget != 0
	isDS := desc.Usage&device.UsageDepthStencil != 0
	if isRT == isDS {
		return nil, fmt.Errorf("%w: usage must be render target or depth stencil", ErrInvalidDesc)
	}
	if isDS != device.IsDepthStencil(desc.Format) {
		return nil, fmt.Errorf("%w: format %d does not fit usage", ErrInvalidDesc, desc.Format)
	}
	tex, err := d.createTexture(desc)
	if err != nil {
		return nil, err
	}
	return tex, nil
}

func (d *Device) createTexture(desc device.TextureDesc) (*Texture, error) {
	if desc.Width == 0 || desc.Height == 0 || desc.ArraySize == 0 {
		return nil, fmt.Errorf("%w: %dx%d with %d layers", ErrInvalidDesc, desc.Width, desc.Height, desc.ArraySize)
	}
	mapping, ok := device.LookupFormat(desc.Format)
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedFormat, desc.Format)
	}
	if desc.Depth == 0 {
		desc.Depth = 1
	}
	if desc.MipLevels == 0 {
		desc.MipLevels = fullMipChain(desc.Width, desc.Height)
	}

	info := device.ImageInfo{
		Type:        vk.ImageType2d,
		Format:      mapping.FormatColor,
		SampleCount: desc.MultiSample.SampleCount(),
		Extent:      vk.Extent3D{Width: desc.Width, Height: desc.Height, Depth: desc.Depth},
		Layers:      desc.ArraySize,
		MipLevels:   desc.MipLevels,
		Tiling:      vk.ImageTilingOptimal,
	}
	usage := vk.ImageUsageTransferSrcBit | vk.ImageUsageTransferDstBit
	switch {
	case desc.Usage&device.UsageRenderTarget != 0:
		usage |= vk.ImageUsageColorAttachmentBit
		info.Layout = vk.ImageLayoutColorAttachmentOptimal
	case desc.Usage&device.UsageDepthStencil != 0:
		usage |= vk.ImageUsageDepthStencilAttachmentBit
		info.Layout = vk.ImageLayoutDepthStencilAttachmentOptimal
	default:
		info.Layout = vk.ImageLayoutShaderReadOnlyOptimal
	}
	if !desc.IsAttachmentOnly {
		usage |= vk.ImageUsageSampledBit
	}
	info.Usage = vk.ImageUsageFlags(usage)

	t := &Texture{
		device:  d,
		desc:    desc,
		mapping: mapping,
		image: &Image{
			handle: device.ImageHandle(atomic.AddUint64(&d.nextImage, 0x10)),
			info:   info,
		},
		layers: make([]*image.RGBA, desc.ArraySize),
	}
	for i := range t.layers {
		t.layers[i] = image.NewRGBA(image.Rect(0, 0, int(desc.Width), int(desc.Height)))
	}

	d.log.WithFields(log.Fields{
		"image":  t.image.handle,
		"width":  desc.Width,
		"height": desc.Height,
		"layers": desc.ArraySize,
	}).Debug("texture created")
	return t, nil
}

func fullMipChain(width, height uint32) uint32 {
	levels := uint32(1)
	for width > 1 || height > 1 {
		width >>= 1
		height >>= 1
		levels++
	}
	return levels
}

// StretchRect implements interface
func (d *Device) StretchRect(src, dst device.Texture, filter device.TextureFilter, layer uint32) error {
	s, err := d.own(src)
	if err != nil {
		return err
	}
	t, err := d.own(dst)
	if err != nil {
		return err
	}
	if s == t {
		return fmt.Errorf("%w: source and destination are the same texture", ErrInvalidDesc)
	}
	if layer >= s.desc.ArraySize {
		return fmt.Errorf("%w: layer %d of %d", ErrLayerRange, layer, s.desc.ArraySize)
	}

	var scaler draw.Scaler = draw.NearestNeighbor
	if filter == device.FilterLinear {
		scaler = draw.ApproxBiLinear
	}

	d.stream.Record(func() {
		s.mutex.RLock()
		defer s.mutex.RUnlock()
		t.mutex.Lock()
		defer t.mutex.Unlock()
		from, to := s.plane(layer), t.plane(0)
		scaler.Scale(to, to.Bounds(), from, from.Bounds(), draw.Src, nil)
	})
	return nil
}

func (d *Device) own(tex device.Texture) (*Texture, error) {
	t, ok := tex.(*Texture)
	if !ok || t == nil || t.device != d {
		return nil, ErrForeignTexture
	}
	return t, nil
}

// CreateFence implements interface
func (d *Device) CreateFence(info device.FenceInfo) (device.Fence, error) {
	switch info.HandleType {
	case device.HandleTypeD3D12Fence, device.HandleTypeOpaqueWin32, device.HandleTypeOpaqueFd:
	default:
		return nil, fmt.Errorf("%w: %#x", ErrHandleType, uint32(info.HandleType))
	}

	t, err := d.fences.lookup(info.Handle)
	if err != nil {
		return nil, err
	}
	if t.load() < info.InitialValue {
		if err := t.signal(info.InitialValue); err != nil {
			return nil, err
		}
	}
	return &Fence{
		handle:   info.Handle,
		timeline: t,
	}, nil
}

// LockSubmission implements interface
func (d *Device) LockSubmission() {
	d.submissionMutex.Lock()
}

// UnlockSubmission implements interface
func (d *Device) UnlockSubmission() {
	d.submissionMutex.Unlock()
}

// WaitForIdle implements interface
func (d *Device) WaitForIdle() error {
	d.stream.Synchronize()
	return nil
}

// WaitQueueIdle implements interface
func (d *Device) WaitQueueIdle(queue device.QueueHandle) error {
	if queue != d.identity.Graphics.Handle {
		return fmt.Errorf("%w: %#x", ErrUnknownQueue, uintptr(queue))
	}
	d.stream.Synchronize()
	return nil
}

// SetMultiView implements interface
func (d *Device) SetMultiView(enable bool) {
	var v int32
	if enable {
		v = 1
	}
	atomic.StoreInt32(&d.multiView, v)
}

// Destroy stops the stream worker. Work that was never flushed is dropped.
func (d *Device) Destroy() {
	d.stream.Close()
	d.log.Debug("device destroyed")
}
