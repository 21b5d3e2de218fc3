package software

import (
	"image"
	"image/color"
	"sync"

	vk "github.com/devblok/vulkan"

	"github.com/devblok/koruvr/device"
)

// Image is a device owned image. Its layout is only changed by the stream.
type Image struct {
	handle device.ImageHandle

	mutex sync.Mutex
	info  device.ImageInfo
}

// Handle implements interface
func (i *Image) Handle() device.ImageHandle {
	return i.handle
}

// Info implements interface
func (i *Image) Info() device.ImageInfo {
	i.mutex.Lock()
	defer i.mutex.Unlock()
	return i.info
}

func (i *Image) setLayout(layout vk.ImageLayout) {
	i.mutex.Lock()
	i.info.Layout = layout
	i.mutex.Unlock()
}

// Texture is a texture with one RGBA plane per array layer. Only the top
// mip level carries pixels.
type Texture struct {
	device  *Device
	desc    device.TextureDesc
	mapping device.FormatMapping
	image   *Image

	mutex  sync.RWMutex
	layers []*image.RGBA
}

// Image implements interface
func (t *Texture) Image() device.Image {
	return t.image
}

// Desc implements interface
func (t *Texture) Desc() device.TextureDesc {
	return t.desc
}

// Device implements interface
func (t *Texture) Device() device.Device {
	return t.device
}

// FormatMapping implements interface
func (t *Texture) FormatMapping() device.FormatMapping {
	return t.mapping
}

// Fill paints layer with c. It is recorded on the stream like any other
// rendering command.
func (t *Texture) Fill(layer uint32, c color.RGBA) {
	t.device.stream.Record(func() {
		t.mutex.Lock()
		defer t.mutex.Unlock()
		if int(layer) >= len(t.layers) {
			return
		}
		plane := t.layers[layer]
		for i := 0; i < len(plane.Pix); i += 4 {
			plane.Pix[i+0] = c.R
			plane.Pix[i+1] = c.G
			plane.Pix[i+2] = c.B
			plane.Pix[i+3] = c.A
		}
	})
}

// At returns the pixel at x, y of layer as seen by the last executed command.
func (t *Texture) At(layer uint32, x, y int) color.RGBA {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	if int(layer) >= len(t.layers) {
		return color.RGBA{}
	}
	return t.layers[layer].RGBAAt(x, y)
}

func (t *Texture) plane(layer uint32) *image.RGBA {
	if int(layer) >= len(t.layers) {
		return nil
	}
	return t.layers[layer]
}

// ForeignImagePool stands in for images a compositor allocates with its own
// API. Copies into them are visible through At.
type ForeignImagePool struct {
	mutex  sync.Mutex
	next   device.ImageHandle
	images map[device.ImageHandle]*image.RGBA
}

func newForeignImagePool() *ForeignImagePool {
	return &ForeignImagePool{
		next:   0xF0000000,
		images: make(map[device.ImageHandle]*image.RGBA),
	}
}

// Allocate creates a foreign image of the given size.
func (p *ForeignImagePool) Allocate(width, height int) device.ImageHandle {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.next += 0x10
	p.images[p.next] = image.NewRGBA(image.Rect(0, 0, width, height))
	return p.next
}

// At returns the pixel at x, y of the foreign image h.
func (p *ForeignImagePool) At(h device.ImageHandle, x, y int) color.RGBA {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	img, ok := p.images[h]
	if !ok {
		return color.RGBA{}
	}
	return img.RGBAAt(x, y)
}

func (p *ForeignImagePool) lookup(h device.ImageHandle) (*image.RGBA, bool) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	img, ok := p.images[h]
	return img, ok
}
