package main

import (
	"context"
	"fmt"
	"image/color"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/devblok/koruvr/core"
	"github.com/devblok/koruvr/device"
	"github.com/devblok/koruvr/device/software"
)

// compositor plays the VR runtime side of the protocol against a software
// host device: it pulls both eyes out of a stereo render target every frame
// and hands them to images it owns.
type compositor struct {
	dev   *software.Device
	iface *core.VulkanInterop
	log   *log.Entry

	width, height uint32

	stereo *software.Texture
	eyes   []device.Texture
	images []device.ImageHandle
	fence  device.SharedHandle
}

var eyeColors = []color.RGBA{
	{R: 255, A: 255},
	{B: 255, A: 255},
}

func newCompositor(dev *software.Device, iface *core.VulkanInterop, width, height uint32, logger *log.Entry) (*compositor, error) {
	c := &compositor{
		dev:    dev,
		iface:  iface,
		log:    logger,
		width:  width,
		height: height,
		fence:  dev.Fences().Create(0),
	}

	stereo, err := iface.CreateArrayRenderTarget(core.ArrayDesc{
		Width:  width,
		Height: height,
		Format: device.FormatA8R8G8B8,
		Views:  uint32(len(eyeColors)),
	})
	if err != nil {
		return nil, err
	}
	c.stereo = stereo.(*software.Texture)

	for range eyeColors {
		eye, err := iface.CreateArrayRenderTarget(core.ArrayDesc{
			Width:  width,
			Height: height,
			Format: device.FormatA8R8G8B8,
			Views:  1,
		})
		if err != nil {
			return nil, err
		}
		c.eyes = append(c.eyes, eye)
		c.images = append(c.images, dev.ForeignImages().Allocate(int(width), int(height)))
	}

	if err := iface.ImportFence(c.fence, 0); err != nil {
		return nil, err
	}
	if err := iface.EnableMultiView(true); err != nil {
		return nil, err
	}
	return c, nil
}

// render records what the game would draw into the stereo target.
func (c *compositor) render(frame uint64) {
	for layer, base := range eyeColors {
		shade := base
		shade.G = uint8(frame)
		c.stereo.Fill(uint32(layer), shade)
	}
}

// submit runs the compositor side of one frame and waits for the fence.
func (c *compositor) submit(ctx context.Context, frame uint64) error {
	if err := c.iface.PrepareForExternalRead(c.stereo); err != nil {
		return err
	}
	if err := c.iface.CopyLayeredSurface(c.stereo, c.eyes); err != nil {
		return err
	}

	for idx, eye := range c.eyes {
		desc, err := c.iface.Describe(eye)
		if err != nil {
			return err
		}
		if err := c.iface.CopyToForeignImage(eye, c.images[idx], desc.Format, desc.Width, desc.Height); err != nil {
			return err
		}
	}

	guard := c.iface.AcquireDevice()
	submission, err := guard.BeginSubmission()
	if err != nil {
		guard.Release()
		return err
	}
	signalErr := c.iface.SignalFence(frame)
	releaseErr := submission.Release()
	guard.Release()
	if signalErr != nil {
		return signalErr
	}
	if releaseErr != nil {
		return releaseErr
	}

	return c.dev.Fences().Wait(ctx, c.fence, frame)
}

// verify checks the foreign images hold the colors rendered for frame.
func (c *compositor) verify(frame uint64) error {
	for idx, base := range eyeColors {
		want := base
		want.G = uint8(frame)
		if got := c.dev.ForeignImages().At(c.images[idx], int(c.width)/2, int(c.height)/2); got != want {
			return fmt.Errorf("eye %d: expected %v, got %v", idx, want, got)
		}
	}
	return nil
}

// frame renders, submits and verifies one frame within budget.
func (c *compositor) frame(frame uint64, budget time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), budget)
	defer cancel()

	c.render(frame)
	if err := c.submit(ctx, frame); err != nil {
		return err
	}
	return c.verify(frame)
}

func (c *compositor) destroy() {
	c.iface.EnableMultiView(false)
	c.iface.Destroy()
}
