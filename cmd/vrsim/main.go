package main

import (
	"bytes"
	"flag"
	"os"
	"os/signal"
	"strconv"
	"time"

	vk "github.com/devblok/vulkan"
	"github.com/gobuffalo/envy"
	"github.com/gobuffalo/packr"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"golang.org/x/exp/mmap"

	"github.com/devblok/koruvr/core"
	"github.com/devblok/koruvr/device"
	"github.com/devblok/koruvr/device/software"
	"github.com/devblok/koruvr/utility/kar"
	"github.com/devblok/koruvr/xr"
)

// StaticResources carries the bundled defaults
var StaticResources packr.Box

func init() {
	StaticResources = packr.NewBox("./resources")
}

var (
	frames  = flag.Uint64("frames", 0, "Stop after this many frames, 0 runs until interrupted")
	envFile = flag.String("env", "", "Load this .env file before the bundled defaults")
)

// loadDefaults sets every bundled default the environment does not set.
func loadDefaults() error {
	if *envFile != "" {
		if err := envy.Load(*envFile); err != nil {
			return err
		}
	}
	defaults, err := godotenv.Parse(bytes.NewReader(StaticResources.Bytes("default.env")))
	if err != nil {
		return err
	}
	for key, value := range defaults {
		if _, err := envy.MustGet(key); err != nil {
			envy.Set(key, value)
		}
	}
	return nil
}

func sizeFromEnv(key string) (uint32, error) {
	v, err := strconv.ParseUint(envy.Get(key, "1024"), 10, 32)
	if err != nil {
		return 0, err
	}
	return uint32(v), nil
}

func main() {
	flag.Parse()

	if err := loadDefaults(); err != nil {
		log.Fatal(err)
	}
	cfg, err := core.ConfigurationFromEnv()
	if err != nil {
		log.Fatal(err)
	}
	width, err := sizeFromEnv("VRSIM_WIDTH")
	if err != nil {
		log.Fatal(err)
	}
	height, err := sizeFromEnv("VRSIM_HEIGHT")
	if err != nil {
		log.Fatal(err)
	}

	provider := xr.Default()
	if err := provider.InitInstanceExtensions(); err != nil {
		cfg.Logger.WithError(err).Warn("running without compositor extensions")
	} else if err := provider.InitDeviceExtensions(); err != nil {
		cfg.Logger.WithError(err).Warn("device extensions unavailable")
	}
	cfg.Logger.WithFields(log.Fields{
		"instance": provider.InstanceExtensions().Names(),
		"device":   provider.DeviceExtensions().Names(),
	}).Info("extensions")

	dev := software.New(software.Configuration{Logger: cfg.Logger})
	defer dev.Destroy()

	iface, err := core.NewVulkanInterop(dev, cfg)
	if err != nil {
		cfg.Logger.Fatal(err)
	}

	if cfg.Patches.Archive != "" {
		if err := applyPatches(iface, cfg.Patches.Archive, cfg.Logger); err != nil {
			cfg.Logger.Fatal(err)
		}
	}

	comp, err := newCompositor(dev, iface, width, height, cfg.Logger)
	if err != nil {
		cfg.Logger.Fatal(err)
	}
	defer comp.destroy()

	clock := core.NewTime(cfg.Time)
	defer clock.Stop()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	budget := time.Second
	if 4*clock.Interval() > budget {
		budget = 4 * clock.Interval()
	}

FrameLoop:
	for {
		select {
		case <-interrupt:
			cfg.Logger.Info("Frame loop interrupted")
			break FrameLoop
		case <-clock.FpsTicker().C:
			n := clock.Frame()
			if err := comp.frame(n, budget); err != nil {
				cfg.Logger.WithError(err).WithField("frame", n).Error("frame failed")
				break FrameLoop
			}
			if *frames != 0 && n >= *frames {
				break FrameLoop
			}
		}
	}

	cfg.Logger.WithFields(log.Fields{
		"frames":  clock.Frames(),
		"elapsed": clock.Elapsed(),
	}).Info("Frame loop exited")
}

func applyPatches(iface core.Interop, path string, logger *log.Entry) error {
	r, err := mmap.Open(path)
	if err != nil {
		return err
	}
	defer r.Close()

	archive, err := kar.Open(r)
	if err != nil {
		return err
	}

	shaders := gameShaders()
	patched, err := core.ApplyPatches(iface, shaders, archive)
	if err != nil {
		return err
	}
	logger.WithFields(log.Fields{
		"archive": path,
		"patched": patched,
		"shaders": len(shaders),
	}).Info("vertex shaders patched")
	return nil
}

// gameShaders stands in for the vertex shaders a game would create.
func gameShaders() []device.Shader {
	var shaders []device.Shader
	for idx := uint32(0); idx < 4; idx++ {
		shaders = append(shaders, software.NewShader(device.ShaderInfo{
			Stage:         vk.ShaderStageVertexBit,
			ConstantCount: 256,
		}, []uint32{device.SpirvMagic, 0x00010000, idx}))
	}
	return shaders
}
