package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	units "github.com/docker/go-units"
	log "github.com/sirupsen/logrus"

	"github.com/devblok/koruvr/device"
	"github.com/devblok/koruvr/xr"
)

var (
	debugMode   = flag.Bool("debug", false, "Enable validation layers")
	deviceIndex = flag.Int("device", -1, "Create a device on this adapter and print its identity")
	verbose     = flag.Bool("v", false, "Verbose logging")
)

type adapter struct {
	device.PhysicalDeviceInfo
	MemoryHuman string
}

type report struct {
	InstanceExtensions []string
	DeviceExtensions   []string `json:",omitempty"`
	Adapters           []adapter
	Identity           *device.Identity `json:",omitempty"`
}

func main() {
	flag.Parse()
	if *verbose {
		log.SetLevel(log.DebugLevel)
	}

	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	provider := xr.Default()
	if err := provider.InitInstanceExtensions(); err != nil {
		log.WithError(err).Warn("compositor extensions unavailable")
	}

	var out report
	out.InstanceExtensions = provider.InstanceExtensions().Names()

	instance, err := device.NewVulkanInstance(device.DefaultVulkanApplicationInfo, device.InstanceConfiguration{
		DebugMode:  *debugMode,
		Extensions: out.InstanceExtensions,
	})
	if err != nil {
		return err
	}
	defer instance.Destroy()

	for _, info := range instance.PhysicalDevicesInfo() {
		out.Adapters = append(out.Adapters, adapter{
			PhysicalDeviceInfo: info,
			MemoryHuman:        units.BytesSize(float64(info.Memory)),
		})
		log.WithFields(log.Fields{
			"name":   info.Name,
			"memory": units.BytesSize(float64(info.Memory)),
		}).Info("adapter found")
	}

	if *deviceIndex >= 0 {
		if err := provider.InitDeviceExtensions(); err != nil {
			log.WithError(err).Warn("compositor device extensions unavailable")
		}
		out.DeviceExtensions = provider.DeviceExtensions().Names()

		dev, err := instance.NewDevice(*deviceIndex, out.DeviceExtensions)
		if err != nil {
			return err
		}
		defer dev.Destroy()
		id := dev.Identity()
		out.Identity = &id
	}

	bytes, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "%s\n", bytes)
	return nil
}
