package device

import (
	"errors"
	"fmt"
	"unsafe"

	vk "github.com/devblok/vulkan"
)

// DefaultVulkanApplicationInfo describes the interop layer to the driver
var DefaultVulkanApplicationInfo = &vk.ApplicationInfo{
	SType:              vk.StructureTypeApplicationInfo,
	ApiVersion:         vk.MakeVersion(1, 1, 0),
	ApplicationVersion: vk.MakeVersion(1, 0, 0),
	PApplicationName:   "koruvr\x00",
	PEngineName:        "koruvr\x00",
}

// InstanceConfiguration configures instance creation. Extensions and Layers
// are plain names, termination is handled here.
type InstanceConfiguration struct {
	DebugMode  bool
	Extensions []string
	Layers     []string
}

// NewVulkanInstance creates a Vulkan instance with the requested extensions
func NewVulkanInstance(appInfo *vk.ApplicationInfo, cfg InstanceConfiguration) (*VulkanInstance, error) {
	if cfg.DebugMode {
		cfg.Layers = append(cfg.Layers, "VK_LAYER_KHRONOS_validation")
		cfg.Extensions = append(cfg.Extensions, "VK_EXT_debug_report")
	}

	if err := vk.SetDefaultGetInstanceProcAddr(); err != nil {
		return nil, errors.New("vk.SetDefaultGetInstanceProcAddr(): " + err.Error())
	}

	if err := vk.Init(); err != nil {
		return nil, errors.New("vk.Init(): " + err.Error())
	}

	extensions := safeStrings(cfg.Extensions)
	layers := safeStrings(cfg.Layers)
	instanceInfo := vk.InstanceCreateInfo{
		SType:                   vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo:        appInfo,
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: extensions,
		EnabledLayerCount:       uint32(len(layers)),
		PpEnabledLayerNames:     layers,
	}

	var instance vk.Instance
	if err := vk.Error(vk.CreateInstance(&instanceInfo, nil, &instance)); err != nil {
		return nil, errors.New("vk.CreateInstance(): " + err.Error())
	}
	vk.InitInstance(instance)

	physicalDevices, err := enumerateDevices(instance)
	if err != nil {
		vk.DestroyInstance(instance, nil)
		return nil, errors.New("device.enumerateDevices(): " + err.Error())
	}

	return &VulkanInstance{
		configuration:    cfg,
		instance:         instance,
		availableDevices: physicalDevices,
	}, nil
}

// VulkanInstance owns a Vulkan instance and the physical devices it exposes
type VulkanInstance struct {
	configuration InstanceConfiguration

	availableDevices []vk.PhysicalDevice
	instance         vk.Instance
}

func enumerateDevices(instance vk.Instance) ([]vk.PhysicalDevice, error) {
	var deviceCount uint32
	if err := vk.Error(vk.EnumeratePhysicalDevices(instance, &deviceCount, nil)); err != nil {
		return nil, fmt.Errorf("vulkan physical device enumeration failed: %s", err)
	}
	availableDevices := make([]vk.PhysicalDevice, deviceCount)
	if err := vk.Error(vk.EnumeratePhysicalDevices(instance, &deviceCount, availableDevices)); err != nil {
		return nil, fmt.Errorf("vulkan physical device enumeration failed: %s", err)
	}
	return availableDevices, nil
}

// Handle returns the instance as a boundary handle
func (v *VulkanInstance) Handle() InstanceHandle {
	return InstanceHandle(uintptr(unsafe.Pointer(v.instance)))
}

// Extensions returns the extensions the instance was created with
func (v *VulkanInstance) Extensions() []string {
	return v.configuration.Extensions
}

// PhysicalDevicesInfo describes every physical device of the instance
func (v *VulkanInstance) PhysicalDevicesInfo() []PhysicalDeviceInfo {
	pdi := make([]PhysicalDeviceInfo, len(v.availableDevices))
	for i := 0; i < len(v.availableDevices); i++ {
		var numDeviceExtensions uint32
		if err := vk.Error(vk.EnumerateDeviceExtensionProperties(v.availableDevices[i], "", &numDeviceExtensions, nil)); err != nil {
			pdi[i].Invalid = true
		}
		deviceExt := make([]vk.ExtensionProperties, numDeviceExtensions)
		if err := vk.Error(vk.EnumerateDeviceExtensionProperties(v.availableDevices[i], "", &numDeviceExtensions, deviceExt)); err != nil {
			pdi[i].Invalid = true
		}
		for _, ext := range deviceExt {
			ext.Deref()
			pdi[i].Extensions = append(pdi[i].Extensions, vk.ToString(ext.ExtensionName[:]))
		}

		var numDeviceLayers uint32
		if err := vk.Error(vk.EnumerateDeviceLayerProperties(v.availableDevices[i], &numDeviceLayers, nil)); err != nil {
			pdi[i].Invalid = true
		}
		deviceLayers := make([]vk.LayerProperties, numDeviceLayers)
		if err := vk.Error(vk.EnumerateDeviceLayerProperties(v.availableDevices[i], &numDeviceLayers, deviceLayers)); err != nil {
			pdi[i].Invalid = true
		}
		for _, layer := range deviceLayers {
			layer.Deref()
			pdi[i].Layers = append(pdi[i].Layers, vk.ToString(layer.LayerName[:]))
		}

		var memoryProperties vk.PhysicalDeviceMemoryProperties
		vk.GetPhysicalDeviceMemoryProperties(v.availableDevices[i], &memoryProperties)
		memoryProperties.Deref()
		for iMem := uint32(0); iMem < memoryProperties.MemoryHeapCount; iMem++ {
			memoryProperties.MemoryHeaps[iMem].Deref()
			pdi[i].Memory = pdi[i].Memory + uint(memoryProperties.MemoryHeaps[iMem].Size)
		}

		var physicalDeviceProperties vk.PhysicalDeviceProperties
		vk.GetPhysicalDeviceProperties(v.availableDevices[i], &physicalDeviceProperties)
		physicalDeviceProperties.Deref()
		pdi[i].ID = int(physicalDeviceProperties.DeviceID)
		pdi[i].VendorID = int(physicalDeviceProperties.VendorID)
		pdi[i].Name = vk.ToString(physicalDeviceProperties.DeviceName[:])
		pdi[i].DriverVersion = int(physicalDeviceProperties.DriverVersion)
	}
	return pdi
}

// NewDevice creates a logical device with one graphics queue on the physical
// device at index.
func (v *VulkanInstance) NewDevice(index int, extensions []string) (*VulkanDevice, error) {
	if index < 0 || index >= len(v.availableDevices) {
		return nil, fmt.Errorf("physical device %d out of range (%d available)", index, len(v.availableDevices))
	}
	physicalDevice := v.availableDevices[index]

	family, err := graphicsQueueFamily(physicalDevice)
	if err != nil {
		return nil, err
	}

	queueInfos := []vk.DeviceQueueCreateInfo{{
		SType:            vk.StructureTypeDeviceQueueCreateInfo,
		QueueFamilyIndex: family,
		QueueCount:       1,
		PQueuePriorities: []float32{1.0},
	}}

	safeExtensions := safeStrings(extensions)
	dci := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(queueInfos)),
		PQueueCreateInfos:       queueInfos,
		EnabledExtensionCount:   uint32(len(safeExtensions)),
		PpEnabledExtensionNames: safeExtensions,
	}

	var logicalDevice vk.Device
	if err := vk.Error(vk.CreateDevice(physicalDevice, &dci, nil, &logicalDevice)); err != nil {
		return nil, errors.New("vk.CreateDevice(): " + err.Error())
	}

	var queue vk.Queue
	vk.GetDeviceQueue(logicalDevice, family, 0, &queue)

	return &VulkanDevice{
		instance:       v,
		physicalDevice: physicalDevice,
		device:         logicalDevice,
		queue:          queue,
		queueFamily:    family,
		extensions:     extensions,
	}, nil
}

func graphicsQueueFamily(physicalDevice vk.PhysicalDevice) (uint32, error) {
	var queueFamilyCount uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(physicalDevice, &queueFamilyCount, nil)
	if queueFamilyCount == 0 {
		return 0, errors.New("vk.GetPhysicalDeviceQueueFamilyProperties(): no queuefamilies on GPU")
	}
	queueFamilies := make([]vk.QueueFamilyProperties, queueFamilyCount)
	vk.GetPhysicalDeviceQueueFamilyProperties(physicalDevice, &queueFamilyCount, queueFamilies)

	for i := uint32(0); i < queueFamilyCount; i++ {
		queueFamilies[i].Deref()
		if queueFamilies[i].QueueFlags&vk.QueueFlags(vk.QueueGraphicsBit) != 0 {
			return i, nil
		}
	}
	return 0, errors.New("vulkan error: could not find a graphics queue family")
}

// Destroy implements interface
func (v *VulkanInstance) Destroy() {
	v.availableDevices = nil
	vk.DestroyInstance(v.instance, nil)
}

// VulkanDevice is a logical device with its graphics queue
type VulkanDevice struct {
	instance       *VulkanInstance
	physicalDevice vk.PhysicalDevice
	device         vk.Device
	queue          vk.Queue
	queueFamily    uint32
	extensions     []string
}

// Identity returns the boundary handles of the device
func (d *VulkanDevice) Identity() Identity {
	return Identity{
		Instance:       d.instance.Handle(),
		PhysicalDevice: PhysicalDeviceHandle(uintptr(unsafe.Pointer(d.physicalDevice))),
		Device:         DeviceHandle(uintptr(unsafe.Pointer(d.device))),
		Graphics: QueueInfo{
			Handle: QueueHandle(uintptr(unsafe.Pointer(d.queue))),
			Family: d.queueFamily,
			Index:  0,
		},
	}
}

// Extensions returns the device extensions that were enabled
func (d *VulkanDevice) Extensions() []string {
	return d.extensions
}

// WaitForIdle waits on the whole device
func (d *VulkanDevice) WaitForIdle() error {
	if err := vk.Error(vk.DeviceWaitIdle(d.device)); err != nil {
		return errors.New("vk.DeviceWaitIdle(): " + err.Error())
	}
	return nil
}

// WaitQueueIdle waits on the graphics queue
func (d *VulkanDevice) WaitQueueIdle() error {
	if err := vk.Error(vk.QueueWaitIdle(d.queue)); err != nil {
		return errors.New("vk.QueueWaitIdle(): " + err.Error())
	}
	return nil
}

// Destroy implements interface
func (d *VulkanDevice) Destroy() {
	vk.DeviceWaitIdle(d.device)
	vk.DestroyDevice(d.device, nil)
}

func safeStrings(sgs []string) []string {
	safe := make([]string, 0, len(sgs))
	for _, s := range sgs {
		safe = append(safe, s+"\x00")
	}
	return safe
}
