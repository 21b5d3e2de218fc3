// Package xr asks the VR compositor module which Vulkan extensions it needs
// before the host creates its instance and device.
package xr

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gobuffalo/envy"
	log "github.com/sirupsen/logrus"
)

// Extensions every compositor needs for presentation
const (
	SurfaceExtensionName      = "VK_KHR_surface"
	Win32SurfaceExtensionName = "VK_KHR_win32_surface"
	SwapchainExtensionName    = "VK_KHR_swapchain"
)

// Environment keys read by ProviderConfigurationFromEnv
const (
	EnvModule     = "KORUVR_XR_MODULE"
	EnvEntryPoint = "KORUVR_XR_ENTRY"
)

// Defaults of ProviderConfiguration
const (
	DefaultModule     = `Plugins\openRBRVR.dll`
	DefaultEntryPoint = "openRBRVR_Exec"
)

// ProviderConfiguration configures an extension provider
type ProviderConfiguration struct {
	Module     string
	EntryPoint string
	Logger     *log.Entry
}

// ProviderConfigurationFromEnv reads the module location from the environment.
func ProviderConfigurationFromEnv() ProviderConfiguration {
	return ProviderConfiguration{
		Module:     envy.Get(EnvModule, DefaultModule),
		EntryPoint: envy.Get(EnvEntryPoint, DefaultEntryPoint),
	}
}

// State of a provider
type State int

// Provider states, in the only order they are reached. Failing to load
// jumps straight to StateShutDown.
const (
	StateUnloaded State = iota
	StateLoaded
	StateInstanceExtensionsQueried
	StateDeviceExtensionsQueried
	StateShutDown
)

func (s State) String() string {
	switch s {
	case StateUnloaded:
		return "unloaded"
	case StateLoaded:
		return "loaded"
	case StateInstanceExtensionsQueried:
		return "instance extensions queried"
	case StateDeviceExtensionsQueried:
		return "device extensions queried"
	case StateShutDown:
		return "shut down"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

var (
	defaultOnce     sync.Once
	defaultProvider *Provider
)

// Default returns the process wide provider, configured from the environment
// and loading through SystemLoader.
func Default() *Provider {
	defaultOnce.Do(func() {
		defaultProvider = NewProvider(ProviderConfigurationFromEnv(), SystemLoader)
	})
	return defaultProvider
}

// NewProvider creates a provider that loads its module through loader.
func NewProvider(cfg ProviderConfiguration, loader Loader) *Provider {
	if cfg.Module == "" {
		cfg.Module = DefaultModule
	}
	if cfg.EntryPoint == "" {
		cfg.EntryPoint = DefaultEntryPoint
	}
	if cfg.Logger == nil {
		cfg.Logger = log.NewEntry(log.StandardLogger())
	}
	return &Provider{
		module:     cfg.Module,
		entryPoint: cfg.EntryPoint,
		loader:     loader,
		log:        cfg.Logger.WithField("provider", "OpenXR"),
	}
}

// Provider discovers the extensions a compositor module requires. Both
// extension sets are written once. One mutex guards all of its state.
type Provider struct {
	module     string
	entryPoint string
	loader     Loader
	log        *log.Entry

	mutex         sync.Mutex
	state         State
	library       Library
	exec          ExecFunc
	insExtensions NameSet
	devExtensions NameSet
	insInit       bool
	devInit       bool
}

// Name returns the name of the provider
func (p *Provider) Name() string {
	return "OpenXR"
}

// State returns the current lifecycle state
func (p *Provider) State() State {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.state
}

// InstanceExtensionsInitialized reports whether instance extensions were queried
func (p *Provider) InstanceExtensionsInitialized() bool {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.insInit
}

// DeviceExtensionsInitialized reports whether device extensions were queried
func (p *Provider) DeviceExtensionsInitialized() bool {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.devInit
}

// InstanceExtensions returns a copy of the instance extensions, empty
// before InitInstanceExtensions succeeded.
func (p *Provider) InstanceExtensions() NameSet {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.insExtensions.Clone()
}

// DeviceExtensions returns a copy of the device extensions, empty before
// InitDeviceExtensions succeeded.
func (p *Provider) DeviceExtensions() NameSet {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.devExtensions.Clone()
}

// InitInstanceExtensions loads the module if needed and asks it for its
// instance extensions. A module that fails to load shuts the provider down
// for good, later calls return ErrModuleUnavailable.
func (p *Provider) InitInstanceExtensions() error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.insInit {
		return nil
	}
	if p.state == StateShutDown {
		return ErrModuleUnavailable
	}

	if p.library == nil {
		if p.loader == nil {
			p.shutdownLocked()
			return ErrModuleUnavailable
		}
		library, err := p.loader.Load(p.module)
		if err != nil {
			p.log.WithError(err).WithField("module", p.module).Warn("compositor module not loaded")
			p.shutdownLocked()
			return unavailable(err)
		}
		p.library = library
		p.state = StateLoaded
		p.log.WithField("module", p.module).Debug("compositor module loaded")
	}

	exec, err := p.library.Resolve(p.entryPoint)
	if err != nil || exec == nil {
		p.log.WithError(err).WithField("symbol", p.entryPoint).Warn("compositor entry point missing")
		p.shutdownLocked()
		return unavailable(err)
	}
	p.exec = exec

	set := NewNameSet(SurfaceExtensionName, Win32SurfaceExtensionName)
	set.Merge(p.query(OpInstanceExtensions))
	p.insExtensions = set
	p.insInit = true
	p.state = StateInstanceExtensionsQueried
	p.log.WithField("extensions", set.Names()).Debug("instance extensions queried")
	return nil
}

// InitDeviceExtensions asks the module for its device extensions and then
// shuts the provider down, it is the last call made into the module.
func (p *Provider) InitDeviceExtensions() error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.devInit {
		return nil
	}
	if p.exec == nil {
		return ErrModuleUnavailable
	}

	set := NewNameSet(SwapchainExtensionName)
	set.Merge(p.query(OpDeviceExtensions))
	p.devExtensions = set
	p.devInit = true
	p.state = StateDeviceExtensionsQueried
	p.log.WithField("extensions", set.Names()).Debug("device extensions queried")

	p.shutdownLocked()
	return nil
}

// Shutdown drops the module. The provider cannot load it again.
func (p *Provider) Shutdown() {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.shutdownLocked()
}

func (p *Provider) query(op Opcode) NameSet {
	return ParseNameList(goString(p.exec(op, 0)))
}

func (p *Provider) shutdownLocked() {
	p.exec = nil
	if p.library != nil {
		if err := p.library.Close(); err != nil {
			p.log.WithError(err).Warn("closing compositor module failed")
		}
		p.library = nil
	}
	if p.state != StateShutDown {
		p.log.Debug("shut down")
	}
	p.state = StateShutDown
}

func unavailable(err error) error {
	if err == nil {
		return ErrModuleUnavailable
	}
	if errors.Is(err, ErrModuleUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrModuleUnavailable, err)
}
