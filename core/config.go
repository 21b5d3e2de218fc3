package core

import (
	"strconv"

	"github.com/gobuffalo/envy"
	log "github.com/sirupsen/logrus"
)

// Environment keys read by ConfigurationFromEnv
const (
	EnvFramesPerSecond = "KORUVR_FPS"
	EnvPatchArchive    = "KORUVR_PATCHES"
	EnvLogLevel        = "KORUVR_LOG_LEVEL"
)

// Configuration configures the interop layer
type Configuration struct {
	// Logger is used for diagnostics, the standard logger when nil.
	Logger *log.Entry

	Time    TimeConfiguration
	Patches PatchConfiguration
}

// TimeConfiguration is used to configure time services
type TimeConfiguration struct {
	// FramesPerSecond caps frames per second that is put out
	// To unlimit, set to 0
	FramesPerSecond int
}

// PatchConfiguration points at shader replacements
type PatchConfiguration struct {
	// Archive is the path of a kar archive with vertex shader patches.
	// Empty disables patching.
	Archive string
}

// ConfigurationFromEnv builds a Configuration from the environment, after
// loading any .env files envy finds.
func ConfigurationFromEnv() (Configuration, error) {
	level, err := log.ParseLevel(envy.Get(EnvLogLevel, "info"))
	if err != nil {
		return Configuration{}, err
	}
	logger := log.New()
	logger.SetLevel(level)

	fps, err := strconv.Atoi(envy.Get(EnvFramesPerSecond, "90"))
	if err != nil || fps < 0 {
		return Configuration{}, ErrInvalidCall
	}

	return Configuration{
		Logger: log.NewEntry(logger),
		Time: TimeConfiguration{
			FramesPerSecond: fps,
		},
		Patches: PatchConfiguration{
			Archive: envy.Get(EnvPatchArchive, ""),
		},
	}, nil
}
