package software

import (
	"sync"

	"github.com/devblok/koruvr/device"
)

// Shader is a host shader object.
type Shader struct {
	mutex    sync.RWMutex
	compiled *device.CompiledShader
}

// NewShader wraps compiled code in a shader object
func NewShader(info device.ShaderInfo, code []uint32) *Shader {
	return &Shader{
		compiled: device.NewCompiledShader(info, code),
	}
}

// Compiled implements interface
func (s *Shader) Compiled() *device.CompiledShader {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.compiled
}

// Replace implements interface
func (s *Shader) Replace(cs *device.CompiledShader) {
	s.mutex.Lock()
	s.compiled = cs
	s.mutex.Unlock()
}
