package core

import (
	"fmt"
	"io"

	vk "github.com/devblok/vulkan"
	log "github.com/sirupsen/logrus"

	"github.com/devblok/koruvr/device"
	"github.com/devblok/koruvr/utility/kar"
)

func compiledOf(shader device.Shader) (*device.CompiledShader, error) {
	if shader == nil {
		return nil, ErrInvalidCall
	}
	cs := shader.Compiled()
	if cs == nil {
		return nil, fmt.Errorf("%w: shader has no compiled code", ErrInvalidCall)
	}
	return cs, nil
}

// ComputeShaderHash implements interface
func (i *VulkanInterop) ComputeShaderHash(shader device.Shader) (string, error) {
	cs, err := compiledOf(shader)
	if err != nil {
		return "", err
	}
	return cs.Key().String(), nil
}

// ShaderCode implements interface
func (i *VulkanInterop) ShaderCode(shader device.Shader) ([]uint32, error) {
	cs, err := compiledOf(shader)
	if err != nil {
		return nil, err
	}
	return cs.Code(), nil
}

// ShaderConstantCount implements interface
func (i *VulkanInterop) ShaderConstantCount(shader device.Shader) (uint32, error) {
	cs, err := compiledOf(shader)
	if err != nil {
		return 0, err
	}
	return cs.Info().ConstantCount, nil
}

// SetShaderConstantCount implements interface
func (i *VulkanInterop) SetShaderConstantCount(shader device.Shader, count uint32) error {
	cs, err := compiledOf(shader)
	if err != nil {
		return err
	}
	info := cs.Info()
	info.ConstantCount = count
	info.Bindings = cs.Bindings()
	shader.Replace(device.NewCompiledShader(info, cs.Code()))
	return nil
}

// PatchVertexShaderCode replaces the code of a vertex shader, keeping its
// bindings. The shader is swapped in place, callers must make sure no draw
// using it is in flight.
func (i *VulkanInterop) PatchVertexShaderCode(shader device.Shader, code []uint32) error {
	cs, err := compiledOf(shader)
	if err != nil {
		return err
	}
	if cs.Info().Stage != vk.ShaderStageVertexBit {
		return fmt.Errorf("%w: not a vertex shader", ErrInvalidCall)
	}
	if len(code) == 0 || code[0] != device.SpirvMagic {
		return fmt.Errorf("%w: not SPIR-V", ErrInvalidCall)
	}

	info := cs.Info()
	info.Bindings = cs.Bindings()
	patched := device.NewCompiledShader(info, code)
	shader.Replace(patched)

	i.log.WithFields(log.Fields{
		"from": cs.Key().String(),
		"to":   patched.Key().String(),
	}).Debug("vertex shader patched")
	return nil
}

// PatchName is the name a patch for shader key is stored under.
func PatchName(key string) string {
	return key + shaderSuffix
}

// ApplyPatches patches every shader that has a replacement in archive and
// returns how many were patched. Shaders without one are left alone.
func ApplyPatches(iface Interop, shaders []device.Shader, archive *kar.Archive) (int, error) {
	if iface == nil || archive == nil {
		return 0, ErrInvalidCall
	}

	var patched int
	for _, shader := range shaders {
		key, err := iface.ComputeShaderHash(shader)
		if err != nil {
			return patched, err
		}
		r, err := archive.Open(PatchName(key))
		if err == kar.ErrNotFound {
			continue
		} else if err != nil {
			return patched, err
		}

		code, err := readCode(r, r.Size())
		if err != nil {
			return patched, fmt.Errorf("patch %s: %w", key, err)
		}
		if err := iface.PatchVertexShaderCode(shader, code); err != nil {
			return patched, fmt.Errorf("patch %s: %w", key, err)
		}
		patched++
	}
	return patched, nil
}

func readCode(r io.Reader, size int64) ([]uint32, error) {
	if size%4 != 0 {
		return nil, fmt.Errorf("%w: %d bytes is not a whole number of words", ErrInvalidCall, size)
	}
	data := make([]byte, size)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, err
	}
	return SliceUint32(data), nil
}
