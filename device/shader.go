package device

import (
	"crypto/sha1"
	"encoding/hex"

	vk "github.com/devblok/vulkan"
)

// SpirvMagic is the first word of every SPIR-V module.
const SpirvMagic uint32 = 0x07230203

// Binding is one resource binding a shader declares.
type Binding struct {
	Set            uint32
	Binding        uint32
	DescriptorType vk.DescriptorType
	Count          uint32
	Stages         vk.ShaderStageFlags
}

// ShaderInfo describes a compiled shader. Bindings is only read when a
// compiled shader is built; afterwards they live in its binding table.
type ShaderInfo struct {
	Stage         vk.ShaderStageFlagBits
	Bindings      []Binding
	ConstantCount uint32
}

// ShaderKey identifies compiled code.
type ShaderKey struct {
	Stage vk.ShaderStageFlagBits
	Hash  [sha1.Size]byte
}

// String formats the key as stage prefix and hex digest, e.g. VS_3f2a...
func (k ShaderKey) String() string {
	return stagePrefix(k.Stage) + hex.EncodeToString(k.Hash[:])
}

func stagePrefix(stage vk.ShaderStageFlagBits) string {
	switch stage {
	case vk.ShaderStageVertexBit:
		return "VS_"
	case vk.ShaderStageFragmentBit:
		return "FS_"
	case vk.ShaderStageGeometryBit:
		return "GS_"
	case vk.ShaderStageComputeBit:
		return "CS_"
	}
	return "XS_"
}

// NewCompiledShader builds an immutable compiled shader. Code and bindings
// are copied.
func NewCompiledShader(info ShaderInfo, code []uint32) *CompiledShader {
	cs := &CompiledShader{
		info: info,
		code: append([]uint32(nil), code...),
	}
	cs.info.Bindings = nil
	for _, b := range info.Bindings {
		cs.bindings.add(b)
	}

	h := sha1.New()
	for _, w := range cs.code {
		h.Write([]byte{byte(w), byte(w >> 8), byte(w >> 16), byte(w >> 24)})
	}
	cs.key.Stage = info.Stage
	copy(cs.key.Hash[:], h.Sum(nil))
	return cs
}

// CompiledShader is the intermediate representation backing a host shader.
type CompiledShader struct {
	info     ShaderInfo
	code     []uint32
	bindings bindingTable
	key      ShaderKey
}

// Info returns the shader info without bindings.
func (c *CompiledShader) Info() ShaderInfo {
	return c.info
}

// Code returns a copy of the SPIR-V words.
func (c *CompiledShader) Code() []uint32 {
	return append([]uint32(nil), c.code...)
}

// Key returns the identifying key of the code.
func (c *CompiledShader) Key() ShaderKey {
	return c.key
}

// BindingCount returns the number of bindings in set.
func (c *CompiledShader) BindingCount(set uint32) int {
	return len(c.bindings.sets[set])
}

// Binding returns binding i of set.
func (c *CompiledShader) Binding(set uint32, i int) Binding {
	return c.bindings.sets[set][i]
}

// Bindings returns every binding, grouped by set in ascending order.
func (c *CompiledShader) Bindings() []Binding {
	return c.bindings.all()
}

type bindingTable struct {
	sets map[uint32][]Binding
	max  uint32
}

func (t *bindingTable) add(b Binding) {
	if t.sets == nil {
		t.sets = make(map[uint32][]Binding)
	}
	t.sets[b.Set] = append(t.sets[b.Set], b)
	if b.Set > t.max {
		t.max = b.Set
	}
}

func (t *bindingTable) all() []Binding {
	var out []Binding
	if t.sets == nil {
		return out
	}
	for set := uint32(0); set <= t.max; set++ {
		out = append(out, t.sets[set]...)
	}
	return out
}
