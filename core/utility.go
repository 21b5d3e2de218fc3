package core

import (
	"encoding/binary"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
)

const shaderSuffix = ".spv"

// ShaderPatchFiles finds the compiled shader patches in dir. A patch file is
// named after the key of the shader it replaces, e.g. VS_<sha1>.spv.
// Files not named like that are skipped. Returns key to path.
func ShaderPatchFiles(dir string) (map[string]string, error) {
	patches := make(map[string]string)
	if err := filepath.Walk(dir, func(path string, f os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if f.IsDir() || !strings.HasSuffix(f.Name(), shaderSuffix) {
			return nil
		}

		key := strings.TrimSuffix(f.Name(), shaderSuffix)
		if !IsShaderKey(key) {
			return nil
		}
		patches[key] = path
		return nil
	}); err != nil {
		return nil, err
	}
	return patches, nil
}

// IsShaderKey reports whether s is a vertex shader key as ComputeShaderHash
// formats it.
func IsShaderKey(s string) bool {
	if !strings.HasPrefix(s, "VS_") {
		return false
	}
	digest, err := hex.DecodeString(strings.TrimPrefix(s, "VS_"))
	return err == nil && len(digest) == 20
}

// SliceUint32 decodes little endian SPIR-V words from data. Trailing bytes
// that do not make a whole word are dropped.
func SliceUint32(data []byte) []uint32 {
	if len(data) < 4 {
		return nil
	}
	words := make([]uint32, len(data)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(data[i*4:])
	}
	return words
}
