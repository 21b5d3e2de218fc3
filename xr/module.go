package xr

import (
	"errors"
	"unsafe"
)

// ErrModuleUnavailable is returned when the compositor module could not be
// loaded, does not export its entry point, or was already shut down.
var ErrModuleUnavailable = errors.New("compositor module unavailable")

// Opcode selects what the module's entry point does.
type Opcode uint64

// Opcodes understood by the compositor module
const (
	OpInstanceExtensions Opcode = 0x4
	OpDeviceExtensions   Opcode = 0x8
)

// ExecFunc is the resolved entry point. Extension opcodes return a NUL
// terminated string owned by the module, or nil.
type ExecFunc func(op Opcode, arg uint64) *byte

// Library is a loaded compositor module.
type Library interface {
	// Resolve looks up the exported entry point called symbol.
	Resolve(symbol string) (ExecFunc, error)

	// Close drops the reference taken by Load.
	Close() error
}

// Loader loads compositor modules.
type Loader interface {
	Load(name string) (Library, error)
}

// LoaderFunc adapts a function to Loader
type LoaderFunc func(name string) (Library, error)

// Load implements interface
func (f LoaderFunc) Load(name string) (Library, error) {
	return f(name)
}

// goString copies a NUL terminated foreign string.
func goString(p *byte) string {
	if p == nil {
		return ""
	}
	var n uintptr
	for *(*byte)(unsafe.Pointer(uintptr(unsafe.Pointer(p)) + n)) != 0 {
		n++
	}
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = *(*byte)(unsafe.Pointer(uintptr(unsafe.Pointer(p)) + uintptr(i)))
	}
	return string(buf)
}
