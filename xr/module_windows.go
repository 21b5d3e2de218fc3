// +build windows

package xr

import (
	"fmt"
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	kernel32               = windows.NewLazySystemDLL("kernel32.dll")
	procGetModuleHandleExW = kernel32.NewProc("GetModuleHandleExW")
)

// SystemLoader finds modules the host process has already loaded. It never
// loads a module itself. The reference it takes is dropped by Close.
var SystemLoader Loader = LoaderFunc(findModule)

func findModule(name string) (Library, error) {
	name16, err := windows.UTF16PtrFromString(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrModuleUnavailable, name, err)
	}
	var h windows.Handle
	r, _, callErr := procGetModuleHandleExW.Call(0, uintptr(unsafe.Pointer(name16)), uintptr(unsafe.Pointer(&h)))
	if r == 0 {
		return nil, fmt.Errorf("%w: GetModuleHandleEx(%s): %v", ErrModuleUnavailable, name, callErr)
	}
	return &library{handle: h}, nil
}

type library struct {
	handle windows.Handle
}

func (l *library) Resolve(symbol string) (ExecFunc, error) {
	proc, err := windows.GetProcAddress(l.handle, symbol)
	if err != nil {
		return nil, fmt.Errorf("%w: GetProcAddress(%s): %v", ErrModuleUnavailable, symbol, err)
	}
	return func(op Opcode, arg uint64) *byte {
		r, _, _ := syscall.Syscall(proc, 2, uintptr(op), uintptr(arg), 0)
		return (*byte)(unsafe.Pointer(r))
	}, nil
}

func (l *library) Close() error {
	return windows.FreeLibrary(l.handle)
}
