// +build !windows

package xr

import "fmt"

// SystemLoader fails everywhere but Windows, the compositor module is a DLL.
var SystemLoader Loader = LoaderFunc(func(name string) (Library, error) {
	return nil, fmt.Errorf("%w: %s: not supported on this platform", ErrModuleUnavailable, name)
})
