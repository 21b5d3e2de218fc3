package core

import (
	"errors"
	"fmt"

	"github.com/devblok/koruvr/xr"
)

// Interop errors. Device failures are returned as they are.
var (
	ErrInvalidCall = errors.New("invalid call")
	ErrNoInterface = errors.New("no such interface")
	ErrNoFence     = fmt.Errorf("%w: no fence imported", ErrInvalidCall)
)

// Result is the outcome reported across the interop boundary.
type Result int32

// Results, values follow HRESULT
const (
	ResultOK                Result = 0
	ResultInvalidCall       Result = -2005530516 // D3DERR_INVALIDCALL
	ResultNoInterface       Result = -2147467262 // E_NOINTERFACE
	ResultFailed            Result = -2147467259 // E_FAIL
	ResultModuleUnavailable Result = -2147024770 // HRESULT_FROM_WIN32(ERROR_MOD_NOT_FOUND)
)

// ResultOf maps an error returned by this package to its Result.
func ResultOf(err error) Result {
	switch {
	case err == nil:
		return ResultOK
	case errors.Is(err, ErrInvalidCall):
		return ResultInvalidCall
	case errors.Is(err, ErrNoInterface):
		return ResultNoInterface
	case errors.Is(err, xr.ErrModuleUnavailable):
		return ResultModuleUnavailable
	}
	return ResultFailed
}

func (r Result) String() string {
	switch r {
	case ResultOK:
		return "S_OK"
	case ResultInvalidCall:
		return "D3DERR_INVALIDCALL"
	case ResultNoInterface:
		return "E_NOINTERFACE"
	case ResultModuleUnavailable:
		return "ERROR_MOD_NOT_FOUND"
	}
	return "E_FAIL"
}
