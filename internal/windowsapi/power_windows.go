package windowsapi

import (
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"

	"gameboost/internal/primitive"
)

var (
	procPowerGetActiveScheme = modpowrpf.NewProc("PowerGetActiveScheme")
	procPowerSetActiveScheme = modpowrpf.NewProc("PowerSetActiveScheme")
)

// activePowerPlan returns the normalized GUID of the active power scheme.
func activePowerPlan() (string, error) {
	if err := procPowerGetActiveScheme.Find(); err != nil {
		return "", primitive.Fail(primitive.OpActivePowerPlan, "", primitive.ReasonUnsupported, err)
	}

	var guid *windows.GUID
	r, _, _ := syscall.SyscallN(procPowerGetActiveScheme.Addr(), 0, uintptr(unsafe.Pointer(&guid)))
	if r != 0 {
		err := windows.Errno(r)
		return "", primitive.Fail(primitive.OpActivePowerPlan, "", reasonFor(err), err)
	}
	// The scheme GUID is LocalAlloc'd by powrprof.
	defer windows.LocalFree(windows.Handle(unsafe.Pointer(guid)))

	return primitive.NormalizePlanID(guid.String()), nil
}

// setPowerPlan activates the scheme with the given GUID.
func setPowerPlan(id string) error {
	if err := procPowerSetActiveScheme.Find(); err != nil {
		return primitive.Fail(primitive.OpSetPowerPlan, id, primitive.ReasonUnsupported, err)
	}

	guid, err := windows.GUIDFromString("{" + primitive.NormalizePlanID(id) + "}")
	if err != nil {
		return primitive.Fail(primitive.OpSetPowerPlan, id, primitive.ReasonNotFound, err)
	}

	r, _, _ := syscall.SyscallN(procPowerSetActiveScheme.Addr(), 0, uintptr(unsafe.Pointer(&guid)))
	if r != 0 {
		err := windows.Errno(r)
		return primitive.Fail(primitive.OpSetPowerPlan, id, reasonFor(err), err)
	}
	return nil
}
