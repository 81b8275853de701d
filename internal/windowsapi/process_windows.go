package windowsapi

import (
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"

	"gameboost/internal/primitive"
)

var (
	modntdll  = windows.NewLazySystemDLL("ntdll.dll")
	modpsapi  = windows.NewLazySystemDLL("psapi.dll")
	modpowrpf = windows.NewLazySystemDLL("powrprof.dll")

	// Undocumented but stable since XP; the same calls Process Explorer uses.
	procNtSuspendProcess = modntdll.NewProc("NtSuspendProcess")
	procNtResumeProcess  = modntdll.NewProc("NtResumeProcess")

	procEmptyWorkingSet = modpsapi.NewProc("EmptyWorkingSet")
)

// processSnapshot walks the process list with CreateToolhelp32Snapshot.
func processSnapshot() ([]primitive.ProcessInfo, error) {
	snapshot, err := windows.CreateToolhelp32Snapshot(windows.TH32CS_SNAPPROCESS, 0)
	if err != nil {
		return nil, primitive.Fail(primitive.OpSnapshot, "", reasonFor(err), err)
	}
	defer windows.CloseHandle(snapshot)

	var pe32 windows.ProcessEntry32
	pe32.Size = uint32(unsafe.Sizeof(pe32))
	if err := windows.Process32First(snapshot, &pe32); err != nil {
		return nil, primitive.Fail(primitive.OpSnapshot, "", reasonFor(err), err)
	}

	processes := make([]primitive.ProcessInfo, 0, 256)
	for {
		processes = append(processes, primitive.ProcessInfo{
			PID:       pe32.ProcessID,
			ParentPID: pe32.ParentProcessID,
			Name:      windows.UTF16ToString(pe32.ExeFile[:]),
		})

		if err := windows.Process32Next(snapshot, &pe32); err != nil {
			if err == windows.ERROR_NO_MORE_FILES {
				break
			}
			return nil, primitive.Fail(primitive.OpSnapshot, "", reasonFor(err), err)
		}
	}
	return processes, nil
}

func suspendProcess(pid uint32) error {
	return controlProcess(primitive.OpSuspend, procNtSuspendProcess, pid)
}

func resumeProcess(pid uint32) error {
	return controlProcess(primitive.OpResume, procNtResumeProcess, pid)
}

// controlProcess opens pid with PROCESS_SUSPEND_RESUME and calls one of the
// Nt{Suspend,Resume}Process entry points on the handle.
func controlProcess(op primitive.Op, proc *windows.LazyProc, pid uint32) error {
	target := pidTarget(pid)
	if err := proc.Find(); err != nil {
		return primitive.Fail(op, target, primitive.ReasonUnsupported, err)
	}

	h, err := windows.OpenProcess(windows.PROCESS_SUSPEND_RESUME, false, pid)
	if err != nil {
		return primitive.Fail(op, target, reasonFor(err), err)
	}
	defer windows.CloseHandle(h)

	r, _, _ := syscall.SyscallN(proc.Addr(), uintptr(h))
	if st := windows.NTStatus(r); st != windows.STATUS_SUCCESS {
		return primitive.Fail(op, target, ntReason(st), st)
	}
	return nil
}

// emptyWorkingSet asks the memory manager to page out as much of pid's
// working set as possible.
func emptyWorkingSet(pid uint32) error {
	target := pidTarget(pid)
	if err := procEmptyWorkingSet.Find(); err != nil {
		return primitive.Fail(primitive.OpTrimWorkingSet, target, primitive.ReasonUnsupported, err)
	}

	h, err := windows.OpenProcess(windows.PROCESS_QUERY_LIMITED_INFORMATION|windows.PROCESS_SET_QUOTA, false, pid)
	if err != nil {
		return primitive.Fail(primitive.OpTrimWorkingSet, target, reasonFor(err), err)
	}
	defer windows.CloseHandle(h)

	r, _, e := syscall.SyscallN(procEmptyWorkingSet.Addr(), uintptr(h))
	if r == 0 {
		return primitive.Fail(primitive.OpTrimWorkingSet, target, reasonFor(e), e)
	}
	return nil
}
