package windowsapi

import (
	"errors"

	"golang.org/x/sys/windows"

	"gameboost/internal/primitive"
)

// reasonFor maps a Win32 error code onto the primitive failure taxonomy.
func reasonFor(err error) primitive.Reason {
	var errno windows.Errno
	if !errors.As(err, &errno) {
		var st windows.NTStatus
		if errors.As(err, &st) {
			return ntReason(st)
		}
		return primitive.ReasonUnknown
	}
	switch errno {
	case windows.ERROR_ACCESS_DENIED, windows.ERROR_PRIVILEGE_NOT_HELD:
		return primitive.ReasonAccessDenied
	// OpenProcess reports ERROR_INVALID_PARAMETER for a pid that has exited.
	case windows.ERROR_INVALID_PARAMETER, windows.ERROR_FILE_NOT_FOUND,
		windows.ERROR_PATH_NOT_FOUND, windows.ERROR_NOT_FOUND:
		return primitive.ReasonNotFound
	case windows.ERROR_SHARING_VIOLATION, windows.ERROR_LOCK_VIOLATION,
		windows.ERROR_BUSY, windows.ERROR_TIMEOUT:
		return primitive.ReasonTransient
	case windows.ERROR_NOT_SUPPORTED, windows.ERROR_CALL_NOT_IMPLEMENTED,
		windows.ERROR_PROC_NOT_FOUND:
		return primitive.ReasonUnsupported
	default:
		return primitive.ReasonUnknown
	}
}

// ntReason maps NTSTATUS values returned by the native process calls.
func ntReason(st windows.NTStatus) primitive.Reason {
	switch st {
	case windows.STATUS_ACCESS_DENIED:
		return primitive.ReasonAccessDenied
	case windows.STATUS_PROCESS_IS_TERMINATING, windows.STATUS_INVALID_HANDLE,
		windows.STATUS_INVALID_CID:
		return primitive.ReasonNotFound
	case windows.STATUS_SUSPEND_COUNT_EXCEEDED:
		return primitive.ReasonAlreadySuspended
	default:
		return primitive.ReasonUnknown
	}
}
