// Copyright (c) 2021-2026, The OpenVFS Authors.
// SPDX-License-Identifier: Apache-2.0

// Package blunder provides error-handling wrappers
//
// These wrappers allow callers to provide additional information in Go
// errors while still conforming to the Go error interface.
//
// This package provides APIs to add errno information to regular Go errors,
// plus the lockfs-specific error values the locking layer steers on
// (NeedsWriteLockError, NeedsLockRetryError, SyncFailedError).
//
// This package is currently implemented on top of the ansel1/merry package:
//   https://github.com/ansel1/merry
//
//   merry comes with built-in support for adding information to errors:
//    - stacktraces
//    - overriding the error message
//    - your own additional information
//
//   From merry godoc:
//     You can add any context information to an error with
//     `e = merry.WithValue(e, "code", 12345)`
//     You can retrieve that value with
//     `v, _ := merry.Value(e, "code").(int)`
package blunder

import (
	"fmt"

	"github.com/ansel1/merry"
	"golang.org/x/sys/unix"
)

// Error constants to be used in the lockfs namespace.
//
// There are two groups of constants:
//  - constants that correspond to linux/POSIX errnos as defined in errno.h
//  - lockfs-specific constants for errors not covered in the errno space
//
// The linux/POSIX-related constants should be used in cases where there is
// a clear mapping to these errors; using them keeps delegate controllers
// mountable behind kernel-facing layers without translation.
//
// NOTE: unix.Errno is used here because these errno constants exist in
//       Go-land. The type implements the error interface; we need to cast
//       it to an int to get the errno value.
type FsError int

const (
	// Errors that map to linux/POSIX errnos as defined in errno.h
	//
	NotPermError        FsError = FsError(int(unix.EPERM))     // Operation not permitted
	NotFoundError       FsError = FsError(int(unix.ENOENT))    // No such file or directory
	IOError             FsError = FsError(int(unix.EIO))       // I/O error
	ReadOnlyError       FsError = FsError(int(unix.EROFS))     // Read-only file system
	BadFileError        FsError = FsError(int(unix.EBADF))     // Bad file number
	TryAgainError       FsError = FsError(int(unix.EAGAIN))    // Try again
	PermDeniedError     FsError = FsError(int(unix.EACCES))    // Permission denied
	DevBusyError        FsError = FsError(int(unix.EBUSY))     // Device or resource busy
	FileExistsError     FsError = FsError(int(unix.EEXIST))    // File exists
	NotDirError         FsError = FsError(int(unix.ENOTDIR))   // Not a directory
	IsDirError          FsError = FsError(int(unix.EISDIR))    // Is a directory
	InvalidArgError     FsError = FsError(int(unix.EINVAL))    // Invalid argument
	NoSpaceError        FsError = FsError(int(unix.ENOSPC))    // No space left on device
	BadSeekError        FsError = FsError(int(unix.ESPIPE))    // Illegal seek
	NotImplementedError FsError = FsError(int(unix.ENOSYS))    // Function not implemented
	NotEmptyError       FsError = FsError(int(unix.ENOTEMPTY)) // Directory not empty
	NotSupportedError   FsError = FsError(int(unix.ENOTSUP))   // Operation not supported
)

// Success error (sounds odd, no? - perhaps this could be renamed "NotAnError"?)
const SuccessError FsError = 0

const ( // reset iota to 0
	// Errors that are internal/specific to lockfs.
	//
	// NeedsWriteLockError is raised by a delegate controller from within a
	// read-locked operation to request that the operation be re-run under
	// the write lock. It is consumed by the locking layer and never
	// surfaces to external callers.
	NeedsWriteLockError FsError = 1000 + iota

	// NeedsLockRetryError means "abandon this lock attempt; unwind to the
	// outermost call on this goroutine, release everything, pause, and
	// start over". It is raised by the locking layer itself when a nested
	// non-blocking lock acquisition fails, and may also be raised by a
	// delegate; it is consumed by the outermost locked frame and never
	// surfaces to external callers.
	NeedsLockRetryError

	// SyncFailedError is the only error kind a delegate controller is
	// permitted to produce from its Sync() operation.
	SyncFailedError
)

// Default errno values for success and failure
const successErrno = 0
const failureErrno = -1

// Value returns the int value for the specified FsError constant
func (err FsError) Value() int {
	return int(err)
}

// NewError creates a new merry/blunder.FsError-annotated error using the
// given format string and arguments.
func NewError(errValue FsError, format string, a ...interface{}) error {
	return merry.WrapSkipping(fmt.Errorf(format, a...), 1).WithValue("errno", int(errValue))
}

// AddError is used to add FS error detail to a Go error.
//
// NOTE: merry will by default replace an already-set errno value with the
//       new one; callers tagging an already-tagged error chain are assumed
//       to know what they are doing.
func AddError(e error, errValue FsError) error {
	if e == nil {
		// Error hasn't been allocated yet; need to create one.
		//
		// It's recommended that the caller create an error with some
		// context in the error string first, but we don't want to silently
		// not work if they forget to do that.
		return merry.New("regular error").WithValue("errno", int(errValue))
	}

	return merry.WrapSkipping(e, 1).WithValue("errno", int(errValue))
}

// Errno extracts errno from the error, if it was previously wrapped.
// Otherwise a default value is returned.
func Errno(e error) int {
	if e == nil {
		// nil error = success
		return successErrno
	}

	// If the "errno" key/value was not present, merry.Value returns nil.
	var errno = failureErrno
	tmp := merry.Value(e, "errno")
	if tmp != nil {
		errno = tmp.(int)
	}

	return errno
}

// ErrorString returns the error string along with the error value, if set.
func ErrorString(e error) string {
	if e == nil {
		return ""
	}

	errPlusVal := e.Error()

	tmp := merry.Value(e, "errno")
	if tmp != nil {
		errPlusVal = fmt.Sprintf("%s. Error Value: %v\n", errPlusVal, tmp.(int))
	}

	return errPlusVal
}

// Is checks whether an error matches a particular FsError.
//
// NOTE: Because the value of the underlying errno is used to do this check,
//       one cannot use this API to distinguish between FsErrors that use
//       the same errno value.
func Is(e error, theError FsError) bool {
	return Errno(e) == theError.Value()
}

// IsNot checks whether an error is NOT a particular FsError.
func IsNot(e error, theError FsError) bool {
	return Errno(e) != theError.Value()
}

// IsSuccess checks whether an error is the success FsError.
func IsSuccess(e error) bool {
	return Errno(e) == successErrno
}

// IsNotSuccess checks whether an error is NOT the success FsError.
func IsNotSuccess(e error) bool {
	return Errno(e) != successErrno
}
