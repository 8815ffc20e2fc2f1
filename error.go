package rocksdb

import (
	"github.com/pkg/errors"

	"github.com/mtxrym/rocksdb/util"
)

// errorCode classifies err, unwrapping any context added with
// errors.Wrap along the way.
func errorCode(err error) util.Code {
	if e, ok := errors.Cause(err).(*util.DBError); ok {
		return e.Code()
	}
	return -1
}

// IsNotFound reports whether err indicates a missing key or file.
func IsNotFound(err error) bool {
	return errorCode(err) == util.NotFound
}

// IsCorruption reports whether err indicates corrupted persistent state,
// including a manifest that fails validation.
func IsCorruption(err error) bool {
	return errorCode(err) == util.Corruption
}

// IsNotSupported reports whether err indicates an unimplemented feature.
func IsNotSupported(err error) bool {
	return errorCode(err) == util.NotSupported
}

// IsInvalidArgument reports whether err indicates a caller mistake.
func IsInvalidArgument(err error) bool {
	return errorCode(err) == util.InvalidArgument
}

// IsInUse reports whether err indicates the database is locked by
// another user.
func IsInUse(err error) bool {
	return errorCode(err) == util.InUse
}

// IsIOError reports whether err indicates a file system failure.
func IsIOError(err error) bool {
	return errorCode(err) == util.IOError
}
