package util

// Code identifies the broad failure class of a DBError.
type Code int8

const (
	NotFound Code = iota
	Corruption
	NotSupported
	InvalidArgument
	InUse
	IOError
)

// DBError is the error type produced by the storage engine itself.
// Errors from the operating system are wrapped with an IOError code so
// callers can classify them uniformly.
type DBError struct {
	code Code
	msg  string
}

func (e *DBError) Error() string {
	var t string
	switch e.code {
	case NotFound:
		t = "NotFound: "
	case Corruption:
		t = "Corruption: "
	case NotSupported:
		t = "Not implemented: "
	case InvalidArgument:
		t = "Invalid argument: "
	case InUse:
		t = "In use: "
	case IOError:
		t = "IO error: "
	default:
		t = "Unknown code: "
	}
	return t + e.msg
}

func (e *DBError) Code() Code {
	return e.code
}

func newError(code Code, msg, msg2 string) *DBError {
	if len(msg2) != 0 {
		msg = msg + ": " + msg2
	}
	return &DBError{code: code, msg: msg}
}

func NotFoundError1(msg string) *DBError {
	return newError(NotFound, msg, "")
}

func NotFoundError2(msg, msg2 string) *DBError {
	return newError(NotFound, msg, msg2)
}

func CorruptionError1(msg string) *DBError {
	return newError(Corruption, msg, "")
}

func CorruptionError2(msg, msg2 string) *DBError {
	return newError(Corruption, msg, msg2)
}

func NotSupportedError1(msg string) *DBError {
	return newError(NotSupported, msg, "")
}

func NotSupportedError2(msg, msg2 string) *DBError {
	return newError(NotSupported, msg, msg2)
}

func InvalidArgumentError1(msg string) *DBError {
	return newError(InvalidArgument, msg, "")
}

func InvalidArgumentError2(msg, msg2 string) *DBError {
	return newError(InvalidArgument, msg, msg2)
}

func InUseError1(msg string) *DBError {
	return newError(InUse, msg, "")
}

func InUseError2(msg, msg2 string) *DBError {
	return newError(InUse, msg, msg2)
}

func IOError1(msg string) *DBError {
	return newError(IOError, msg, "")
}

func IOError2(msg, msg2 string) *DBError {
	return newError(IOError, msg, msg2)
}
