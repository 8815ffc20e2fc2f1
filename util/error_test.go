package util

import "testing"

func TestErrorMessages(t *testing.T) {
	AssertEqual("NotFound: foo", NotFoundError1("foo").Error(), "not found", t)
	AssertEqual("NotFound: foo: bar", NotFoundError2("foo", "bar").Error(), "not found with detail", t)
	AssertEqual("Corruption: bad block", CorruptionError1("bad block").Error(), "corruption", t)
	AssertEqual("Not implemented: prev", NotSupportedError1("prev").Error(), "not supported", t)
	AssertEqual("Invalid argument: levels", InvalidArgumentError1("levels").Error(), "invalid argument", t)
	AssertEqual("In use: LOCK", InUseError1("LOCK").Error(), "in use", t)
	AssertEqual("IO error: disk: full", IOError2("disk", "full").Error(), "io error", t)
}

func TestErrorCodes(t *testing.T) {
	AssertEqual(NotFound, NotFoundError1("x").Code(), "not found", t)
	AssertEqual(Corruption, CorruptionError2("x", "y").Code(), "corruption", t)
	AssertEqual(NotSupported, NotSupportedError1("x").Code(), "not supported", t)
	AssertEqual(InvalidArgument, InvalidArgumentError1("x").Code(), "invalid argument", t)
	AssertEqual(InUse, InUseError2("x", "y").Code(), "in use", t)
	AssertEqual(IOError, IOError1("x").Code(), "io error", t)
}
