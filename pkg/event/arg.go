package event

import (
	"fmt"

	"github.com/go-drift/pulse/pkg/errors"
)

// ArgType is the type tag of an [Arg].
type ArgType uint8

const (
	// ArgNone marks an unset slot.
	ArgNone ArgType = iota
	ArgPointer
	ArgString
	ArgChar
	ArgUChar
	ArgInt
	ArgUint
	ArgLong
	ArgULong
	ArgFloat
	ArgDouble
)

// String returns the tag name.
func (t ArgType) String() string {
	switch t {
	case ArgNone:
		return "none"
	case ArgPointer:
		return "pointer"
	case ArgString:
		return "string"
	case ArgChar:
		return "char"
	case ArgUChar:
		return "uchar"
	case ArgInt:
		return "int"
	case ArgUint:
		return "uint"
	case ArgLong:
		return "long"
	case ArgULong:
		return "ulong"
	case ArgFloat:
		return "float"
	case ArgDouble:
		return "double"
	default:
		return fmt.Sprintf("ArgType(%d)", int(t))
	}
}

// Arg is one tagged event argument. The zero value is an ArgNone slot.
//
// Reading an Arg through an accessor that does not match its tag panics with
// an *errors.ArgTypeError: that is a programmer error, like a failed type
// assertion. Use Type or Value to inspect an argument of unknown type.
type Arg struct {
	typ ArgType
	ptr any
	str string
	i   int64
	u   uint64
	f   float64
}

// PointerArg returns a pointer argument.
func PointerArg(p any) Arg { return Arg{typ: ArgPointer, ptr: p} }

// StringArg returns a string argument.
func StringArg(s string) Arg { return Arg{typ: ArgString, str: s} }

// CharArg returns a signed 8-bit argument.
func CharArg(c int8) Arg { return Arg{typ: ArgChar, i: int64(c)} }

// UCharArg returns an unsigned 8-bit argument.
func UCharArg(c uint8) Arg { return Arg{typ: ArgUChar, u: uint64(c)} }

// IntArg returns a signed 32-bit argument.
func IntArg(i int32) Arg { return Arg{typ: ArgInt, i: int64(i)} }

// UintArg returns an unsigned 32-bit argument.
func UintArg(u uint32) Arg { return Arg{typ: ArgUint, u: uint64(u)} }

// LongArg returns a signed 64-bit argument.
func LongArg(l int64) Arg { return Arg{typ: ArgLong, i: l} }

// ULongArg returns an unsigned 64-bit argument.
func ULongArg(l uint64) Arg { return Arg{typ: ArgULong, u: l} }

// FloatArg returns a single precision argument.
func FloatArg(f float32) Arg { return Arg{typ: ArgFloat, f: float64(f)} }

// DoubleArg returns a double precision argument.
func DoubleArg(f float64) Arg { return Arg{typ: ArgDouble, f: f} }

// Type returns the argument's tag.
func (a Arg) Type() ArgType { return a.typ }

// Value returns the stored value boxed in its natural Go type, or nil for
// ArgNone.
func (a Arg) Value() any {
	switch a.typ {
	case ArgPointer:
		return a.ptr
	case ArgString:
		return a.str
	case ArgChar:
		return int8(a.i)
	case ArgUChar:
		return uint8(a.u)
	case ArgInt:
		return int32(a.i)
	case ArgUint:
		return uint32(a.u)
	case ArgLong:
		return a.i
	case ArgULong:
		return a.u
	case ArgFloat:
		return float32(a.f)
	case ArgDouble:
		return a.f
	default:
		return nil
	}
}

func (a Arg) String() string {
	if a.typ == ArgNone {
		return "none"
	}
	return fmt.Sprintf("%s(%v)", a.typ, a.Value())
}

func (a Arg) must(t ArgType) {
	if a.typ != t {
		panic(&errors.ArgTypeError{Want: t.String(), Got: a.typ.String(), Index: -1})
	}
}

// Pointer returns the value of an ArgPointer.
func (a Arg) Pointer() any {
	a.must(ArgPointer)
	return a.ptr
}

// Str returns the value of an ArgString.
func (a Arg) Str() string {
	a.must(ArgString)
	return a.str
}

// Char returns the value of an ArgChar.
func (a Arg) Char() int8 {
	a.must(ArgChar)
	return int8(a.i)
}

// UChar returns the value of an ArgUChar.
func (a Arg) UChar() uint8 {
	a.must(ArgUChar)
	return uint8(a.u)
}

// Int returns the value of an ArgInt.
func (a Arg) Int() int32 {
	a.must(ArgInt)
	return int32(a.i)
}

// Uint returns the value of an ArgUint.
func (a Arg) Uint() uint32 {
	a.must(ArgUint)
	return uint32(a.u)
}

// Long returns the value of an ArgLong.
func (a Arg) Long() int64 {
	a.must(ArgLong)
	return a.i
}

// ULong returns the value of an ArgULong.
func (a Arg) ULong() uint64 {
	a.must(ArgULong)
	return a.u
}

// Float returns the value of an ArgFloat.
func (a Arg) Float() float32 {
	a.must(ArgFloat)
	return float32(a.f)
}

// Double returns the value of an ArgDouble.
func (a Arg) Double() float64 {
	a.must(ArgDouble)
	return a.f
}
