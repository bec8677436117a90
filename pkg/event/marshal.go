package event

import (
	"fmt"

	"github.com/go-drift/pulse/pkg/errors"
)

// MaxArgs is the capacity of an argument vector.
const MaxArgs = 16

// Args is a fixed-capacity argument vector.
type Args struct {
	slots [MaxArgs]Arg
	n     int
}

// Len returns the number of stored arguments.
func (a *Args) Len() int { return a.n }

// At returns argument i. It panics if i is out of range.
func (a *Args) At(i int) Arg {
	if i < 0 || i >= a.n {
		panic(fmt.Sprintf("event: argument index %d out of range [0,%d)", i, a.n))
	}
	return a.slots[i]
}

// Slice returns a copy of the stored arguments.
func (a *Args) Slice() []Arg {
	out := make([]Arg, a.n)
	copy(out, a.slots[:a.n])
	return out
}

// Append adds arg, returning a *errors.CapacityError if the vector is full.
func (a *Args) Append(arg Arg) error {
	if a.n >= MaxArgs {
		return &errors.CapacityError{Capacity: MaxArgs, Wanted: a.n + 1}
	}
	a.slots[a.n] = arg
	a.n++
	return nil
}

// AppendAll adds every argument of other. Arguments that do not fit are
// dropped and a *errors.CapacityError is returned.
func (a *Args) AppendAll(other *Args) error {
	if other == nil {
		return nil
	}
	for i := 0; i < other.n; i++ {
		if a.n >= MaxArgs {
			return &errors.CapacityError{Capacity: MaxArgs, Wanted: a.n + other.n - i}
		}
		a.slots[a.n] = other.slots[i]
		a.n++
	}
	return nil
}

// Reset empties the vector.
func (a *Args) Reset() {
	*a = Args{}
}

// Marshal appends one argument per value character of format, consuming
// values in order.
//
// Format characters:
//
//	p      pointer (any value)
//	s      string
//	c  C   signed / unsigned 8-bit
//	h  H   signed / unsigned 16-bit, stored as int / uint
//	i  d   signed 32-bit
//	u      unsigned 32-bit
//	l  L   signed / unsigned long (64-bit)
//	f      float
//	g      double
//
// Spaces, tabs, newlines, ',' and '%' separate characters and consume no
// value.
//
// Unknown characters, mismatched value kinds, and a value count that does
// not match the format leave the vector unchanged. When the vector runs out
// of room, the arguments that fit are kept and a *errors.CapacityError is
// returned.
func (a *Args) Marshal(format string, values ...any) error {
	var (
		staged [MaxArgs]Arg
		count  int
		next   int
	)
	for pos, c := range format {
		if isSeparator(c) {
			continue
		}
		t, ok := formatType(c)
		if !ok {
			return &errors.FormatError{Format: format, Pos: pos, Char: c}
		}
		if next >= len(values) {
			return fmt.Errorf("format %q at %d: %w", format, pos, errors.ErrMissingValue)
		}
		arg, err := convert(t, c, values[next])
		if err != nil {
			if te, ok := err.(*errors.ArgTypeError); ok {
				te.Index = a.n + count
			}
			return err
		}
		next++
		if a.n+count < MaxArgs {
			staged[count] = arg
		}
		count++
	}
	if next < len(values) {
		return fmt.Errorf("format %q: %d surplus: %w", format, len(values)-next, errors.ErrExtraValue)
	}

	fit := min(count, MaxArgs-a.n)
	copy(a.slots[a.n:], staged[:fit])
	a.n += fit
	if fit < count {
		return &errors.CapacityError{Capacity: MaxArgs, Wanted: a.n - fit + count}
	}
	return nil
}

// Marshal builds a new vector from format and values, see Args.Marshal.
func Marshal(format string, values ...any) (*Args, error) {
	var a Args
	err := a.Marshal(format, values...)
	return &a, err
}

func isSeparator(c rune) bool {
	switch c {
	case ' ', '\t', '\n', '\r', ',', '%':
		return true
	}
	return false
}

func formatType(c rune) (ArgType, bool) {
	switch c {
	case 'p':
		return ArgPointer, true
	case 's':
		return ArgString, true
	case 'c':
		return ArgChar, true
	case 'C':
		return ArgUChar, true
	case 'h', 'i', 'd':
		return ArgInt, true
	case 'H', 'u':
		return ArgUint, true
	case 'l':
		return ArgLong, true
	case 'L':
		return ArgULong, true
	case 'f':
		return ArgFloat, true
	case 'g':
		return ArgDouble, true
	}
	return ArgNone, false
}

func convert(t ArgType, c rune, v any) (Arg, error) {
	switch t {
	case ArgPointer:
		return PointerArg(v), nil
	case ArgString:
		switch s := v.(type) {
		case string:
			return StringArg(s), nil
		case fmt.Stringer:
			return StringArg(s.String()), nil
		}
	case ArgFloat, ArgDouble:
		var f float64
		switch x := v.(type) {
		case float32:
			f = float64(x)
		case float64:
			f = x
		default:
			return Arg{}, mismatch(t, v)
		}
		if t == ArgFloat {
			return FloatArg(float32(f)), nil
		}
		return DoubleArg(f), nil
	default:
		i, u, ok := integer(v)
		if !ok {
			return Arg{}, mismatch(t, v)
		}
		switch c {
		case 'c':
			return CharArg(int8(i)), nil
		case 'C':
			return UCharArg(uint8(u)), nil
		case 'h':
			return IntArg(int32(int16(i))), nil
		case 'H':
			return UintArg(uint32(uint16(u))), nil
		case 'i', 'd':
			return IntArg(int32(i)), nil
		case 'u':
			return UintArg(uint32(u)), nil
		case 'l':
			return LongArg(i), nil
		case 'L':
			return ULongArg(u), nil
		}
	}
	return Arg{}, mismatch(t, v)
}

// integer widens any Go integer kind, keeping both interpretations so the
// caller can truncate the way the format character asks.
func integer(v any) (int64, uint64, bool) {
	switch x := v.(type) {
	case int:
		return int64(x), uint64(x), true
	case int8:
		return int64(x), uint64(x), true
	case int16:
		return int64(x), uint64(x), true
	case int32:
		return int64(x), uint64(x), true
	case int64:
		return x, uint64(x), true
	case uint:
		return int64(x), uint64(x), true
	case uint8:
		return int64(x), uint64(x), true
	case uint16:
		return int64(x), uint64(x), true
	case uint32:
		return int64(x), uint64(x), true
	case uint64:
		return int64(x), x, true
	case uintptr:
		return int64(x), uint64(x), true
	case bool:
		if x {
			return 1, 1, true
		}
		return 0, 0, true
	}
	return 0, 0, false
}

func mismatch(t ArgType, v any) error {
	return &errors.ArgTypeError{Want: t.String(), Got: fmt.Sprintf("%T", v), Index: -1}
}
