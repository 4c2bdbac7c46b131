package main

import (
	"fmt"
	"strconv"
	"strings"

	"go.bytecodealliance.org/wit"

	"github.com/wippyai/dynbind/catalog"
)

// parseArg converts command line text into a host value of type t.
// Sequence elements are separated by spaces.
func parseArg(value string, t catalog.TypeTag) (any, error) {
	switch t.Kind {
	case catalog.KindEnum, catalog.KindString:
		return value, nil
	case catalog.KindBool:
		return strconv.ParseBool(value)
	case catalog.KindSequence:
		if t.Elem == nil {
			return nil, fmt.Errorf("untyped sequence")
		}
		fields := strings.Fields(value)
		out := make([]any, len(fields))
		for i, f := range fields {
			v, err := parseArg(f, *t.Elem)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = v
		}
		return out, nil
	case catalog.KindScalar:
		return parseScalar(value, t.WIT)
	}
	return nil, fmt.Errorf("%s arguments cannot be given on the command line", t)
}

func parseScalar(value string, t wit.Type) (any, error) {
	switch t.(type) {
	case wit.U8:
		v, err := strconv.ParseUint(value, 10, 8)
		return uint8(v), err
	case wit.U16:
		v, err := strconv.ParseUint(value, 10, 16)
		return uint16(v), err
	case wit.U32:
		v, err := strconv.ParseUint(value, 10, 32)
		return uint32(v), err
	case wit.U64:
		return strconv.ParseUint(value, 10, 64)
	case wit.S8:
		v, err := strconv.ParseInt(value, 10, 8)
		return int8(v), err
	case wit.S16:
		v, err := strconv.ParseInt(value, 10, 16)
		return int16(v), err
	case wit.S32:
		v, err := strconv.ParseInt(value, 10, 32)
		return int32(v), err
	case wit.S64:
		return strconv.ParseInt(value, 10, 64)
	case wit.F32:
		v, err := strconv.ParseFloat(value, 32)
		return float32(v), err
	case wit.F64:
		return strconv.ParseFloat(value, 64)
	case wit.Char:
		r := []rune(value)
		if len(r) != 1 {
			return nil, fmt.Errorf("%q is not a single character", value)
		}
		return r[0], nil
	}
	return nil, fmt.Errorf("unsupported scalar %s", catalog.WITName(t))
}
