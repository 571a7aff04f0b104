package mqtt

import (
	"strconv"
	"strings"
)

// ValueMarshaler is a function that can convert values of type T to a byte slice for writing to an MQTT Topic.
type ValueMarshaler[T any] func(v T) ([]byte, error)

// ValueUnmarshaler is a function that can convert the byte slice payload from an MQTT Message to values of type T.
type ValueUnmarshaler[T any] func([]byte) (T, error)

var (
	StringMarshaler ValueMarshaler[string] = func(v string) ([]byte, error) {
		return []byte(v), nil
	}

	StringUnmarshaler ValueUnmarshaler[string] = func(bytes []byte) (string, error) {
		return string(bytes), nil
	}

	UintMarshaler ValueMarshaler[uint] = func(v uint) ([]byte, error) {
		return strconv.AppendUint(nil, uint64(v), 10), nil
	}

	// UintUnmarshaler parses a base 10 unsigned integer. Home Assistant may send brightness values with a fractional
	// part ("127.5") when scaling, so anything after a decimal point is truncated.
	UintUnmarshaler ValueUnmarshaler[uint] = func(bytes []byte) (uint, error) {
		s := string(bytes)
		if whole, _, ok := strings.Cut(s, "."); ok {
			s = whole
		}

		v, err := strconv.ParseUint(s, 10, 64)
		return uint(v), err
	}
)
