package container

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/charlab/chardb/numeric"
)

// Scalar values are stored as (kind, num, str) columns; kind is "f" for
// floats and "s" for text. Text is normalized on read so comparisons
// are storage-encoding independent.

func encodeValue(v numeric.Value) (kind string, num float64, str string) {
	if v.Kind() == numeric.KindString {
		return "s", 0, v.Text()
	}
	return "f", v.Float(), ""
}

func decodeValue(kind string, num float64, str string) (numeric.Value, error) {
	switch kind {
	case "f":
		return numeric.F(num), nil
	case "s":
		return numeric.S(str), nil
	default:
		return numeric.Value{}, fmt.Errorf("container: unknown value kind %q", kind)
	}
}

// Dense datasets are stored as row-major little-endian float64 blobs
// with a comma-separated shape column.

func encodeFloats(data []float64) []byte {
	buf := make([]byte, 8*len(data))
	for i, v := range data {
		binary.LittleEndian.PutUint64(buf[8*i:], math.Float64bits(v))
	}
	return buf
}

func decodeFloats(buf []byte) ([]float64, error) {
	if len(buf)%8 != 0 {
		return nil, fmt.Errorf("container: dataset blob length %d is not a multiple of 8", len(buf))
	}
	out := make([]float64, len(buf)/8)
	for i := range out {
		out[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[8*i:]))
	}
	return out, nil
}

func encodeShape(shape []int) string {
	parts := make([]string, len(shape))
	for i, s := range shape {
		parts[i] = strconv.Itoa(s)
	}
	return strings.Join(parts, ",")
}

func decodeShape(s string) ([]int, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	shape := make([]int, len(parts))
	for i, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("container: bad shape %q: %w", s, err)
		}
		shape[i] = v
	}
	return shape, nil
}
