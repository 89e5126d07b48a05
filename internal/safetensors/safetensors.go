// Package safetensors reads and writes the safetensors container: an 8-byte
// little-endian header length, a JSON header, then raw tensor bytes.
package safetensors

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/d4l3k/go-bfloat16"
	"github.com/goccy/go-json"
	"github.com/x448/float16"
)

const (
	metadataKey = "__metadata__"
	// maxHeader bounds the JSON header so a corrupt length cannot force a
	// huge allocation.
	maxHeader = 100 << 20
)

// Supported element types.
const (
	F64  = "F64"
	F32  = "F32"
	F16  = "F16"
	BF16 = "BF16"
)

var ErrFormat = errors.New("safetensors: malformed file")

// DTypeSize returns the element width in bytes, or 0 for unknown dtypes.
func DTypeSize(dtype string) int {
	switch dtype {
	case F64:
		return 8
	case F32:
		return 4
	case F16, BF16:
		return 2
	default:
		return 0
	}
}

type TensorInfo struct {
	DType string
	Shape []int
	Start int64
	End   int64
}

// Elements is the product of Shape. A scalar has one element.
func (t TensorInfo) Elements() int {
	n := 1
	for _, d := range t.Shape {
		n *= d
	}
	return n
}

type tensorHeader struct {
	DType       string  `json:"dtype"`
	Shape       []int   `json:"shape"`
	DataOffsets []int64 `json:"data_offsets"`
}

// File is an opened safetensors file. The data section is memory-mapped
// where the platform allows; Close releases it.
type File struct {
	Path     string
	Tensors  map[string]TensorInfo
	Metadata map[string]string

	data    []byte
	release func() error
}

// Open maps path and parses its header.
func Open(path string) (*File, error) {
	buf, release, err := mapFile(path)
	if err != nil {
		return nil, err
	}
	f, err := parse(buf)
	if err != nil {
		_ = release()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	f.Path = path
	f.release = release
	return f, nil
}

// Parse reads a safetensors image already in memory.
func Parse(buf []byte) (*File, error) {
	return parse(buf)
}

func parse(buf []byte) (*File, error) {
	if len(buf) < 8 {
		return nil, fmt.Errorf("%w: %d bytes is shorter than the length prefix", ErrFormat, len(buf))
	}
	n := binary.LittleEndian.Uint64(buf)
	if n > maxHeader || n > uint64(len(buf)-8) {
		return nil, fmt.Errorf("%w: header length %d exceeds file", ErrFormat, n)
	}
	header := buf[8 : 8+n]
	data := buf[8+n:]

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(header, &raw); err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrFormat, err)
	}

	f := &File{Tensors: make(map[string]TensorInfo, len(raw)), data: data}
	if msg, ok := raw[metadataKey]; ok {
		if err := json.Unmarshal(msg, &f.Metadata); err != nil {
			return nil, fmt.Errorf("%w: metadata: %v", ErrFormat, err)
		}
		delete(raw, metadataKey)
	}

	for name, msg := range raw {
		var th tensorHeader
		if err := json.Unmarshal(msg, &th); err != nil {
			return nil, fmt.Errorf("%w: tensor %s: %v", ErrFormat, name, err)
		}
		if len(th.DataOffsets) != 2 {
			return nil, fmt.Errorf("%w: tensor %s: invalid data_offsets", ErrFormat, name)
		}
		info := TensorInfo{DType: th.DType, Shape: th.Shape, Start: th.DataOffsets[0], End: th.DataOffsets[1]}
		if err := check(info, int64(len(data))); err != nil {
			return nil, fmt.Errorf("%w: tensor %s: %v", ErrFormat, name, err)
		}
		f.Tensors[name] = info
	}
	return f, nil
}

func check(t TensorInfo, dataLen int64) error {
	size := DTypeSize(t.DType)
	if size == 0 {
		return fmt.Errorf("unsupported dtype %q", t.DType)
	}
	n := int64(1)
	for _, d := range t.Shape {
		if d < 0 {
			return fmt.Errorf("invalid dim %d", d)
		}
		if d > 0 && n > math.MaxInt32/int64(d) {
			return errors.New("tensor too large")
		}
		n *= int64(d)
	}
	if t.Start < 0 || t.End < t.Start || t.End > dataLen {
		return fmt.Errorf("offsets [%d, %d) outside data section of %d bytes", t.Start, t.End, dataLen)
	}
	if t.End-t.Start != n*int64(size) {
		return fmt.Errorf("%s%v needs %d bytes, offsets span %d", t.DType, t.Shape, n*int64(size), t.End-t.Start)
	}
	return nil
}

// Close unmaps the file. Slices returned by Bytes are invalid afterwards.
func (f *File) Close() error {
	if f.release == nil {
		return nil
	}
	err := f.release()
	f.release = nil
	f.data = nil
	return err
}

// Names returns tensor names in sorted order.
func (f *File) Names() []string {
	names := make([]string, 0, len(f.Tensors))
	for name := range f.Tensors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (f *File) Tensor(name string) (TensorInfo, bool) {
	t, ok := f.Tensors[name]
	return t, ok
}

// Bytes returns the raw little-endian payload of name without copying.
func (f *File) Bytes(name string) ([]byte, TensorInfo, error) {
	t, ok := f.Tensors[name]
	if !ok {
		return nil, TensorInfo{}, fmt.Errorf("tensor not found: %s", name)
	}
	return f.data[t.Start:t.End], t, nil
}

// Float64s decodes name to float64 whatever its stored dtype.
func (f *File) Float64s(name string) ([]float64, TensorInfo, error) {
	raw, info, err := f.Bytes(name)
	if err != nil {
		return nil, TensorInfo{}, err
	}
	return Decode(info.DType, raw), info, nil
}

// Decode converts a little-endian payload of the given dtype to float64.
// The caller guarantees len(raw) is a multiple of the element size.
func Decode(dtype string, raw []byte) []float64 {
	switch dtype {
	case F64:
		out := make([]float64, len(raw)/8)
		for i := range out {
			out[i] = math.Float64frombits(binary.LittleEndian.Uint64(raw[i*8:]))
		}
		return out
	case F32:
		out := make([]float64, len(raw)/4)
		for i := range out {
			out[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:])))
		}
		return out
	case F16:
		out := make([]float64, len(raw)/2)
		for i := range out {
			out[i] = float64(float16.Frombits(binary.LittleEndian.Uint16(raw[i*2:])).Float32())
		}
		return out
	case BF16:
		f32s := bfloat16.DecodeFloat32(raw)
		out := make([]float64, len(f32s))
		for i, v := range f32s {
			out[i] = float64(v)
		}
		return out
	default:
		return nil
	}
}

// Encode converts values to a little-endian payload of the given dtype.
// F16 rounds to nearest even; BF16 truncates the low mantissa bits.
func Encode(dtype string, values []float64) ([]byte, error) {
	switch dtype {
	case F64:
		out := make([]byte, 8*len(values))
		for i, v := range values {
			binary.LittleEndian.PutUint64(out[i*8:], math.Float64bits(v))
		}
		return out, nil
	case F32:
		out := make([]byte, 4*len(values))
		for i, v := range values {
			binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(float32(v)))
		}
		return out, nil
	case F16:
		out := make([]byte, 2*len(values))
		for i, v := range values {
			binary.LittleEndian.PutUint16(out[i*2:], float16.Fromfloat32(float32(v)).Bits())
		}
		return out, nil
	case BF16:
		f32s := make([]float32, len(values))
		for i, v := range values {
			f32s[i] = float32(v)
		}
		return bfloat16.EncodeFloat32(f32s), nil
	default:
		return nil, fmt.Errorf("unsupported dtype %q", dtype)
	}
}
