package protocol

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// Codec encodes and decodes tagged values on a byte stream. The byte
// order is fixed once per session at handshake time and never changes
// afterward; the generated engine-side helpers read and write with the
// same order.
//
// Every encoded value is self-describing: [tag][length][payload], with
// Matrix prefixing [rows][cols] ahead of a complete element value and
// Double appending a [missingCount][missingIndex]* list after the raw
// floats. Decode never reads past a declared length.
type Codec struct {
	order binary.ByteOrder

	// maxElements is the sanity ceiling for any declared length.
	maxElements int32
}

// NewCodec returns a codec using the given byte order and the default
// sanity ceiling. Network byte order is the recommended choice.
func NewCodec(order binary.ByteOrder) *Codec {
	return &Codec{order: order, maxElements: DefaultMaxElements}
}

// SetMaxElements overrides the decode sanity ceiling.
func (c *Codec) SetMaxElements(n int32) { c.maxElements = n }

// Order reports the codec's byte order.
func (c *Codec) Order() binary.ByteOrder { return c.order }

func (c *Codec) writeInt32(w io.Writer, n int32) error {
	var buf [4]byte
	c.order.PutUint32(buf[:], uint32(n))
	_, err := w.Write(buf[:])
	return err
}

func (c *Codec) writeFloat64(w io.Writer, f float64) error {
	var buf [8]byte
	c.order.PutUint64(buf[:], math.Float64bits(f))
	_, err := w.Write(buf[:])
	return err
}

func (c *Codec) readInt32(r io.Reader, op string) (int32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return int32(c.order.Uint32(buf[:])), nil
}

func (c *Codec) readFloat64(r io.Reader) (float64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, fmt.Errorf("read float64: %w", err)
	}
	return math.Float64frombits(c.order.Uint64(buf[:])), nil
}

// Encode writes v to w as a single self-describing tagged value.
func (c *Codec) Encode(w io.Writer, v Value) error {
	if err := c.writeInt32(w, int32(v.Kind)); err != nil {
		return fmt.Errorf("write tag: %w", err)
	}

	switch v.Kind {
	case KindNotFound:
		return c.writeInt32(w, 0)

	case KindUnknown:
		return c.encodeBytes(w, []byte(v.Diagnostic))

	case KindMatrix:
		if v.Elem == nil {
			return &ProtocolError{Op: "encode matrix", Detail: "nil element vector"}
		}
		if err := c.writeInt32(w, int32(v.Rows)); err != nil {
			return fmt.Errorf("write rows: %w", err)
		}
		if err := c.writeInt32(w, int32(v.Cols)); err != nil {
			return fmt.Errorf("write cols: %w", err)
		}
		return c.Encode(w, *v.Elem)

	case KindInteger, KindLogical:
		if err := c.writeInt32(w, int32(len(v.Ints))); err != nil {
			return fmt.Errorf("write length: %w", err)
		}
		for _, n := range v.Ints {
			if err := c.writeInt32(w, n); err != nil {
				return fmt.Errorf("write int payload: %w", err)
			}
		}
		return nil

	case KindDouble:
		return c.encodeDoubles(w, v)

	case KindCharacter:
		return c.encodeCharacters(w, v)

	default:
		return &ProtocolError{Op: "encode", Detail: fmt.Sprintf("invalid tag %d", v.Kind)}
	}
}

func (c *Codec) encodeBytes(w io.Writer, b []byte) error {
	if err := c.writeInt32(w, int32(len(b))); err != nil {
		return fmt.Errorf("write byte length: %w", err)
	}
	if _, err := w.Write(b); err != nil {
		return fmt.Errorf("write bytes: %w", err)
	}
	return nil
}

// encodeDoubles writes the raw floats followed by the missing-index
// list. Missing positions carry NaN in the float payload; the index
// list is authoritative, which keeps a genuine NaN distinct from NA.
func (c *Codec) encodeDoubles(w io.Writer, v Value) error {
	if err := c.writeInt32(w, int32(len(v.Doubles))); err != nil {
		return fmt.Errorf("write length: %w", err)
	}
	var missing []int32
	for i, f := range v.Doubles {
		if v.IsNA(i) {
			missing = append(missing, int32(i))
			f = math.NaN()
		}
		if err := c.writeFloat64(w, f); err != nil {
			return fmt.Errorf("write double payload: %w", err)
		}
	}
	if err := c.writeInt32(w, int32(len(missing))); err != nil {
		return fmt.Errorf("write missing count: %w", err)
	}
	for _, idx := range missing {
		if err := c.writeInt32(w, idx); err != nil {
			return fmt.Errorf("write missing index: %w", err)
		}
	}
	return nil
}

func (c *Codec) encodeCharacters(w io.Writer, v Value) error {
	if err := c.writeInt32(w, int32(len(v.Strings))); err != nil {
		return fmt.Errorf("write length: %w", err)
	}
	for i, s := range v.Strings {
		if v.IsNA(i) {
			if err := c.writeInt32(w, MissingString); err != nil {
				return fmt.Errorf("write missing string: %w", err)
			}
			continue
		}
		if err := c.encodeBytes(w, []byte(s)); err != nil {
			return err
		}
	}
	return nil
}

// Decode reads exactly one tagged value from r. A declared length
// above the sanity ceiling or an unrecognized tag is a protocol error,
// after which the stream position is untrustworthy.
func (c *Codec) Decode(r io.Reader) (Value, error) {
	tag, err := c.readInt32(r, "read tag")
	if err != nil {
		return Value{}, err
	}

	kind := Kind(tag)
	switch kind {
	case KindNotFound:
		// Length field is present but always zero.
		if _, err := c.readInt32(r, "read length"); err != nil {
			return Value{}, err
		}
		return NotFound(), nil

	case KindUnknown:
		b, err := c.decodeBytes(r, kind)
		if err != nil {
			return Value{}, err
		}
		return Unknown(string(b)), nil

	case KindMatrix:
		return c.decodeMatrix(r)

	case KindInteger, KindLogical:
		n, err := c.declaredLength(r, kind)
		if err != nil {
			return Value{}, err
		}
		ints := make([]int32, n)
		for i := range ints {
			if ints[i], err = c.readInt32(r, "read int payload"); err != nil {
				return Value{}, err
			}
		}
		return Value{Kind: kind, Ints: ints}, nil

	case KindDouble:
		return c.decodeDoubles(r)

	case KindCharacter:
		return c.decodeCharacters(r)

	default:
		return Value{}, &ProtocolError{Op: "decode tag", Detail: fmt.Sprintf("unknown tag %d", tag)}
	}
}

func (c *Codec) declaredLength(r io.Reader, kind Kind) (int32, error) {
	n, err := c.readInt32(r, "read length")
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, &ProtocolError{Op: "decode length", Detail: fmt.Sprintf("negative %s length %d", kind, n)}
	}
	if n > c.maxElements {
		return 0, &LengthError{Kind: kind, Declared: int64(n), Ceiling: int64(c.maxElements)}
	}
	return n, nil
}

func (c *Codec) decodeBytes(r io.Reader, kind Kind) ([]byte, error) {
	n, err := c.declaredLength(r, kind)
	if err != nil {
		return nil, err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, fmt.Errorf("read %s bytes: %w", kind, err)
	}
	return b, nil
}

func (c *Codec) decodeMatrix(r io.Reader) (Value, error) {
	rows, err := c.readInt32(r, "read rows")
	if err != nil {
		return Value{}, err
	}
	cols, err := c.readInt32(r, "read cols")
	if err != nil {
		return Value{}, err
	}
	if rows < 0 || cols < 0 {
		return Value{}, &ProtocolError{Op: "decode matrix", Detail: fmt.Sprintf("negative extents %dx%d", rows, cols)}
	}
	if int64(rows)*int64(cols) > int64(c.maxElements) {
		return Value{}, &LengthError{Kind: KindMatrix, Declared: int64(rows) * int64(cols), Ceiling: int64(c.maxElements)}
	}

	elem, err := c.Decode(r)
	if err != nil {
		return Value{}, err
	}
	switch elem.Kind {
	case KindDouble, KindInteger, KindCharacter, KindLogical:
	default:
		return Value{}, &ProtocolError{Op: "decode matrix", Detail: fmt.Sprintf("%s cannot be a matrix element", elem.Kind)}
	}
	if elem.Len() != int(rows)*int(cols) {
		return Value{}, &ProtocolError{
			Op:     "decode matrix",
			Detail: fmt.Sprintf("element length %d does not match %dx%d", elem.Len(), rows, cols),
		}
	}
	return Value{Kind: KindMatrix, Rows: int(rows), Cols: int(cols), Elem: &elem}, nil
}

func (c *Codec) decodeDoubles(r io.Reader) (Value, error) {
	n, err := c.declaredLength(r, KindDouble)
	if err != nil {
		return Value{}, err
	}
	ds := make([]float64, n)
	for i := range ds {
		if ds[i], err = c.readFloat64(r); err != nil {
			return Value{}, err
		}
	}

	count, err := c.readInt32(r, "read missing count")
	if err != nil {
		return Value{}, err
	}
	if count < 0 || count > n {
		return Value{}, &ProtocolError{Op: "decode missing list", Detail: fmt.Sprintf("missing count %d out of range for length %d", count, n)}
	}
	var missing []bool
	if count > 0 {
		missing = make([]bool, n)
		for i := int32(0); i < count; i++ {
			idx, err := c.readInt32(r, "read missing index")
			if err != nil {
				return Value{}, err
			}
			if idx < 0 || idx >= n {
				return Value{}, &ProtocolError{Op: "decode missing list", Detail: fmt.Sprintf("missing index %d out of range for length %d", idx, n)}
			}
			missing[idx] = true
		}
	}
	return Value{Kind: KindDouble, Doubles: ds, Missing: missing}, nil
}

func (c *Codec) decodeCharacters(r io.Reader) (Value, error) {
	n, err := c.declaredLength(r, KindCharacter)
	if err != nil {
		return Value{}, err
	}
	strs := make([]string, n)
	var missing []bool
	for i := range strs {
		byteLen, err := c.readInt32(r, "read string length")
		if err != nil {
			return Value{}, err
		}
		if byteLen < 0 {
			// Missing element: no payload follows.
			if missing == nil {
				missing = make([]bool, n)
			}
			missing[i] = true
			continue
		}
		if byteLen > c.maxElements {
			return Value{}, &LengthError{Kind: KindCharacter, Declared: int64(byteLen), Ceiling: int64(c.maxElements)}
		}
		b := make([]byte, byteLen)
		if _, err := io.ReadFull(r, b); err != nil {
			return Value{}, fmt.Errorf("read string bytes: %w", err)
		}
		strs[i] = string(b)
	}
	return Value{Kind: KindCharacter, Strings: strs, Missing: missing}, nil
}
