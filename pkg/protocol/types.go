package protocol

import (
	"fmt"
	"math"
)

// Value is the tagged union exchanged on the binary channel. Exactly
// one storage slice is populated, selected by Kind:
//
//	Integer, Logical  -> Ints (NAInteger marks missing)
//	Double            -> Doubles + Missing mask
//	Character         -> Strings + Missing mask
//	Matrix            -> Rows, Cols, Elem (row-major element vector)
//	Unknown           -> Diagnostic
//	NotFound          -> nothing
//
// A zero Value is a zero-length Double vector.
type Value struct {
	Kind Kind

	Ints    []int32
	Doubles []float64
	Strings []string

	// Missing marks NA positions for Double and Character vectors.
	// Nil means no element is missing.
	Missing []bool

	// Matrix extents and flattened element vector, row-major.
	Rows, Cols int
	Elem       *Value

	// Diagnostic carries the engine's description of an
	// unserializable value (KindUnknown only).
	Diagnostic string
}

// Len returns the element count of the value. Matrices report
// Rows*Cols; NotFound and Unknown report zero.
func (v Value) Len() int {
	switch v.Kind {
	case KindInteger, KindLogical:
		return len(v.Ints)
	case KindDouble:
		return len(v.Doubles)
	case KindCharacter:
		return len(v.Strings)
	case KindMatrix:
		return v.Rows * v.Cols
	default:
		return 0
	}
}

// IsNA reports whether element i is missing.
func (v Value) IsNA(i int) bool {
	switch v.Kind {
	case KindInteger, KindLogical:
		return v.Ints[i] == NAInteger
	case KindDouble, KindCharacter:
		return i < len(v.Missing) && v.Missing[i]
	case KindMatrix:
		return v.Elem.IsNA(i)
	default:
		return false
	}
}

// Float returns element i of a Double vector.
func (v Value) Float(i int) float64 { return v.Doubles[i] }

// Int returns element i of an Integer vector.
func (v Value) Int(i int) int32 { return v.Ints[i] }

// Bool returns element i of a Logical vector. Missing elements
// report false; check IsNA first.
func (v Value) Bool(i int) bool { return v.Ints[i] == 1 }

// Str returns element i of a Character vector.
func (v Value) Str(i int) string { return v.Strings[i] }

// Logicals builds a Logical vector with no missing elements.
func Logicals(vals []bool) Value {
	ints := make([]int32, len(vals))
	for i, b := range vals {
		if b {
			ints[i] = 1
		}
	}
	return Value{Kind: KindLogical, Ints: ints}
}

// Integers builds an Integer vector with no missing elements.
func Integers(vals []int32) Value {
	ints := make([]int32, len(vals))
	copy(ints, vals)
	return Value{Kind: KindInteger, Ints: ints}
}

// Doubles builds a Double vector with no missing elements.
func Doubles(vals []float64) Value {
	ds := make([]float64, len(vals))
	copy(ds, vals)
	return Value{Kind: KindDouble, Doubles: ds}
}

// DoublesNA builds a Double vector with the given missing mask.
// The mask may be nil; otherwise it must match vals in length.
func DoublesNA(vals []float64, missing []bool) Value {
	v := Doubles(vals)
	if missing != nil {
		v.Missing = make([]bool, len(missing))
		copy(v.Missing, missing)
	}
	return v
}

// Characters builds a Character vector with no missing elements.
func Characters(vals []string) Value {
	ss := make([]string, len(vals))
	copy(ss, vals)
	return Value{Kind: KindCharacter, Strings: ss}
}

// CharactersNA builds a Character vector with the given missing mask.
func CharactersNA(vals []string, missing []bool) Value {
	v := Characters(vals)
	if missing != nil {
		v.Missing = make([]bool, len(missing))
		copy(v.Missing, missing)
	}
	return v
}

// NotFound builds the engine's "no such object" result.
func NotFound() Value { return Value{Kind: KindNotFound} }

// Unknown builds the engine's "no wire encoding" result.
func Unknown(diagnostic string) Value {
	return Value{Kind: KindUnknown, Diagnostic: diagnostic}
}

// NewMatrix wraps a flattened row-major element vector in matrix
// extents. The element must be a plain vector whose length equals
// rows*cols.
func NewMatrix(rows, cols int, elem Value) (Value, error) {
	switch elem.Kind {
	case KindDouble, KindInteger, KindCharacter, KindLogical:
	default:
		return Value{}, &ConversionError{
			GoType: "matrix element",
			Reason: fmt.Sprintf("%s cannot be a matrix element", elem.Kind),
		}
	}
	if rows < 0 || cols < 0 || elem.Len() != rows*cols {
		return Value{}, &ConversionError{
			GoType: "matrix element",
			Reason: fmt.Sprintf("element length %d does not match %dx%d", elem.Len(), rows, cols),
		}
	}
	e := elem
	return Value{Kind: KindMatrix, Rows: rows, Cols: cols, Elem: &e}, nil
}

// Matrix is the host-side view of a pulled matrix. Elements are held
// row-major in Elem.
type Matrix struct {
	Rows, Cols int
	Elem       Value
}

// At returns the element at row r, column c as a Go scalar (float64,
// int, bool or string), or nil when the element is missing.
func (m *Matrix) At(r, c int) any {
	i := r*m.Cols + c
	if m.Elem.IsNA(i) {
		return nil
	}
	switch m.Elem.Kind {
	case KindDouble:
		return m.Elem.Float(i)
	case KindInteger:
		return int(m.Elem.Int(i))
	case KindLogical:
		return m.Elem.Bool(i)
	case KindCharacter:
		return m.Elem.Str(i)
	default:
		return nil
	}
}

// AsMatrix converts a KindMatrix value to its host-side view.
func (v Value) AsMatrix() (*Matrix, error) {
	if v.Kind != KindMatrix || v.Elem == nil {
		return nil, fmt.Errorf("value is %s, not a matrix", v.Kind)
	}
	return &Matrix{Rows: v.Rows, Cols: v.Cols, Elem: *v.Elem}, nil
}

// FromAny converts a native Go value to its wire representation under
// the assign policy: bools become Logical; integral numerics that fit
// the 32-bit signed range (excluding the NA sentinel) become Integer;
// everything else numeric becomes Double; strings become Character.
// Mixed []any vectors promote to the widest element kind, with nil
// elements becoming NA. [][]float64 and [][]int flatten row-major
// into a Matrix. A Value passes through unchanged.
func FromAny(val any) (Value, error) {
	switch x := val.(type) {
	case Value:
		return x, nil
	case *Matrix:
		return NewMatrix(x.Rows, x.Cols, x.Elem)
	case bool:
		return Logicals([]bool{x}), nil
	case []bool:
		return Logicals(x), nil
	case int:
		return fromInt64(int64(x)), nil
	case int32:
		return fromInt64(int64(x)), nil
	case int64:
		return fromInt64(x), nil
	case float32:
		return Doubles([]float64{float64(x)}), nil
	case float64:
		return Doubles([]float64{x}), nil
	case string:
		return Characters([]string{x}), nil
	case []int:
		xs := make([]int64, len(x))
		for i, n := range x {
			xs[i] = int64(n)
		}
		return fromInt64s(xs), nil
	case []int32:
		xs := make([]int64, len(x))
		for i, n := range x {
			xs[i] = int64(n)
		}
		return fromInt64s(xs), nil
	case []int64:
		return fromInt64s(x), nil
	case []float64:
		return Doubles(x), nil
	case []string:
		return Characters(x), nil
	case []any:
		return fromMixed(x)
	case [][]float64:
		return fromFloatMatrix(x)
	case [][]int:
		return fromIntMatrix(x)
	case nil:
		return Value{}, &ConversionError{GoType: "nil", Reason: "no element kind to encode a bare nil as"}
	default:
		return Value{}, &ConversionError{GoType: fmt.Sprintf("%T", val), Reason: "unsupported type"}
	}
}

func fitsInteger(n int64) bool {
	return n >= MinInteger && n <= MaxInteger
}

func fromInt64(n int64) Value {
	if fitsInteger(n) {
		return Integers([]int32{int32(n)})
	}
	return Doubles([]float64{float64(n)})
}

func fromInt64s(xs []int64) Value {
	for _, n := range xs {
		if !fitsInteger(n) {
			ds := make([]float64, len(xs))
			for i, m := range xs {
				ds[i] = float64(m)
			}
			return Doubles(ds)
		}
	}
	ints := make([]int32, len(xs))
	for i, n := range xs {
		ints[i] = int32(n)
	}
	return Integers(ints)
}

// fromMixed classifies a []any vector. Promotion order: any string
// forces Character, any float or out-of-range int forces Double,
// otherwise all-bool yields Logical and all-int yields Integer. nil
// elements become NA of the resulting kind.
func fromMixed(xs []any) (Value, error) {
	var hasString, hasFloat, hasInt, hasBool bool
	for _, x := range xs {
		switch n := x.(type) {
		case nil:
		case string:
			hasString = true
		case bool:
			hasBool = true
		case float32, float64:
			hasFloat = true
		case int:
			hasInt = true
			if !fitsInteger(int64(n)) {
				hasFloat = true
			}
		case int32:
			hasInt = true
			if !fitsInteger(int64(n)) {
				hasFloat = true
			}
		case int64:
			hasInt = true
			if !fitsInteger(n) {
				hasFloat = true
			}
		default:
			return Value{}, &ConversionError{
				GoType: fmt.Sprintf("%T", x),
				Reason: "unsupported element in mixed vector",
			}
		}
	}

	switch {
	case hasString:
		if hasFloat || hasInt || hasBool {
			return Value{}, &ConversionError{
				GoType: "[]any",
				Reason: "strings cannot mix with numeric or logical elements",
			}
		}
		strs := make([]string, len(xs))
		missing := make([]bool, len(xs))
		for i, x := range xs {
			if x == nil {
				missing[i] = true
				continue
			}
			strs[i] = x.(string)
		}
		return CharactersNA(strs, missing), nil

	case hasFloat:
		ds := make([]float64, len(xs))
		missing := make([]bool, len(xs))
		for i, x := range xs {
			f, na := mixedFloat(x)
			ds[i], missing[i] = f, na
		}
		return DoublesNA(ds, missing), nil

	case hasInt:
		ints := make([]int32, len(xs))
		for i, x := range xs {
			if x == nil {
				ints[i] = NAInteger
				continue
			}
			ints[i] = int32(mixedInt(x))
		}
		return Value{Kind: KindInteger, Ints: ints}, nil

	case hasBool:
		ints := make([]int32, len(xs))
		for i, x := range xs {
			if x == nil {
				ints[i] = NAInteger
				continue
			}
			if x.(bool) {
				ints[i] = 1
			}
		}
		return Value{Kind: KindLogical, Ints: ints}, nil

	default:
		// All nil (or empty): a vector of missing doubles.
		missing := make([]bool, len(xs))
		for i := range missing {
			missing[i] = true
		}
		return DoublesNA(make([]float64, len(xs)), missing), nil
	}
}

func mixedFloat(x any) (f float64, na bool) {
	switch n := x.(type) {
	case nil:
		return 0, true
	case float64:
		return n, false
	case float32:
		return float64(n), false
	case int:
		return float64(n), false
	case int32:
		return float64(n), false
	case int64:
		return float64(n), false
	case bool:
		if n {
			return 1, false
		}
		return 0, false
	default:
		return math.NaN(), true
	}
}

func mixedInt(x any) int64 {
	switch n := x.(type) {
	case int:
		return int64(n)
	case int32:
		return int64(n)
	case int64:
		return n
	case bool:
		if n {
			return 1
		}
		return 0
	default:
		return 0
	}
}

func fromFloatMatrix(rows [][]float64) (Value, error) {
	nr := len(rows)
	nc := 0
	if nr > 0 {
		nc = len(rows[0])
	}
	flat := make([]float64, 0, nr*nc)
	for _, row := range rows {
		if len(row) != nc {
			return Value{}, &ConversionError{GoType: "[][]float64", Reason: "ragged rows"}
		}
		flat = append(flat, row...)
	}
	return NewMatrix(nr, nc, Doubles(flat))
}

func fromIntMatrix(rows [][]int) (Value, error) {
	nr := len(rows)
	nc := 0
	if nr > 0 {
		nc = len(rows[0])
	}
	flat := make([]int64, 0, nr*nc)
	for _, row := range rows {
		if len(row) != nc {
			return Value{}, &ConversionError{GoType: "[][]int", Reason: "ragged rows"}
		}
		for _, n := range row {
			flat = append(flat, int64(n))
		}
	}
	elem := fromInt64s(flat)
	return NewMatrix(nr, nc, elem)
}

// ToAny converts a decoded value back to a native Go value. With
// singleton false, a one-element non-Character vector unwraps to a
// scalar (nil when that element is missing). Vectors with missing
// elements come back as []any with nils; otherwise a typed slice.
// Matrices come back as *Matrix.
func (v Value) ToAny(singleton bool) any {
	switch v.Kind {
	case KindMatrix:
		m, err := v.AsMatrix()
		if err != nil {
			return nil
		}
		return m
	case KindNotFound, KindUnknown:
		return nil
	}

	if !singleton && v.Len() == 1 && v.Kind != KindCharacter {
		if v.IsNA(0) {
			return nil
		}
		switch v.Kind {
		case KindDouble:
			return v.Float(0)
		case KindInteger:
			return int(v.Int(0))
		case KindLogical:
			return v.Bool(0)
		}
	}

	anyNA := false
	for i := 0; i < v.Len(); i++ {
		if v.IsNA(i) {
			anyNA = true
			break
		}
	}

	if anyNA {
		out := make([]any, v.Len())
		for i := range out {
			if v.IsNA(i) {
				continue
			}
			switch v.Kind {
			case KindDouble:
				out[i] = v.Float(i)
			case KindInteger:
				out[i] = int(v.Int(i))
			case KindLogical:
				out[i] = v.Bool(i)
			case KindCharacter:
				out[i] = v.Str(i)
			}
		}
		return out
	}

	switch v.Kind {
	case KindDouble:
		out := make([]float64, len(v.Doubles))
		copy(out, v.Doubles)
		return out
	case KindInteger:
		out := make([]int, len(v.Ints))
		for i, n := range v.Ints {
			out[i] = int(n)
		}
		return out
	case KindLogical:
		out := make([]bool, len(v.Ints))
		for i, n := range v.Ints {
			out[i] = n == 1
		}
		return out
	case KindCharacter:
		out := make([]string, len(v.Strings))
		copy(out, v.Strings)
		return out
	default:
		return nil
	}
}
