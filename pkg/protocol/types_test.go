package protocol_test

import (
	"errors"
	"math"
	"testing"

	"rbridge/pkg/protocol"
)

func TestFromAnyScalars(t *testing.T) {
	tests := []struct {
		in   any
		kind protocol.Kind
	}{
		{true, protocol.KindLogical},
		{int(7), protocol.KindInteger},
		{int32(7), protocol.KindInteger},
		{int64(7), protocol.KindInteger},
		{3.5, protocol.KindDouble},
		{float32(3.5), protocol.KindDouble},
		{"s", protocol.KindCharacter},
	}
	for _, tt := range tests {
		v, err := protocol.FromAny(tt.in)
		if err != nil {
			t.Fatalf("FromAny(%v): %v", tt.in, err)
		}
		if v.Kind != tt.kind || v.Len() != 1 {
			t.Errorf("FromAny(%v) = %s of length %d, want %s", tt.in, v.Kind, v.Len(), tt.kind)
		}
	}
}

func TestFromAnyIntegerRange(t *testing.T) {
	tests := []struct {
		in   int64
		kind protocol.Kind
	}{
		{int64(math.MaxInt32), protocol.KindInteger},
		{int64(math.MinInt32) + 1, protocol.KindInteger},
		{int64(math.MaxInt32) + 1, protocol.KindDouble},
		// MinInt32 is the wire's NA pattern and may not travel as a value.
		{int64(math.MinInt32), protocol.KindDouble},
	}
	for _, tt := range tests {
		v, err := protocol.FromAny(tt.in)
		if err != nil {
			t.Fatalf("FromAny(%d): %v", tt.in, err)
		}
		if v.Kind != tt.kind {
			t.Errorf("FromAny(%d) = %s, want %s", tt.in, v.Kind, tt.kind)
		}
	}
}

func TestFromAnySlicePromotion(t *testing.T) {
	// One out-of-range element promotes the whole vector.
	v, err := protocol.FromAny([]int64{1, int64(math.MaxInt32) + 1})
	if err != nil {
		t.Fatalf("FromAny: %v", err)
	}
	if v.Kind != protocol.KindDouble {
		t.Fatalf("kind = %s, want double", v.Kind)
	}
	if v.Float(0) != 1 || v.Float(1) != float64(math.MaxInt32)+1 {
		t.Fatalf("values = %v", v.Doubles)
	}
}

func TestFromAnyMixed(t *testing.T) {
	v, err := protocol.FromAny([]any{1, nil, 3})
	if err != nil {
		t.Fatalf("FromAny: %v", err)
	}
	if v.Kind != protocol.KindInteger || v.Len() != 3 {
		t.Fatalf("got %s of length %d", v.Kind, v.Len())
	}
	if v.IsNA(0) || !v.IsNA(1) || v.IsNA(2) {
		t.Fatalf("missing pattern wrong: %v", v.Ints)
	}

	// A float anywhere promotes ints alongside it.
	v, err = protocol.FromAny([]any{1, 2.5})
	if err != nil {
		t.Fatalf("FromAny: %v", err)
	}
	if v.Kind != protocol.KindDouble || v.Float(0) != 1 || v.Float(1) != 2.5 {
		t.Fatalf("got %s %v", v.Kind, v.Doubles)
	}

	// Strings never mix with numerics.
	if _, err := protocol.FromAny([]any{"a", 1}); err == nil {
		t.Fatal("expected error for string/numeric mix")
	}

	// Logical with missing.
	v, err = protocol.FromAny([]any{true, nil})
	if err != nil {
		t.Fatalf("FromAny: %v", err)
	}
	if v.Kind != protocol.KindLogical || !v.IsNA(1) {
		t.Fatalf("got %s, IsNA(1)=%v", v.Kind, v.IsNA(1))
	}
}

func TestFromAnyMixedPromotesNAPattern(t *testing.T) {
	// The reserved missing bit pattern must never travel as an Integer
	// element, whatever Go integer type carries it into the vector.
	for _, in := range []any{
		[]any{int32(math.MinInt32)},
		[]any{int(math.MinInt32)},
		[]any{int64(math.MinInt32)},
		[]any{1, int32(math.MinInt32)},
	} {
		v, err := protocol.FromAny(in)
		if err != nil {
			t.Fatalf("FromAny(%v): %v", in, err)
		}
		if v.Kind != protocol.KindDouble {
			t.Errorf("FromAny(%v) = %s, want double", in, v.Kind)
			continue
		}
		last := v.Len() - 1
		if v.IsNA(last) || v.Float(last) != float64(math.MinInt32) {
			t.Errorf("FromAny(%v) element %d = %v (NA=%v), want %v",
				in, last, v.Float(last), v.IsNA(last), float64(math.MinInt32))
		}
	}
}

func TestFromAnyMatrix(t *testing.T) {
	v, err := protocol.FromAny([][]float64{{1, 2}, {3, 4}})
	if err != nil {
		t.Fatalf("FromAny: %v", err)
	}
	if v.Kind != protocol.KindMatrix || v.Rows != 2 || v.Cols != 2 {
		t.Fatalf("got %s %dx%d", v.Kind, v.Rows, v.Cols)
	}
	m, err := v.AsMatrix()
	if err != nil {
		t.Fatalf("AsMatrix: %v", err)
	}
	if m.At(1, 0) != 3.0 {
		t.Fatalf("m[1,0] = %v", m.At(1, 0))
	}

	if _, err := protocol.FromAny([][]float64{{1, 2}, {3}}); err == nil {
		t.Fatal("expected error for ragged rows")
	}
}

func TestFromAnyRejectsUnsupported(t *testing.T) {
	for _, in := range []any{nil, struct{}{}, map[string]int{}, complex(1, 2)} {
		_, err := protocol.FromAny(in)
		var conv *protocol.ConversionError
		if !errors.As(err, &conv) {
			t.Errorf("FromAny(%T) = %v, want ConversionError", in, err)
		}
	}
}

func TestToAnyScalarUnwrap(t *testing.T) {
	tests := []struct {
		v    protocol.Value
		want any
	}{
		{protocol.Integers([]int32{5}), 5},
		{protocol.Doubles([]float64{1.5}), 1.5},
		{protocol.Logicals([]bool{true}), true},
	}
	for _, tt := range tests {
		if got := tt.v.ToAny(false); got != tt.want {
			t.Errorf("ToAny = %v (%T), want %v", got, got, tt.want)
		}
		// Singleton mode keeps the slice.
		switch tt.v.ToAny(true).(type) {
		case []int, []float64, []bool:
		default:
			t.Errorf("ToAny(singleton) of %s did not stay a slice", tt.v.Kind)
		}
	}

	// Character never unwraps.
	if _, ok := protocol.Characters([]string{"x"}).ToAny(false).([]string); !ok {
		t.Error("one-element character vector should stay []string")
	}

	// A missing scalar is nil.
	na := protocol.DoublesNA([]float64{0}, []bool{true})
	if got := na.ToAny(false); got != nil {
		t.Errorf("missing scalar = %v, want nil", got)
	}
}

func TestToAnyMissingVector(t *testing.T) {
	v := protocol.CharactersNA([]string{"a", ""}, []bool{false, true})
	got, ok := v.ToAny(false).([]any)
	if !ok {
		t.Fatalf("got %T, want []any", v.ToAny(false))
	}
	if got[0] != "a" || got[1] != nil {
		t.Fatalf("values = %v", got)
	}
}

func TestValueAccessorsOnNA(t *testing.T) {
	v := protocol.Integers([]int32{protocol.NAInteger, 3})
	if !v.IsNA(0) {
		t.Error("NA integer pattern not detected")
	}
	if v.IsNA(1) {
		t.Error("plain value flagged NA")
	}
}
