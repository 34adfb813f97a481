package bridge

import "testing"

func TestParseSentinel(t *testing.T) {
	tests := []struct {
		line string
		n    uint64
		ok   bool
	}{
		{`[1] "RBRIDGE.EVAL.FLAG.1"`, 1, true},
		{`[1] "RBRIDGE.EVAL.FLAG.42"`, 42, true},
		{`[1] "RBRIDGE.EVAL.FLAG.18446744073709551615"`, 1<<64 - 1, true},

		// Garbled or missing counters are not sentinels.
		{`[1] "RBRIDGE.EVAL.FLAG."`, 0, false},
		{`[1] "RBRIDGE.EVAL.FLAG.x"`, 0, false},
		{`[1] "RBRIDGE.EVAL.FLAG.-1"`, 0, false},
		{`[1] "RBRIDGE.EVAL.FLAG.1.2"`, 0, false},

		// Only the engine's quoted echo form counts.
		{`RBRIDGE.EVAL.FLAG.1`, 0, false},
		{`print("RBRIDGE.EVAL.FLAG.1")`, 0, false},
		{`[1] "RBRIDGE.EVAL.FLAG.1`, 0, false},
		{`[1] "RBRIDGE.EVAL.FLAG.1" trailing`, 0, false},
		{`[1] "something else"`, 0, false},
		{``, 0, false},
	}
	for _, tt := range tests {
		n, ok := parseSentinel(tt.line)
		if ok != tt.ok || n != tt.n {
			t.Errorf("parseSentinel(%q) = %d, %v; want %d, %v",
				tt.line, n, ok, tt.n, tt.ok)
		}
	}
}
