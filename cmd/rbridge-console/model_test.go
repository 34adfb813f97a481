package main

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"rbridge/pkg/bridge"
)

// stubEvaluator classifies fragments with a fixed table and writes
// canned output to the sink on eval.
type stubEvaluator struct {
	sink    *captureSink
	probes  map[string]bridge.ProbeResult
	evaled  []string
	evalErr error
	output  string
	version string
}

func (s *stubEvaluator) IsComplete(code string) (bridge.ProbeResult, error) {
	if r, ok := s.probes[code]; ok {
		return r, nil
	}
	return bridge.ProbeResult{State: bridge.Complete}, nil
}

func (s *stubEvaluator) Eval(code string) error {
	s.evaled = append(s.evaled, code)
	if s.evalErr != nil {
		return s.evalErr
	}
	if s.output != "" {
		fmt.Fprintln(s.sink, s.output)
	}
	return nil
}

func (s *stubEvaluator) EngineVersion() (string, error) {
	return s.version, nil
}

func newTestModel(stub *stubEvaluator) Model {
	sink := &captureSink{}
	stub.sink = sink
	m := newModel(stub, sink)
	resized, _ := m.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	return resized.(Model)
}

// press submits one line of input through the update loop, running the
// returned command synchronously.
func press(t *testing.T, m Model, line string) Model {
	t.Helper()
	m.input.SetValue(line)
	updated, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = updated.(Model)
	if cmd == nil {
		return m
	}
	updated, _ = m.Update(cmd())
	return updated.(Model)
}

func TestSubmitCompleteLine(t *testing.T) {
	stub := &stubEvaluator{output: "[1] 2"}
	m := newTestModel(stub)

	m = press(t, m, "1+1")

	if len(stub.evaled) != 1 || stub.evaled[0] != "1+1" {
		t.Fatalf("evaled = %v", stub.evaled)
	}
	if len(m.pending) != 0 {
		t.Fatalf("pending = %v, want empty", m.pending)
	}
	if !strings.Contains(m.View(), "[1] 2") {
		t.Fatal("output not shown in transcript")
	}
}

func TestIncompleteAccumulates(t *testing.T) {
	stub := &stubEvaluator{
		probes: map[string]bridge.ProbeResult{
			"f <- function(x) {": {State: bridge.Incomplete},
		},
		output: "done",
	}
	m := newTestModel(stub)

	m = press(t, m, "f <- function(x) {")
	if len(stub.evaled) != 0 {
		t.Fatalf("incomplete fragment was evaluated: %v", stub.evaled)
	}
	if len(m.pending) != 1 {
		t.Fatalf("pending = %v, want the held fragment", m.pending)
	}
	if !strings.Contains(m.View(), "(continuation)") {
		t.Fatal("continuation state not surfaced")
	}

	m = press(t, m, "x + 1 }")
	if len(stub.evaled) != 1 || stub.evaled[0] != "f <- function(x) {\nx + 1 }" {
		t.Fatalf("evaled = %v, want joined fragment", stub.evaled)
	}
	if len(m.pending) != 0 {
		t.Fatalf("pending = %v after completion", m.pending)
	}
}

func TestUnrecoverableDiscardsFragment(t *testing.T) {
	stub := &stubEvaluator{
		probes: map[string]bridge.ProbeResult{
			";": {State: bridge.Unrecoverable, Line: 1, Column: 1, Offending: "unexpected ';'"},
		},
	}
	m := newTestModel(stub)

	m = press(t, m, ";")
	if len(stub.evaled) != 0 {
		t.Fatalf("broken fragment was evaluated: %v", stub.evaled)
	}
	if len(m.pending) != 0 {
		t.Fatalf("pending = %v, want discarded", m.pending)
	}
	if !strings.Contains(m.View(), "unexpected ';'") {
		t.Fatal("parse diagnostics not shown")
	}
}

func TestEvalErrorShownAndFragmentDropped(t *testing.T) {
	stub := &stubEvaluator{evalErr: errors.New("engine closed")}
	m := newTestModel(stub)

	m = press(t, m, "1+1")
	if len(m.pending) != 0 {
		t.Fatalf("pending = %v", m.pending)
	}
	if !strings.Contains(m.View(), "engine closed") {
		t.Fatal("error not shown in transcript")
	}
}

func TestBlankLineIgnored(t *testing.T) {
	stub := &stubEvaluator{}
	m := newTestModel(stub)

	m = press(t, m, "   ")
	if len(stub.evaled) != 0 {
		t.Fatalf("blank line was evaluated: %v", stub.evaled)
	}
	if len(m.pending) != 0 {
		t.Fatalf("pending = %v", m.pending)
	}
}

func TestVersionBanner(t *testing.T) {
	stub := &stubEvaluator{version: "R version 4.4.1"}
	m := newTestModel(stub)

	updated, _ := m.Update(versionMsg(stub.version))
	m = updated.(Model)
	if !strings.Contains(m.View(), "R version 4.4.1") {
		t.Fatal("banner not shown")
	}
}

func TestCtrlCQuits(t *testing.T) {
	stub := &stubEvaluator{}
	m := newTestModel(stub)

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatal("ctrl-c did not quit")
	}
}

func TestSinkLines(t *testing.T) {
	sink := &captureSink{}
	fmt.Fprintln(sink, "a")
	fmt.Fprintln(sink, "b")
	if got := sink.Lines(); len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("lines = %v", got)
	}
	sink.Reset()
	if got := sink.Lines(); got != nil {
		t.Fatalf("lines after reset = %v", got)
	}
}
