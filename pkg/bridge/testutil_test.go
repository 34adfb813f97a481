package bridge_test

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"rbridge/pkg/engine"
	"rbridge/pkg/protocol"
)

// fakeEngine speaks the bridge's text and binary protocols in-process
// so every test runs without a real R interpreter. It implements just
// enough of the engine side: the connect/probe/pull/assign glue, a
// print statement, a sleep that honors interrupts, and single-line
// numeric assignments.
type fakeEngine struct {
	stdinR  *io.PipeReader
	stdinW  *io.PipeWriter
	stdoutR *io.PipeReader
	stdoutW *io.PipeWriter

	codec *protocol.Codec

	mu        sync.Mutex
	vars      map[string]protocol.Value
	funcs     map[string]string // name -> engine-side class
	probeSrc  string
	pullSrc   string
	assignSrc string
	conn      net.Conn

	intr chan struct{}
	done chan struct{}
	once sync.Once
}

// fakeSpawner hands the bridge a fakeEngine as its subprocess.
type fakeSpawner struct {
	eng *fakeEngine
}

func newFakeEngine() *fakeEngine {
	stdinR, stdinW := io.Pipe()
	stdoutR, stdoutW := io.Pipe()
	return &fakeEngine{
		stdinR:  stdinR,
		stdinW:  stdinW,
		stdoutR: stdoutR,
		stdoutW: stdoutW,
		codec:   protocol.NewCodec(binary.BigEndian),
		vars:    make(map[string]protocol.Value),
		funcs:   map[string]string{"summary": "function"},
		intr:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

func (s *fakeSpawner) Spawn(_ string, _ []string) (engine.Process, error) {
	go s.eng.run()
	return s.eng, nil
}

// failingSpawner always fails, for LaunchError coverage.
type failingSpawner struct{ err error }

func (s *failingSpawner) Spawn(_ string, _ []string) (engine.Process, error) {
	return nil, s.err
}

// engine.Process implementation.

func (e *fakeEngine) Stdin() io.Writer  { return e.stdinW }
func (e *fakeEngine) Stdout() io.Reader { return e.stdoutR }

func (e *fakeEngine) Interrupt() error {
	select {
	case e.intr <- struct{}{}:
	default:
	}
	return nil
}

func (e *fakeEngine) Kill() error {
	_ = e.stdinR.Close()
	_ = e.stdoutW.Close()
	return nil
}

func (e *fakeEngine) Wait() error {
	<-e.done
	return nil
}

func (e *fakeEngine) exit() {
	e.once.Do(func() {
		e.mu.Lock()
		if e.conn != nil {
			_ = e.conn.Close()
		}
		e.mu.Unlock()
		_ = e.stdinR.Close()
		_ = e.stdoutW.Close()
		close(e.done)
	})
}

var (
	printRe      = regexp.MustCompile(`^print\("(.*)"\)$`)
	connectRe    = regexp.MustCompile(`^\.rbridge\.connect\((\d+)\)$`)
	simpleEvalRe = regexp.MustCompile(`^([A-Za-z.][A-Za-z0-9._]*)\s*<-\s*(-?[0-9]+(?:\.[0-9]+)?)$`)
	sleepRe      = regexp.MustCompile(`^Sys\.sleep\([0-9.]+\)$`)
	validNameRe  = regexp.MustCompile(`^[A-Za-z.][A-Za-z0-9._]*$`)
)

const readValueGlue = " <- .rbridge.read.value()"

func (e *fakeEngine) run() {
	defer e.exit()

	// Drain stdin on a separate goroutine so writes never block while
	// a statement is executing, matching an OS pipe's buffering.
	lines := make(chan string, 256)
	go func() {
		scanner := bufio.NewScanner(e.stdinR)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	for line := range lines {
		if !e.handle(line) {
			return
		}
	}
}

// handle interprets one text-channel line. Unrecognized lines are
// engine source the fake has no opinion about (the bootstrap helper
// definitions, mostly) and are ignored.
func (e *fakeEngine) handle(line string) bool {
	switch {
	case line == `q(save="no")`, line == "quit()":
		return false

	case strings.HasPrefix(line, ".rbridge.read.ints <- "):
		// The helper definitions carry the session's byte order;
		// sourcing them configures this side, like a real engine.
		if strings.Contains(line, `endian = "little"`) {
			e.codec = protocol.NewCodec(binary.LittleEndian)
		}

	case line == ".rbridge.probe()":
		status, _, _, _, _ := classify(e.probeSrc)
		e.writeValue(protocol.Integers([]int32{status}))

	case line == ".rbridge.probe.detail()":
		_, l, c, atEnd, off := classify(e.probeSrc)
		at := int32(0)
		if atEnd {
			at = 1
		}
		e.writeValue(protocol.Integers([]int32{l, c, at}))
		e.writeValue(protocol.Characters([]string{off}))

	case line == ".rbridge.assignable()":
		ok := int32(0)
		if validNameRe.MatchString(strings.TrimSpace(e.assignSrc)) {
			ok = 1
		}
		e.writeValue(protocol.Integers([]int32{ok}))

	case line == ".rbridge.pull()":
		e.servePull()

	case strings.HasSuffix(line, readValueGlue):
		name := strings.TrimSuffix(line, readValueGlue)
		v, err := e.codec.Decode(e.socket())
		if err != nil {
			return false
		}
		e.mu.Lock()
		switch name {
		case ".rbridge.probe.src":
			e.probeSrc = v.Str(0)
		case ".rbridge.pull.src":
			e.pullSrc = v.Str(0)
		case ".rbridge.assignable.src":
			e.assignSrc = v.Str(0)
		default:
			e.vars[name] = v
		}
		e.mu.Unlock()

	case sleepRe.MatchString(line):
		// Block until interrupted, like a long computation.
		select {
		case <-e.intr:
		case <-time.After(5 * time.Second):
		}

	default:
		if m := connectRe.FindStringSubmatch(line); m != nil {
			port, _ := strconv.Atoi(m[1])
			conn, err := net.Dial("tcp", fmt.Sprintf("127.0.0.1:%d", port))
			if err != nil {
				return false
			}
			e.mu.Lock()
			e.conn = conn
			e.mu.Unlock()
			return true
		}
		if m := printRe.FindStringSubmatch(line); m != nil {
			fmt.Fprintf(e.stdoutW, "[1] \"%s\"\n", m[1])
			return true
		}
		if m := simpleEvalRe.FindStringSubmatch(line); m != nil {
			e.mu.Lock()
			if strings.Contains(m[2], ".") {
				f, _ := strconv.ParseFloat(m[2], 64)
				e.vars[m[1]] = protocol.Doubles([]float64{f})
			} else {
				n, _ := strconv.Atoi(m[2])
				e.vars[m[1]] = protocol.Integers([]int32{int32(n)})
			}
			e.mu.Unlock()
		}
	}
	return true
}

func (e *fakeEngine) socket() net.Conn {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.conn
}

func (e *fakeEngine) writeValue(v protocol.Value) {
	_ = e.codec.Encode(e.socket(), v)
}

func (e *fakeEngine) servePull() {
	e.mu.Lock()
	name := e.pullSrc
	v, ok := e.vars[name]
	class, isFunc := e.funcs[name]
	e.mu.Unlock()

	switch {
	case name == "R.version.string":
		e.writeValue(protocol.Characters([]string{"R version 4.4.1 (fake)"}))
	case isFunc:
		e.writeValue(protocol.Unknown(class))
	case ok:
		e.writeValue(v)
	default:
		e.writeValue(protocol.NotFound())
	}
}

// classify approximates the engine parser for the fragments the tests
// exercise: a trailing assignment arrow means more input can complete
// the fragment, while a stray semicolon can never parse.
func classify(code string) (status, line, col int32, atEnd bool, offending string) {
	trimmed := strings.TrimSpace(code)
	lines := int32(strings.Count(code, "\n") + 1)
	switch {
	case strings.Contains(trimmed, ";"):
		return 2, lines, int32(strings.Index(trimmed, ";") + 1), false, "unexpected ';'"
	case strings.HasSuffix(trimmed, "<-"):
		return 1, lines + 1, 0, true, "unexpected end of input"
	default:
		return 0, 0, 0, false, ""
	}
}
