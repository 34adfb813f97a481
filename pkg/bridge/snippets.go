package bridge

import (
	"encoding/binary"
	"fmt"
	"strings"

	"rbridge/pkg/protocol"
)

// The engine-side halves of the protocol are a fixed, versioned set of
// helper definitions sent once at session start. They live here as
// data so no other part of the pipeline builds engine source by string
// surgery.

// BootstrapVersion identifies the helper set wired below. Bump it when
// a helper's wire behavior changes.
const BootstrapVersion = 1

// glue statements injected per operation. Each is a single line.
const (
	glueProbeLoad      = `.rbridge.probe.src <- .rbridge.read.value()`
	glueProbeRun       = `.rbridge.probe()`
	glueProbeDetail    = `.rbridge.probe.detail()`
	gluePullLoad       = `.rbridge.pull.src <- .rbridge.read.value()`
	gluePullRun        = `.rbridge.pull()`
	glueAssignableLoad = `.rbridge.assignable.src <- .rbridge.read.value()`
	glueAssignableRun  = `.rbridge.assignable()`

	// exitDirective asks the engine to quit without saving a workspace.
	exitDirective = `q(save="no")`
)

// glueConnect instructs the engine to dial the host's listener.
func glueConnect(port int) string {
	return fmt.Sprintf(".rbridge.connect(%d)", port)
}

// glueAssign pulls one value off the binary channel into name.
func glueAssign(name string) string {
	return name + " <- .rbridge.read.value()"
}

// sentinelStatement prints the completion sentinel for run counter n.
func sentinelStatement(n uint64) string {
	return fmt.Sprintf(`print("%s.%d")`, protocol.EvalFlag, n)
}

// sentinelEcho is the form the sentinel takes when the engine echoes
// it back on the text channel.
func sentinelEcho(n uint64) string {
	return fmt.Sprintf(`[1] "%s.%d"`, protocol.EvalFlag, n)
}

// bootstrapSource defines the engine-side helpers. Binary I/O mirrors
// pkg/protocol exactly: int32 tags and lengths in the session's byte
// order (written here as big, rewritten by bootstrapLines), doubles
// with a zero-based trailing missing-index list (NaN kept distinct
// from NA), strings length-prefixed with -1 for NA, matrices shipped
// row-major and rebuilt column-major with byrow=TRUE.
const bootstrapSource = `
.rbridge.notfound <- new.env()
.rbridge.connect <- function(port) {
  assign(".rbridge.socket",
    socketConnection("127.0.0.1", port, blocking = TRUE, open = "r+b"),
    envir = globalenv())
  invisible(NULL)
}
.rbridge.write.int <- function(v) writeBin(as.integer(v), .rbridge.socket, endian = "big")
.rbridge.read.ints <- function(n) readBin(.rbridge.socket, "integer", n, size = 4, endian = "big")
.rbridge.write.vector <- function(v) {
  if (is.logical(v)) {
    .rbridge.write.int(3L); .rbridge.write.int(length(v)); .rbridge.write.int(as.integer(v))
  } else if (is.integer(v)) {
    .rbridge.write.int(1L); .rbridge.write.int(length(v)); .rbridge.write.int(v)
  } else if (is.double(v)) {
    .rbridge.write.int(0L); .rbridge.write.int(length(v))
    writeBin(as.double(v), .rbridge.socket, endian = "big")
    idx <- which(is.na(v) & !is.nan(v)) - 1L
    .rbridge.write.int(length(idx))
    if (length(idx) > 0) .rbridge.write.int(idx)
  } else if (is.character(v)) {
    .rbridge.write.int(2L); .rbridge.write.int(length(v))
    for (x in v) {
      if (is.na(x)) {
        .rbridge.write.int(-1L)
      } else {
        b <- charToRaw(x)
        .rbridge.write.int(length(b)); writeBin(b, .rbridge.socket)
      }
    }
  } else {
    .rbridge.write.unknown(v)
  }
}
.rbridge.write.unknown <- function(v) {
  b <- charToRaw(paste(class(v), collapse = "/"))
  .rbridge.write.int(-1L); .rbridge.write.int(length(b)); writeBin(b, .rbridge.socket)
}
.rbridge.write.notfound <- function() { .rbridge.write.int(-2L); .rbridge.write.int(0L) }
.rbridge.write.value <- function(v) {
  if (is.matrix(v)) {
    .rbridge.write.int(4L); .rbridge.write.int(nrow(v)); .rbridge.write.int(ncol(v))
    .rbridge.write.vector(as.vector(t(v)))
  } else if (is.logical(v) || is.integer(v) || is.double(v) || is.character(v)) {
    .rbridge.write.vector(v)
  } else {
    .rbridge.write.unknown(v)
  }
}
.rbridge.read.value <- function() {
  tag <- .rbridge.read.ints(1)
  if (tag == 4L) {
    r <- .rbridge.read.ints(1); c <- .rbridge.read.ints(1)
    matrix(.rbridge.read.value(), nrow = r, ncol = c, byrow = TRUE)
  } else if (tag == 3L) {
    as.logical(.rbridge.read.ints(.rbridge.read.ints(1)))
  } else if (tag == 1L) {
    .rbridge.read.ints(.rbridge.read.ints(1))
  } else if (tag == 0L) {
    n <- .rbridge.read.ints(1)
    v <- readBin(.rbridge.socket, "double", n, size = 8, endian = "big")
    k <- .rbridge.read.ints(1)
    if (k > 0) v[.rbridge.read.ints(k) + 1L] <- NA_real_
    v
  } else if (tag == 2L) {
    n <- .rbridge.read.ints(1)
    v <- character(n)
    for (i in seq_len(n)) {
      b <- .rbridge.read.ints(1)
      if (b < 0) v[i] <- NA_character_
      else v[i] <- rawToChar(readBin(.rbridge.socket, "raw", b))
    }
    v
  } else {
    stop("rbridge: unknown tag ", tag)
  }
}
.rbridge.probe <- function() {
  r <- tryCatch({ parse(text = .rbridge.probe.src); NULL }, error = function(e) e)
  if (is.null(r)) {
    .rbridge.write.vector(0L)
  } else {
    assign(".rbridge.probe.err", r, envir = globalenv())
    if (grepl("unexpected end of input", conditionMessage(r))) .rbridge.write.vector(1L)
    else .rbridge.write.vector(2L)
  }
  invisible(NULL)
}
.rbridge.probe.detail <- function() {
  msg <- conditionMessage(.rbridge.probe.err)
  m <- regmatches(msg, regexec("<text>:([0-9]+):([0-9]+): *(.*)", msg))[[1]]
  atend <- as.integer(grepl("unexpected end of input", msg))
  if (length(m) == 4) {
    .rbridge.write.vector(c(as.integer(m[2]), as.integer(m[3]), atend))
    .rbridge.write.vector(sub("\n.*$", "", m[4]))
  } else {
    .rbridge.write.vector(c(0L, 0L, atend))
    .rbridge.write.vector(msg)
  }
  invisible(NULL)
}
.rbridge.assignable <- function() {
  ok <- tryCatch({
    eval(parse(text = paste(.rbridge.assignable.src, "<- 1")), envir = new.env(parent = globalenv()))
    1L
  }, error = function(e) 0L)
  .rbridge.write.vector(ok)
  invisible(NULL)
}
.rbridge.pull <- function() {
  v <- tryCatch(eval(parse(text = .rbridge.pull.src), envir = globalenv()),
    error = function(e) .rbridge.notfound)
  if (identical(v, .rbridge.notfound)) .rbridge.write.notfound()
  else .rbridge.write.value(v)
  invisible(NULL)
}
`

// bootstrapLines returns the helper definitions split into text-channel
// lines, skipping blanks. The endian argument of every readBin/writeBin
// call is rewritten to match the session's byte order, so both sides of
// the binary channel always agree.
func bootstrapLines(order binary.ByteOrder) []string {
	src := bootstrapSource
	if order == binary.LittleEndian {
		src = strings.ReplaceAll(src, `endian = "big"`, `endian = "little"`)
	}
	raw := strings.Split(src, "\n")
	lines := make([]string, 0, len(raw))
	for _, l := range raw {
		if strings.TrimSpace(l) == "" {
			continue
		}
		lines = append(lines, l)
	}
	return lines
}
