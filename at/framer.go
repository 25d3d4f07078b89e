package at

import (
	"strings"
	"sync"
	"time"
	"unicode/utf8"
)

// DefaultQuietPeriod is the inactivity window that ends a response frame.
// The HC-06 may deliver one logical reply across several reads separated by
// a few tens of milliseconds, and it does not terminate replies reliably.
const DefaultQuietPeriod = 100 * time.Millisecond

// Framer turns a chunked, terminator-less byte stream into response frames.
// Every Feed re-arms a quiet timer; when the timer elapses with no new data,
// the accumulated text is cleaned and handed to the emit callback as one
// frame. Whitespace-only frames are dropped.
//
// Emit runs on the timer goroutine and must not call back into the Framer.
type Framer struct {
	mu    sync.Mutex
	quiet time.Duration
	emit  func(frame string)
	buf   strings.Builder
	// partial holds a multibyte rune cut off at the end of the last chunk.
	partial []byte
	timer   *time.Timer
	// gen invalidates timers that fired after a later Feed or Reset.
	gen uint64
}

// NewFramer returns a Framer that emits frames after quiet of inactivity.
// A non-positive quiet selects DefaultQuietPeriod.
func NewFramer(quiet time.Duration, emit func(frame string)) *Framer {
	if quiet <= 0 {
		quiet = DefaultQuietPeriod
	}
	return &Framer{quiet: quiet, emit: emit}
}

// Feed appends a chunk read from the device and restarts the quiet timer.
func (f *Framer) Feed(p []byte) {
	if len(p) == 0 {
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	data := append(f.partial, p...)
	f.partial = nil
	if cut := incompleteTail(data); cut < len(data) {
		f.partial = append([]byte(nil), data[cut:]...)
		data = data[:cut]
	}
	f.buf.WriteString(strings.ToValidUTF8(string(data), "\uFFFD"))
	f.gen++
	gen := f.gen
	if f.timer != nil {
		f.timer.Stop()
	}
	f.timer = time.AfterFunc(f.quiet, func() { f.flush(gen) })
}

// Reset discards buffered text and disarms the timer.
func (f *Framer) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.gen++
	if f.timer != nil {
		f.timer.Stop()
		f.timer = nil
	}
	f.buf.Reset()
	f.partial = nil
}

// Pending reports whether text is buffered awaiting the quiet period.
func (f *Framer) Pending() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.buf.Len() > 0 || len(f.partial) > 0
}

func (f *Framer) flush(gen uint64) {
	f.mu.Lock()
	if gen != f.gen {
		f.mu.Unlock()
		return
	}
	if len(f.partial) > 0 {
		// The rune never completed.
		f.buf.WriteString(strings.ToValidUTF8(string(f.partial), "\uFFFD"))
		f.partial = nil
	}
	frame := Clean(f.buf.String())
	f.buf.Reset()
	f.timer = nil
	f.mu.Unlock()

	if frame != "" && f.emit != nil {
		f.emit(frame)
	}
}

// incompleteTail returns the index where a truncated multibyte sequence
// starts at the end of p, or len(p) if p ends on a rune boundary.
func incompleteTail(p []byte) int {
	for i := len(p) - 1; i >= 0 && i >= len(p)-utf8.UTFMax; i-- {
		if !utf8.RuneStart(p[i]) {
			continue
		}
		if utf8.FullRune(p[i:]) {
			return len(p)
		}
		return i
	}
	return len(p)
}

// Clean normalizes a raw frame: each line is trimmed of surrounding
// whitespace and the lines are concatenated. Firmware revisions differ in
// whether they add CR/LF, so "OK\r\nsetname\r\n" and "OKsetname" compare
// equal after cleaning.
func Clean(raw string) string {
	if !strings.ContainsAny(raw, "\r\n") {
		return strings.TrimSpace(raw)
	}
	var b strings.Builder
	for _, line := range strings.FieldsFunc(raw, func(r rune) bool { return r == '\r' || r == '\n' }) {
		b.WriteString(strings.TrimSpace(line))
	}
	return b.String()
}
