package hc06

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// pending is the single outstanding request. result is buffered so the
// resolver never blocks on a caller that already gave up.
type pending struct {
	id      uuid.UUID
	command string
	created time.Time
	result  chan reply
}

type reply struct {
	text string
	err  error
}

// correlator pairs framed responses with the one request awaiting them.
// The device echoes nothing that identifies a command, so correlation is
// purely positional.
type correlator struct {
	mu  sync.Mutex
	cur *pending
	log *slog.Logger
}

func newCorrelator(logger *slog.Logger) *correlator {
	return &correlator{log: logger}
}

func (c *correlator) register(command string) (*pending, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cur != nil {
		return nil, ErrCommandPending
	}
	c.cur = &pending{
		id:      uuid.New(),
		command: command,
		created: time.Now(),
		result:  make(chan reply, 1),
	}
	return c.cur, nil
}

// resolve hands a frame to the pending request. Frames with no request
// waiting are logged and dropped.
func (c *correlator) resolve(text string) {
	c.mu.Lock()
	p := c.cur
	c.cur = nil
	c.mu.Unlock()

	if p == nil {
		c.log.Warn("Dropping unsolicited response", "response", text)
		return
	}
	c.log.Debug("Received response",
		"id", p.id,
		"cmd", p.command,
		"response", text,
		"elapsed", time.Since(p.created))
	p.result <- reply{text: text}
}

// reject fails the pending request, if any, with err.
func (c *correlator) reject(err error) {
	c.mu.Lock()
	p := c.cur
	c.cur = nil
	c.mu.Unlock()

	if p != nil {
		p.result <- reply{err: err}
	}
}

// abandon clears p if it is still the pending request. Used when the
// caller stops waiting.
func (c *correlator) abandon(p *pending) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cur == p {
		c.cur = nil
	}
}

func (c *correlator) busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cur != nil
}
