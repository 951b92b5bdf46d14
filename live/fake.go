package live

import (
	"context"
	"sync"
	"time"

	"pulse/codec"
)

// FakeDialer hands out in-memory connections. It is used by tests and by
// the headless test mode.
type FakeDialer struct {
	DialErr   error
	DialDelay time.Duration
	// Replies are queued on every new connection right after it opens.
	Replies []Message
	// Responder, if set, is called after each successful Send with the
	// number of chunks sent so far; the returned messages are queued.
	Responder func(sent int) []Message

	mu    sync.Mutex
	conns []*FakeConn
	dials int
}

func (d *FakeDialer) Name() string { return "fake" }

func (d *FakeDialer) Dial(ctx context.Context, credential string, cfg Config) (Conn, error) {
	d.mu.Lock()
	d.dials++
	d.mu.Unlock()

	if d.DialDelay > 0 {
		select {
		case <-time.After(d.DialDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if d.DialErr != nil {
		return nil, d.DialErr
	}

	c := NewFakeConn()
	c.Credential = credential
	c.Config = cfg.withDefaults()
	c.responder = d.Responder
	for _, m := range d.Replies {
		c.Push(m)
	}
	d.mu.Lock()
	d.conns = append(d.conns, c)
	d.mu.Unlock()
	return c, nil
}

func (d *FakeDialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

// Last returns the most recently opened connection, or nil.
func (d *FakeDialer) Last() *FakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.conns) == 0 {
		return nil
	}
	return d.conns[len(d.conns)-1]
}

type FakeConn struct {
	Credential string
	Config     Config

	responder func(sent int) []Message

	mu      sync.Mutex
	queue   []Message
	term    error
	closed  bool
	sent    []codec.Chunk
	sendErr error
	notify  chan struct{}
}

func NewFakeConn() *FakeConn {
	return &FakeConn{notify: make(chan struct{}, 1)}
}

func (c *FakeConn) wake() {
	select {
	case c.notify <- struct{}{}:
	default:
	}
}

// Push queues an inbound message for Recv.
func (c *FakeConn) Push(m Message) {
	c.mu.Lock()
	c.queue = append(c.queue, m)
	c.mu.Unlock()
	c.wake()
}

// Fail makes Recv return err once the queued messages are drained.
func (c *FakeConn) Fail(err error) {
	c.mu.Lock()
	if c.term == nil {
		c.term = err
	}
	c.mu.Unlock()
	c.wake()
}

// FailSends makes every later Send return err.
func (c *FakeConn) FailSends(err error) {
	c.mu.Lock()
	c.sendErr = err
	c.mu.Unlock()
}

// CloseRemote simulates the server ending the session normally.
func (c *FakeConn) CloseRemote() { c.Fail(ErrClosed) }

func (c *FakeConn) Send(chunk codec.Chunk) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.sendErr != nil {
		err := c.sendErr
		c.mu.Unlock()
		return err
	}
	c.sent = append(c.sent, chunk)
	n := len(c.sent)
	respond := c.responder
	c.mu.Unlock()

	if respond != nil {
		for _, m := range respond(n) {
			c.Push(m)
		}
	}
	return nil
}

func (c *FakeConn) Recv() (Message, error) {
	for {
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return Message{}, ErrClosed
		}
		if len(c.queue) > 0 {
			m := c.queue[0]
			c.queue = c.queue[1:]
			c.mu.Unlock()
			return m, nil
		}
		if c.term != nil {
			err := c.term
			c.mu.Unlock()
			return Message{}, err
		}
		c.mu.Unlock()
		<-c.notify
	}
}

func (c *FakeConn) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.wake()
	return nil
}

func (c *FakeConn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *FakeConn) Sent() []codec.Chunk {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]codec.Chunk, len(c.sent))
	copy(out, c.sent)
	return out
}

// ScriptedTurn returns the messages of one complete exchange: the user's
// words, a burst of model audio and the model's reply, then turn complete.
func ScriptedTurn(user, model string, audio []float32) []Message {
	chunk := codec.EncodeRate(audio, codec.OutputSampleRate)
	return []Message{
		{InputTranscript: user},
		{Audio: chunk.Data, AudioMIME: chunk.MIMEType, OutputTranscript: model},
		{TurnComplete: true},
	}
}
