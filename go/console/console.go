package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/pkg/errors"
)

// Console is the device behind fd 0 and fd 1. Each Putbuf lands on the
// output in one piece, so lines from concurrent processes never interleave.
type Console struct {
	in     *bufio.Reader
	inCh   chan byte
	inErr  error
	inMu   sync.Mutex
	inOnce sync.Once

	outMu sync.Mutex
	out   io.Writer
}

func New(in io.Reader, out io.Writer) *Console {
	c := &Console{out: out, inCh: make(chan byte)}
	if in != nil {
		c.in = bufio.NewReader(in)
	}
	if c.out == nil {
		c.out = io.Discard
	}
	return c
}

// pump moves input bytes to inCh one at a time. A byte is only consumed
// from the reader once a Getc is waiting for it.
func (c *Console) pump() {
	for {
		b, err := c.in.ReadByte()
		if err != nil {
			c.inMu.Lock()
			c.inErr = err
			c.inMu.Unlock()
			close(c.inCh)
			return
		}
		c.inCh <- b
	}
}

// Getc blocks for the next input byte. It returns io.EOF once input is
// exhausted, and ctx.Err() if ctx is done first.
func (c *Console) Getc(ctx context.Context) (byte, error) {
	if c.in == nil {
		return 0, io.EOF
	}
	c.inOnce.Do(func() { go c.pump() })
	select {
	case b, ok := <-c.inCh:
		if !ok {
			c.inMu.Lock()
			defer c.inMu.Unlock()
			return 0, c.inErr
		}
		return b, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func (c *Console) Putbuf(p []byte) (int, error) {
	c.outMu.Lock()
	defer c.outMu.Unlock()
	n, err := c.out.Write(p)
	return n, errors.Wrap(err, "console write failed")
}

func (c *Console) Write(p []byte) (int, error) {
	return c.Putbuf(p)
}

func (c *Console) Printf(format string, args ...interface{}) {
	c.Putbuf([]byte(fmt.Sprintf(format, args...)))
}
