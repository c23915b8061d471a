package bridge

import (
	"io"
	"sync"
	"time"

	"github.com/c360/gqlbridge/protocol"
)

// fakeConn is an in-memory Conn for session and bridge tests. Inbound
// messages are fed through a channel; outbound writes and control frames are
// captured for assertions.
type fakeConn struct {
	subprotocol string
	inbound     chan []byte

	mu        sync.Mutex
	writes    [][]byte
	controls  []capturedControl
	closed    bool
	closeOnce sync.Once
	done      chan struct{}
	writeErr  error
}

type capturedControl struct {
	messageType int
	data        []byte
}

func newFakeConn(subprotocol string) *fakeConn {
	return &fakeConn{
		subprotocol: subprotocol,
		inbound:     make(chan []byte, 32),
		done:        make(chan struct{}),
	}
}

// deliver queues one raw message for ReadMessage.
func (c *fakeConn) deliver(data []byte) {
	c.inbound <- data
}

// deliverFrame queues one encoded frame for ReadMessage.
func (c *fakeConn) deliverFrame(f protocol.Frame) {
	data, err := f.Encode()
	if err != nil {
		panic(err)
	}
	c.deliver(data)
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case data := <-c.inbound:
		return 1, data, nil
	case <-c.done:
		return 0, nil, io.ErrClosedPipe
	}
}

func (c *fakeConn) WriteMessage(_ int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeErr != nil {
		return c.writeErr
	}
	if c.closed {
		return io.ErrClosedPipe
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	c.writes = append(c.writes, buf)
	return nil
}

func (c *fakeConn) WriteControl(messageType int, data []byte, _ time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	buf := make([]byte, len(data))
	copy(buf, data)
	c.controls = append(c.controls, capturedControl{messageType: messageType, data: buf})
	return nil
}

func (c *fakeConn) SetWriteDeadline(_ time.Time) error { return nil }

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		close(c.done)
	})
	return nil
}

func (c *fakeConn) Subprotocol() string { return c.subprotocol }

// writtenFrames decodes every captured write as a protocol frame.
func (c *fakeConn) writtenFrames() []protocol.Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	frames := make([]protocol.Frame, 0, len(c.writes))
	for _, data := range c.writes {
		f, err := protocol.Parse(data)
		if err != nil {
			panic(err)
		}
		frames = append(frames, f)
	}
	return frames
}

func (c *fakeConn) controlCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.controls)
}

func (c *fakeConn) setWriteErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writeErr = err
}

var _ Conn = (*fakeConn)(nil)
