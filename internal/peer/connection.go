// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PeerChat Contributors

// Package peer tracks the live connections of a room and moves frames over
// them.
package peer

import (
	"bufio"
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/peerchat/peerchat/internal/core"
	"github.com/peerchat/peerchat/internal/overlay"
)

// State is the lifecycle stage of a Connection.
type State int32

// Connection states. Transitions only move forward.
const (
	StateConnecting State = iota
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Defaults applied to zero Options fields.
const (
	DefaultSendQueue     = 64
	DefaultWriteTimeout  = 10 * time.Second
	DefaultMaxFrameBytes = 1 << 20
)

// FrameHandler receives each inbound frame, without its trailing newline,
// on the connection's reader goroutine.
type FrameHandler func(c *Connection, frame []byte)

// CloseHandler is called exactly once when a connection closes. err is nil
// for a local Close.
type CloseHandler func(c *Connection, err error)

// Options configures a Connection.
type Options struct {
	SendQueue     int
	WriteTimeout  time.Duration
	MaxFrameBytes int
	Logger        *slog.Logger
	OnFrame       FrameHandler
	OnClose       CloseHandler
}

// Connection is one live stream to a remote peer in one room. Writes go
// through a bounded queue drained by a dedicated writer goroutine.
type Connection struct {
	id     ulid.ULID
	room   string
	conn   overlay.Conn
	opts   Options
	log    *slog.Logger
	state  atomic.Int32
	out    chan []byte
	done   chan struct{}
	wg     sync.WaitGroup
	closed sync.Once

	remoteUsers atomic.Int64

	mu           sync.Mutex
	historyTimer *time.Timer
}

// NewConnection wraps conn in the Connecting state. Call Start to begin I/O.
func NewConnection(conn overlay.Conn, room string, opts Options) *Connection {
	if opts.SendQueue <= 0 {
		opts.SendQueue = DefaultSendQueue
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = DefaultWriteTimeout
	}
	if opts.MaxFrameBytes <= 0 {
		opts.MaxFrameBytes = DefaultMaxFrameBytes
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	id := core.NewULID()
	return &Connection{
		id:   id,
		room: room,
		conn: conn,
		opts: opts,
		log:  logger.With("conn_id", id.String(), "room", room, "peer", conn.RemotePeer()),
		out:  make(chan []byte, opts.SendQueue),
		done: make(chan struct{}),
	}
}

// ID returns the connection's unique ID.
func (c *Connection) ID() ulid.ULID { return c.id }

// Room returns the room this connection belongs to.
func (c *Connection) Room() string { return c.room }

// Remote returns the remote peer identifier.
func (c *Connection) Remote() string { return c.conn.RemotePeer() }

// State returns the current lifecycle state.
func (c *Connection) State() State { return State(c.state.Load()) }

// Done is closed once the connection is closed.
func (c *Connection) Done() <-chan struct{} { return c.done }

// RemoteUsers returns the user count last announced by the peer.
func (c *Connection) RemoteUsers() int { return int(c.remoteUsers.Load()) }

// SetRemoteUsers records a room_info announcement from the peer.
func (c *Connection) SetRemoteUsers(n int) { c.remoteUsers.Store(int64(n)) }

// Start moves the connection to Open and launches its reader and writer.
// Starting twice, or after Close, does nothing.
func (c *Connection) Start() {
	if !c.state.CompareAndSwap(int32(StateConnecting), int32(StateOpen)) {
		return
	}
	c.wg.Add(2)
	go c.readLoop()
	go c.writeLoop()
	c.log.Debug("peer connection open")
}

// Send queues one frame. It never blocks: a full queue fails the peer.
func (c *Connection) Send(frame []byte) error {
	if c.State() != StateOpen {
		return c.transportErr().Errorf("connection not open")
	}
	select {
	case c.out <- frame:
		return nil
	case <-c.done:
		return c.transportErr().Errorf("connection closed")
	default:
		err := c.transportErr().With("queue", c.opts.SendQueue).Errorf("send queue full")
		c.fail(err)
		return err
	}
}

// SendWait queues one frame, waiting for queue space until ctx is done.
// Bulk transfers use it so a long history does not overflow the queue.
func (c *Connection) SendWait(ctx context.Context, frame []byte) error {
	if c.State() != StateOpen {
		return c.transportErr().Errorf("connection not open")
	}
	select {
	case c.out <- frame:
		return nil
	case <-c.done:
		return c.transportErr().Errorf("connection closed")
	case <-ctx.Done():
		return c.transportErr().Wrap(ctx.Err())
	}
}

// ExpectHistory arms a deadline for the peer's final history chunk. The
// connection is failed if HistoryComplete is not called in time. Calling it
// again restarts the deadline.
func (c *Connection) ExpectHistory(timeout time.Duration) {
	if timeout <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.historyTimer != nil {
		c.historyTimer.Stop()
	}
	c.historyTimer = time.AfterFunc(timeout, func() {
		c.fail(c.transportErr().With("timeout", timeout.String()).Errorf("history request timed out"))
	})
}

// HistoryComplete disarms the history deadline.
func (c *Connection) HistoryComplete() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.historyTimer != nil {
		c.historyTimer.Stop()
		c.historyTimer = nil
	}
}

// Close closes the connection. It is safe to call more than once.
func (c *Connection) Close() error {
	c.shutdown(nil)
	return nil
}

// Wait blocks until the reader and writer goroutines have exited.
func (c *Connection) Wait() {
	c.wg.Wait()
}

func (c *Connection) fail(err error) {
	c.shutdown(err)
}

func (c *Connection) shutdown(err error) {
	c.closed.Do(func() {
		c.state.Store(int32(StateClosed))
		close(c.done)
		c.HistoryComplete()
		_ = c.conn.Close()
		if err != nil {
			c.log.Debug("peer connection failed", "error", err)
		} else {
			c.log.Debug("peer connection closed")
		}
		if c.opts.OnClose != nil {
			c.opts.OnClose(c, err)
		}
	})
}

func (c *Connection) transportErr() oops.OopsErrorBuilder {
	return oops.Code(core.CodeTransport).
		With("room", c.room).
		With("peer", c.conn.RemotePeer()).
		With("conn_id", c.id.String())
}

func (c *Connection) readLoop() {
	defer c.wg.Done()

	scanner := bufio.NewScanner(c.conn)
	scanner.Buffer(make([]byte, 0, 4096), c.opts.MaxFrameBytes)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		frame := make([]byte, len(line))
		copy(frame, line)
		if c.opts.OnFrame != nil {
			c.opts.OnFrame(c, frame)
		}
		if c.State() == StateClosed {
			return
		}
	}

	if err := scanner.Err(); err != nil {
		c.fail(c.transportErr().Wrapf(err, "read"))
		return
	}
	// EOF: the remote end hung up.
	c.fail(nil)
}

func (c *Connection) writeLoop() {
	defer c.wg.Done()

	for {
		select {
		case <-c.done:
			return
		case frame := <-c.out:
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout)); err != nil {
				c.fail(c.transportErr().Wrapf(err, "set write deadline"))
				return
			}
			if _, err := c.conn.Write(frame); err != nil {
				c.fail(c.transportErr().Wrapf(err, "write"))
				return
			}
		}
	}
}
