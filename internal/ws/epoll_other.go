//go:build !linux

package ws

import (
	"bytes"
	"errors"
	"io"
	"net"
	"sync"
	"syscall"
)

// Epoll provides a goroutine-per-connection fallback for non-Linux platforms
// so the server can run on macOS or Windows during development.
//
// A monitor goroutine blocks on a one-byte read to learn that data arrived.
// The byte is kept and replayed through Reader, and the monitor does not read
// again until the worker calls Resume, so frames are never split.
type Epoll struct {
	mu      sync.Mutex
	conns   map[net.Conn]*watch
	readyCh chan net.Conn
	done    chan struct{}
	once    sync.Once
}

type watch struct {
	pending []byte
	resume  chan struct{}
	stop    chan struct{}
}

// NewEpoll creates a fallback instance.
func NewEpoll() (*Epoll, error) {
	return &Epoll{
		conns:   make(map[net.Conn]*watch),
		readyCh: make(chan net.Conn, 128),
		done:    make(chan struct{}),
	}, nil
}

// Add starts watching conn.
func (e *Epoll) Add(conn net.Conn) error {
	w := &watch{
		resume: make(chan struct{}, 1),
		stop:   make(chan struct{}),
	}
	e.mu.Lock()
	e.conns[conn] = w
	e.mu.Unlock()

	go e.monitor(conn, w)
	return nil
}

func (e *Epoll) monitor(conn net.Conn, w *watch) {
	buf := make([]byte, 1)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			e.mu.Lock()
			w.pending = append(w.pending, buf[0])
			e.mu.Unlock()
		}

		select {
		case e.readyCh <- conn:
		case <-w.stop:
			return
		case <-e.done:
			return
		}
		// A failed read is reported once; the worker's own read then fails too
		// and removes the connection.
		if err != nil {
			return
		}

		select {
		case <-w.resume:
		case <-w.stop:
			return
		case <-e.done:
			return
		}
	}
}

// Reader returns conn's stream with any byte consumed by the monitor put
// back in front.
func (e *Epoll) Reader(conn net.Conn) io.Reader {
	e.mu.Lock()
	defer e.mu.Unlock()

	w, ok := e.conns[conn]
	if !ok || len(w.pending) == 0 {
		return conn
	}
	pending := w.pending
	w.pending = nil
	return io.MultiReader(bytes.NewReader(pending), conn)
}

// Resume lets the monitor wait for the next frame.
func (e *Epoll) Resume(conn net.Conn) {
	e.mu.Lock()
	w, ok := e.conns[conn]
	e.mu.Unlock()
	if !ok {
		return
	}
	select {
	case w.resume <- struct{}{}:
	default:
	}
}

// Remove stops watching conn.
func (e *Epoll) Remove(conn net.Conn) error {
	e.mu.Lock()
	w, ok := e.conns[conn]
	delete(e.conns, conn)
	e.mu.Unlock()
	if ok {
		close(w.stop)
	}
	return nil
}

// Wait blocks until at least one connection is ready, then drains whatever
// else is ready without blocking.
func (e *Epoll) Wait() ([]net.Conn, error) {
	var first net.Conn
	select {
	case first = <-e.readyCh:
	case <-e.done:
		return nil, net.ErrClosed
	}

	conns := []net.Conn{first}
	for {
		select {
		case conn := <-e.readyCh:
			conns = append(conns, conn)
		default:
			return conns, nil
		}
	}
}

// Close shuts the fallback down.
func (e *Epoll) Close() error {
	e.once.Do(func() { close(e.done) })
	e.mu.Lock()
	e.conns = make(map[net.Conn]*watch)
	e.mu.Unlock()
	return nil
}

// socketFD is not needed by the fallback.
func socketFD(net.Conn) int {
	return -1
}

func isEINTR(err error) bool {
	return errors.Is(err, syscall.EINTR)
}
