//go:build linux

package ws

import (
	"errors"
	"io"
	"net"
	"sync"
	"syscall"

	"golang.org/x/sys/unix"
)

// waitTimeoutMs bounds each epoll_wait so the event loop notices shutdown.
const waitTimeoutMs = 500

// Epoll wraps Linux epoll syscalls for WebSocket I/O multiplexing. Sockets are
// registered with the kernel and the event loop is told which ones have data,
// so idle connections cost no goroutine.
type Epoll struct {
	fd          int               // epoll file descriptor
	connections map[int]net.Conn  // fd -> net.Conn mapping
	mu          sync.RWMutex      // protects connections map
	events      []unix.EpollEvent // reusable event buffer for Wait
}

// NewEpoll creates a new epoll instance using epoll_create1.
func NewEpoll() (*Epoll, error) {
	fd, err := unix.EpollCreate1(0)
	if err != nil {
		return nil, err
	}
	return &Epoll{
		fd:          fd,
		connections: make(map[int]net.Conn),
		events:      make([]unix.EpollEvent, 128),
	}, nil
}

// readEvents is the interest set for every connection. EPOLLONESHOT disarms
// the fd after one report; Resume arms it again once the worker is done, so a
// connection busy in a handler is not reported over and over.
const readEvents = unix.EPOLLIN | unix.EPOLLHUP | unix.EPOLLONESHOT

// Add registers a network connection with epoll for read readiness
// notifications. It extracts the underlying file descriptor from the
// connection and adds it to the epoll interest list.
func (e *Epoll) Add(conn net.Conn) error {
	fd := socketFD(conn)
	if err := unix.EpollCtl(e.fd, syscall.EPOLL_CTL_ADD, fd, &unix.EpollEvent{
		Events: readEvents,
		Fd:     int32(fd),
	}); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.connections == nil {
		_ = unix.EpollCtl(e.fd, syscall.EPOLL_CTL_DEL, fd, nil)
		return net.ErrClosed
	}
	e.connections[fd] = conn
	return nil
}

// Remove unregisters a network connection from epoll and always drops it
// from the connection map. A connection whose socket is already closed no
// longer reports its fd; it is found by identity instead, and the syscall is
// skipped because the kernel has dropped the closed fd itself and the number
// may already belong to a new socket.
func (e *Epoll) Remove(conn net.Conn) error {
	fd := socketFD(conn)

	e.mu.Lock()
	if fd < 0 {
		for k, c := range e.connections {
			if c == conn {
				delete(e.connections, k)
				break
			}
		}
		e.mu.Unlock()
		return nil
	}
	if c, ok := e.connections[fd]; ok && c == conn {
		delete(e.connections, fd)
	}
	e.mu.Unlock()

	return unix.EpollCtl(e.fd, syscall.EPOLL_CTL_DEL, fd, nil)
}

// Wait blocks until one or more registered connections are ready for reading
// or the wait times out, in which case it returns an empty slice. Connections
// removed between epoll_wait returning and the lookup are skipped.
func (e *Epoll) Wait() ([]net.Conn, error) {
	n, err := unix.EpollWait(e.fd, e.events, waitTimeoutMs)
	if err != nil {
		return nil, err
	}

	e.mu.RLock()
	conns := make([]net.Conn, 0, n)
	for i := 0; i < n; i++ {
		conn, ok := e.connections[int(e.events[i].Fd)]
		if ok {
			conns = append(conns, conn)
		}
	}
	e.mu.RUnlock()
	return conns, nil
}

// Reader returns the stream to read conn's next frame from. With kernel
// readiness nothing is consumed ahead of time, so it is conn itself.
func (e *Epoll) Reader(conn net.Conn) io.Reader {
	return conn
}

// Resume re-arms conn after a worker finished with it. Connections that were
// removed in the meantime are left alone.
func (e *Epoll) Resume(conn net.Conn) {
	fd := socketFD(conn)
	if fd < 0 {
		return
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	if c, ok := e.connections[fd]; !ok || c != conn {
		return
	}
	_ = unix.EpollCtl(e.fd, syscall.EPOLL_CTL_MOD, fd, &unix.EpollEvent{
		Events: readEvents,
		Fd:     int32(fd),
	})
}

// Close closes the epoll file descriptor.
func (e *Epoll) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.connections = nil
	return unix.Close(e.fd)
}

// socketFD extracts the file descriptor from a net.Conn using the
// SyscallConn interface. This avoids duplicating the file descriptor
// (which File() does), keeping the original fd valid for epoll registration.
func socketFD(conn net.Conn) int {
	sc, ok := conn.(syscall.Conn)
	if !ok {
		return -1
	}

	raw, err := sc.SyscallConn()
	if err != nil {
		return -1
	}

	fd := -1
	_ = raw.Control(func(sfd uintptr) {
		fd = int(sfd)
	})
	return fd
}

func isEINTR(err error) bool {
	return errors.Is(err, unix.EINTR)
}
