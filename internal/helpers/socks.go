package helpers

import (
	"bufio"
	"encoding/binary"
	"io"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/require"
)

// SOCKSRelay is a minimal SOCKS5 server standing in for the local onion proxy.
// It accepts no-auth and username/password greetings, supports CONNECT only,
// and tunnels bytes to the requested target.
type SOCKSRelay struct {
	Addr string

	Connects atomic.Int64

	ln   net.Listener
	done chan struct{}
	once sync.Once

	mu        sync.Mutex
	usernames []string
	targets   []string
}

// NewSOCKSRelay starts a relay on a loopback port; it is closed with the test.
func NewSOCKSRelay(t *testing.T) *SOCKSRelay {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err, "listen socks relay")
	s := &SOCKSRelay{Addr: ln.Addr().String(), ln: ln, done: make(chan struct{})}
	go s.acceptLoop()
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// Close stops the listener.
func (s *SOCKSRelay) Close() error {
	s.once.Do(func() {
		close(s.done)
		_ = s.ln.Close()
	})
	return nil
}

// Usernames returns the usernames sent in username/password greetings.
func (s *SOCKSRelay) Usernames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.usernames...)
}

// Targets returns the host:port of every CONNECT, in order.
func (s *SOCKSRelay) Targets() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.targets...)
}

func (s *SOCKSRelay) acceptLoop() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			select {
			case <-s.done:
				return
			default:
			}
			log.Warn().Err(err).Msg("socks relay accept error")
			time.Sleep(50 * time.Millisecond)
			continue
		}
		go s.handleConn(conn)
	}
}

func (s *SOCKSRelay) handleConn(conn net.Conn) {
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(30 * time.Second))

	br := bufio.NewReader(conn)
	bw := bufio.NewWriter(conn)

	// greeting
	ver, err := br.ReadByte()
	if err != nil || ver != 0x05 {
		return
	}
	nmeth, err := br.ReadByte()
	if err != nil {
		return
	}
	methods := make([]byte, int(nmeth))
	if _, err := io.ReadFull(br, methods); err != nil {
		return
	}
	method := byte(0xFF)
	for _, m := range methods {
		if m == 0x02 {
			method = 0x02
			break
		}
		if m == 0x00 {
			method = 0x00
		}
	}
	if _, err := bw.Write([]byte{0x05, method}); err != nil || bw.Flush() != nil {
		return
	}
	if method == 0xFF {
		return
	}
	if method == 0x02 && !s.readAuth(br, bw) {
		return
	}

	// request
	hdr := make([]byte, 4)
	if _, err := io.ReadFull(br, hdr); err != nil || hdr[0] != 0x05 {
		return
	}
	var host string
	switch hdr[3] {
	case 0x01:
		addr := make([]byte, 4)
		if _, err := io.ReadFull(br, addr); err != nil {
			return
		}
		host = net.IP(addr).String()
	case 0x03:
		l, err := br.ReadByte()
		if err != nil {
			return
		}
		name := make([]byte, int(l))
		if _, err := io.ReadFull(br, name); err != nil {
			return
		}
		host = string(name)
	case 0x04:
		addr := make([]byte, 16)
		if _, err := io.ReadFull(br, addr); err != nil {
			return
		}
		host = net.IP(addr).String()
	default:
		return
	}
	var port uint16
	if err := binary.Read(br, binary.BigEndian, &port); err != nil {
		return
	}
	if hdr[1] != 0x01 {
		_ = writeReply(bw, 0x07) // command not supported
		return
	}

	target := net.JoinHostPort(host, strconv.Itoa(int(port)))
	s.mu.Lock()
	s.targets = append(s.targets, target)
	s.mu.Unlock()
	s.Connects.Add(1)

	up, err := net.DialTimeout("tcp", target, 5*time.Second)
	if err != nil {
		_ = writeReply(bw, 0x05) // connection refused
		return
	}
	defer up.Close()
	if err := writeReply(bw, 0x00); err != nil {
		return
	}
	go func() {
		_, _ = io.Copy(up, br)
		_ = up.Close()
	}()
	_, _ = io.Copy(conn, up)
}

// readAuth handles the RFC 1929 subnegotiation; every credential is accepted.
func (s *SOCKSRelay) readAuth(br *bufio.Reader, bw *bufio.Writer) bool {
	ver, err := br.ReadByte()
	if err != nil || ver != 0x01 {
		return false
	}
	ulen, err := br.ReadByte()
	if err != nil {
		return false
	}
	user := make([]byte, int(ulen))
	if _, err := io.ReadFull(br, user); err != nil {
		return false
	}
	plen, err := br.ReadByte()
	if err != nil {
		return false
	}
	if _, err := io.ReadFull(br, make([]byte, int(plen))); err != nil {
		return false
	}
	s.mu.Lock()
	s.usernames = append(s.usernames, string(user))
	s.mu.Unlock()
	if _, err := bw.Write([]byte{0x01, 0x00}); err != nil {
		return false
	}
	return bw.Flush() == nil
}

func writeReply(bw *bufio.Writer, rep byte) error {
	if _, err := bw.Write([]byte{0x05, rep, 0x00, 0x01, 0, 0, 0, 0, 0, 0}); err != nil {
		return err
	}
	return bw.Flush()
}
