package transport

import (
	"net"
	"net/textproto"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeServer is a minimal in-process SMTP relay.
type fakeServer struct {
	t         *testing.T
	ln        net.Listener
	advertTLS bool
	// closeAfterData hangs up on the nth connection (1-based) after its
	// first message.
	closeAfterData int
	rejectRcpt     map[string]bool

	mu       sync.Mutex
	conns    int
	helos    []string
	auths    []string
	messages []string
	commands []string
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)
	s := &fakeServer{t: t, ln: ln, rejectRcpt: map[string]bool{}}
	t.Cleanup(func() { _ = ln.Close() })
	go s.serve()
	return s
}

func (s *fakeServer) port() int {
	return s.ln.Addr().(*net.TCPAddr).Port
}

func (s *fakeServer) serve() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		s.mu.Lock()
		s.conns++
		n := s.conns
		s.mu.Unlock()
		go s.handle(conn, n)
	}
}

func (s *fakeServer) record(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn()
}

func (s *fakeServer) handle(conn net.Conn, n int) {
	defer conn.Close()
	tp := textproto.NewConn(conn)
	_ = tp.PrintfLine("220 fake ESMTP ready")
	for {
		line, err := tp.ReadLine()
		if err != nil {
			return
		}
		verb, arg, _ := strings.Cut(line, " ")
		verb = strings.ToUpper(verb)
		s.record(func() { s.commands = append(s.commands, verb) })
		switch verb {
		case "EHLO", "HELO":
			s.record(func() { s.helos = append(s.helos, arg) })
			_ = tp.PrintfLine("250-fake greets %s", arg)
			if s.advertTLS {
				_ = tp.PrintfLine("250-STARTTLS")
			}
			_ = tp.PrintfLine("250 AUTH PLAIN")
		case "AUTH":
			s.record(func() { s.auths = append(s.auths, arg) })
			_ = tp.PrintfLine("235 2.7.0 authenticated")
		case "MAIL":
			_ = tp.PrintfLine("250 2.1.0 ok")
		case "RCPT":
			addr := strings.Trim(strings.TrimPrefix(strings.ToUpper(arg), "TO:"), "<>")
			if s.rejectRcpt[strings.ToLower(addr)] {
				_ = tp.PrintfLine("550 5.1.1 mailbox unavailable")
				continue
			}
			_ = tp.PrintfLine("250 2.1.5 ok")
		case "DATA":
			_ = tp.PrintfLine("354 go ahead")
			body, err := tp.ReadDotBytes()
			if err != nil {
				return
			}
			s.record(func() { s.messages = append(s.messages, string(body)) })
			_ = tp.PrintfLine("250 2.0.0 queued as %d", len(body))
			if s.closeAfterData == n {
				return
			}
		case "RSET", "NOOP":
			_ = tp.PrintfLine("250 2.0.0 ok")
		case "QUIT":
			_ = tp.PrintfLine("221 2.0.0 bye")
			return
		default:
			_ = tp.PrintfLine("502 5.5.2 unknown command")
		}
	}
}

func (s *fakeServer) snapshot() (conns int, helos, auths, messages, commands []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conns,
		append([]string(nil), s.helos...),
		append([]string(nil), s.auths...),
		append([]string(nil), s.messages...),
		append([]string(nil), s.commands...)
}
