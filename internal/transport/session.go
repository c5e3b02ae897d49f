package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"net/textproto"
	"os"
	"strconv"
	"time"

	"github.com/wneessen/go-mail"
	"go.uber.org/zap"
)

// Dialer opens network connections.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Resolver looks up host addresses.
type Resolver interface {
	LookupIP(ctx context.Context, network, host string) ([]net.IP, error)
}

// Option customizes a Session.
type Option func(*Session)

// WithDialer overrides the network dialer.
func WithDialer(d Dialer) Option {
	return func(s *Session) {
		s.dialer = d
	}
}

// WithResolver overrides the resolver used in IPv4-only mode.
func WithResolver(r Resolver) Option {
	return func(s *Session) {
		s.resolver = r
	}
}

// WithClock overrides the time source used for idle tracking.
func WithClock(now func() time.Time) Option {
	return func(s *Session) {
		s.now = now
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger.Named("smtp")
		}
	}
}

// Session is a single reusable SMTP connection. It is not safe for
// concurrent use.
type Session struct {
	cfg      Config
	dialer   Dialer
	resolver Resolver
	now      func() time.Time
	logger   *zap.Logger

	conn     net.Conn
	client   *smtp.Client
	lastUsed time.Time
	dials    int
}

// Open validates cfg, connects and greets the relay.
func Open(ctx context.Context, cfg Config, opts ...Option) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.WithDefaults()
	s := &Session{
		cfg:      cfg,
		dialer:   &net.Dialer{Timeout: cfg.DialTimeout},
		resolver: net.DefaultResolver,
		now:      time.Now,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.connect(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Dials returns how many connections the session has opened.
func (s *Session) Dials() int {
	return s.dials
}

// Send delivers msg as one SMTP transaction. A failed transaction leaves
// the session usable for the next message when the relay allows it. When a
// reused connection turns out to be closed before MAIL FROM is accepted,
// the session reconnects and retries once; nothing has been sent by then.
func (s *Session) Send(ctx context.Context, msg *mail.Msg) error {
	from, err := msg.GetSender(false)
	if err != nil {
		return fmt.Errorf("message sender: %w", err)
	}
	rcpts, err := msg.GetRecipients()
	if err != nil {
		return fmt.Errorf("message recipients: %w", err)
	}
	dials := s.dials
	if err := s.ensureLive(ctx); err != nil {
		return err
	}

	stale, err := s.transact(ctx, from, rcpts, msg)
	if !stale || s.dials != dials || ctx.Err() != nil {
		return err
	}
	s.logger.Info("smtp session dropped by relay, reconnecting", zap.Error(err))
	s.drop()
	if err := s.connect(ctx); err != nil {
		return err
	}
	_, err = s.transact(ctx, from, rcpts, msg)
	return err
}

// transact runs one MAIL/RCPT/DATA exchange. stale reports that MAIL FROM
// failed on the connection itself rather than with a relay reply.
func (s *Session) transact(ctx context.Context, from string, rcpts []string, msg *mail.Msg) (bool, error) {
	stop := s.bind(ctx)
	defer stop()

	if err := s.client.Mail(from); err != nil {
		var reply *textproto.Error
		if !errors.As(err, &reply) {
			s.drop()
			return true, fmt.Errorf("smtp mail from: %w", err)
		}
		s.abort()
		return false, fmt.Errorf("smtp mail from: %w", err)
	}
	for _, rcpt := range rcpts {
		if err := s.client.Rcpt(rcpt); err != nil {
			s.abort()
			return false, fmt.Errorf("smtp rcpt to %s: %w", rcpt, err)
		}
	}
	w, err := s.client.Data()
	if err != nil {
		s.abort()
		return false, fmt.Errorf("smtp data: %w", err)
	}
	if _, err := msg.WriteTo(w); err != nil {
		_ = w.Close()
		s.abort()
		return false, fmt.Errorf("smtp write message: %w", err)
	}
	if err := w.Close(); err != nil {
		s.abort()
		return false, fmt.Errorf("smtp end data: %w", err)
	}
	s.lastUsed = s.now()
	return false, nil
}

// Close ends the session with QUIT, falling back to closing the socket.
func (s *Session) Close() error {
	if s.client == nil {
		return nil
	}
	client := s.client
	s.client = nil
	if s.conn != nil {
		_ = s.conn.SetDeadline(time.Now().Add(s.cfg.CommandTimeout))
	}
	if err := client.Quit(); err != nil {
		_ = client.Close()
		return fmt.Errorf("smtp quit: %w", err)
	}
	return nil
}

func (s *Session) ensureLive(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.client == nil {
		return s.connect(ctx)
	}
	if s.cfg.IdleProbe <= 0 || s.now().Sub(s.lastUsed) < s.cfg.IdleProbe {
		return nil
	}
	stop := s.bind(ctx)
	err := s.client.Noop()
	stop()
	if err == nil {
		s.lastUsed = s.now()
		return nil
	}
	s.logger.Info("smtp session went stale, reconnecting", zap.Error(err))
	s.drop()
	return s.connect(ctx)
}

func (s *Session) connect(ctx context.Context) error {
	conn, err := s.dial(ctx)
	if err != nil {
		return err
	}
	s.dials++
	s.conn = conn
	stop := s.bind(ctx)
	defer stop()

	client, err := smtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		_ = conn.Close()
		s.conn = nil
		return fmt.Errorf("smtp greeting: %w", err)
	}
	if err := s.greet(client); err != nil {
		_ = client.Close()
		s.conn = nil
		return err
	}
	s.client = client
	s.lastUsed = s.now()
	s.logger.Info("smtp session established",
		zap.String("host", s.cfg.Host),
		zap.String("remote", conn.RemoteAddr().String()),
		zap.String("auth_mode", string(s.cfg.AuthMode)),
	)
	return nil
}

func (s *Session) greet(client *smtp.Client) error {
	if err := client.Hello(s.helo()); err != nil {
		return fmt.Errorf("smtp hello: %w", err)
	}
	if s.cfg.TLSMode == TLSStartTLS {
		if ok, _ := client.Extension("STARTTLS"); !ok {
			return errors.New("smtp server does not offer STARTTLS")
		}
		if err := client.StartTLS(s.tlsConfig()); err != nil {
			return fmt.Errorf("smtp starttls: %w", err)
		}
	}
	if s.cfg.AuthMode == AuthAuthenticated {
		auth := smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}
	return nil
}

func (s *Session) dial(ctx context.Context) (net.Conn, error) {
	network, address, err := s.target(ctx)
	if err != nil {
		return nil, err
	}
	dctx, cancel := context.WithTimeout(ctx, s.cfg.DialTimeout)
	defer cancel()
	conn, err := s.dialer.DialContext(dctx, network, address)
	if err != nil {
		return nil, fmt.Errorf("smtp dial %s: %w", address, err)
	}
	if s.cfg.TLSMode != TLSImplicit {
		return conn, nil
	}
	tlsConn := tls.Client(conn, s.tlsConfig())
	if err := tlsConn.HandshakeContext(dctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("smtp tls handshake: %w", err)
	}
	return tlsConn, nil
}

// target resolves the dial address. IPv4-only mode pins the connection to
// an A record; TLS still verifies the configured host name.
func (s *Session) target(ctx context.Context) (string, string, error) {
	port := strconv.Itoa(s.cfg.Port)
	if s.cfg.AddressFamily != FamilyIPv4 {
		return "tcp", net.JoinHostPort(s.cfg.Host, port), nil
	}
	if ip := net.ParseIP(s.cfg.Host); ip != nil && ip.To4() != nil {
		return "tcp4", net.JoinHostPort(ip.String(), port), nil
	}
	ips, err := s.resolver.LookupIP(ctx, "ip4", s.cfg.Host)
	if err != nil {
		return "", "", fmt.Errorf("resolve %s: %w", s.cfg.Host, err)
	}
	for _, ip := range ips {
		if v4 := ip.To4(); v4 != nil {
			return "tcp4", net.JoinHostPort(v4.String(), port), nil
		}
	}
	return "", "", fmt.Errorf("resolve %s: no IPv4 address", s.cfg.Host)
}

func (s *Session) helo() string {
	if s.cfg.HeloIdentity != "" {
		return s.cfg.HeloIdentity
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "localhost"
}

func (s *Session) tlsConfig() *tls.Config {
	return &tls.Config{
		ServerName:         s.cfg.Host,
		InsecureSkipVerify: s.cfg.InsecureSkipVerify, //nolint:gosec // operator opt-in for private relays
		MinVersion:         tls.VersionTLS12,
	}
}

// bind applies the command timeout and aborts blocked I/O when ctx ends.
func (s *Session) bind(ctx context.Context) func() {
	if s.conn == nil {
		return func() {}
	}
	deadline := time.Now().Add(s.cfg.CommandTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = s.conn.SetDeadline(deadline)
	conn := s.conn
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Unix(1, 0))
	})
	return func() {
		stop()
		_ = conn.SetDeadline(time.Time{})
	}
}

// abort resets a failed transaction, dropping the connection if the relay
// no longer answers.
func (s *Session) abort() {
	if s.client == nil {
		return
	}
	if err := s.client.Reset(); err != nil {
		s.logger.Debug("smtp reset failed, dropping session", zap.Error(err))
		s.drop()
	}
}

func (s *Session) drop() {
	if s.client != nil {
		_ = s.client.Close()
	}
	s.client = nil
	s.conn = nil
}
