package transport

import (
	"context"
	"errors"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wneessen/go-mail"

	"github.com/JakeFAU/prospector/internal/prospect"
)

func newMsg(t *testing.T, to string) *mail.Msg {
	t.Helper()
	msg := mail.NewMsg()
	require.NoError(t, msg.From("me@sender.dev"))
	require.NoError(t, msg.To(to))
	msg.Subject("hello")
	msg.SetBodyString(mail.TypeTextPlain, "Hello,\n\nbody\n")
	return msg
}

type recordingDialer struct {
	mu        sync.Mutex
	networks  []string
	addresses []string
	fail      error
}

func (d *recordingDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	d.mu.Lock()
	d.networks = append(d.networks, network)
	d.addresses = append(d.addresses, address)
	d.mu.Unlock()
	if d.fail != nil {
		return nil, d.fail
	}
	var nd net.Dialer
	return nd.DialContext(ctx, network, address)
}

type staticResolver struct {
	ips []net.IP
}

func (r staticResolver) LookupIP(context.Context, string, string) ([]net.IP, error) {
	return r.ips, nil
}

func TestValidate(t *testing.T) {
	t.Parallel()

	base := Config{Host: "smtp.example.com", Username: "u", Password: "p"}
	require.NoError(t, base.Validate())

	cases := map[string]struct {
		mutate func(*Config)
		want   error
	}{
		"missing host":     {func(c *Config) { c.Host = "" }, prospect.ErrPrecondition},
		"missing password": {func(c *Config) { c.Password = "" }, ErrMissingCredentials},
		"missing username": {func(c *Config) { c.Username = " " }, ErrMissingCredentials},
		"bad port":         {func(c *Config) { c.Port = 70000 }, nil},
		"bad auth mode":    {func(c *Config) { c.AuthMode = "oauth" }, nil},
		"bad family":       {func(c *Config) { c.AddressFamily = "ipv6" }, nil},
		"bad tls":          {func(c *Config) { c.TLSMode = "maybe" }, nil},
	}
	for name, tc := range cases {
		cfg := base
		tc.mutate(&cfg)
		err := cfg.Validate()
		require.Error(t, err, name)
		if tc.want != nil {
			require.ErrorIs(t, err, tc.want, name)
		}
	}

	allow := Config{Host: "relay.example.com", AuthMode: AuthAllowListed}
	require.NoError(t, allow.Validate())
	assert.True(t, IsMissingCredentials(Config{Host: "x"}.Validate()))
}

func TestOpenChecksCredentialsBeforeDialing(t *testing.T) {
	t.Parallel()

	dialer := &recordingDialer{}
	_, err := Open(context.Background(), Config{Host: "smtp.example.com", Username: "u"}, WithDialer(dialer))
	require.ErrorIs(t, err, ErrMissingCredentials)
	assert.Empty(t, dialer.networks)
}

func TestSendAuthenticated(t *testing.T) {
	t.Parallel()

	srv := newFakeServer(t)
	s, err := Open(context.Background(), Config{
		Host:         "127.0.0.1",
		Port:         srv.port(),
		Username:     "user",
		Password:     "secret",
		HeloIdentity: "mx.sender.dev",
		TLSMode:      TLSNone,
	})
	require.NoError(t, err)

	require.NoError(t, s.Send(context.Background(), newMsg(t, "ceo@acme.io")))
	require.NoError(t, s.Close())
	require.NoError(t, s.Close(), "close is idempotent")

	conns, helos, auths, messages, commands := srv.snapshot()
	assert.Equal(t, 1, conns)
	assert.Equal(t, []string{"mx.sender.dev"}, helos)
	require.Len(t, auths, 1)
	assert.True(t, strings.HasPrefix(auths[0], "PLAIN"))
	require.Len(t, messages, 1)
	assert.Contains(t, messages[0], "Subject: hello")
	assert.Contains(t, commands, "QUIT")
}

func TestAllowListedIPv4Session(t *testing.T) {
	t.Parallel()

	srv := newFakeServer(t)
	dialer := &recordingDialer{}
	s, err := Open(context.Background(), Config{
		Host:          "relay.internal.test",
		Port:          srv.port(),
		AuthMode:      AuthAllowListed,
		AddressFamily: FamilyIPv4,
		HeloIdentity:  "static-ip.sender.dev",
		TLSMode:       TLSNone,
	},
		WithDialer(dialer),
		WithResolver(staticResolver{ips: []net.IP{net.ParseIP("::1"), net.ParseIP("127.0.0.1")}}),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.Send(context.Background(), newMsg(t, "jobs@acme.io")))

	assert.Equal(t, []string{"tcp4"}, dialer.networks)
	assert.Equal(t, []string{net.JoinHostPort("127.0.0.1", strconv.Itoa(srv.port()))}, dialer.addresses)
	_, helos, auths, messages, _ := srv.snapshot()
	assert.Equal(t, []string{"static-ip.sender.dev"}, helos)
	assert.Empty(t, auths)
	assert.Len(t, messages, 1)
}

func TestIPv4ModeWithoutARecordFails(t *testing.T) {
	t.Parallel()

	dialer := &recordingDialer{}
	_, err := Open(context.Background(), Config{
		Host:          "v6only.test",
		AuthMode:      AuthAllowListed,
		AddressFamily: FamilyIPv4,
		TLSMode:       TLSNone,
	}, WithDialer(dialer), WithResolver(staticResolver{ips: []net.IP{net.ParseIP("::1")}}))
	require.ErrorContains(t, err, "no IPv4 address")
	assert.Empty(t, dialer.networks)
}

func TestRejectedRecipientKeepsSession(t *testing.T) {
	t.Parallel()

	srv := newFakeServer(t)
	srv.rejectRcpt["bad@acme.io"] = true
	s, err := Open(context.Background(), Config{
		Host: "127.0.0.1", Port: srv.port(), AuthMode: AuthAllowListed, TLSMode: TLSNone,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	err = s.Send(context.Background(), newMsg(t, "bad@acme.io"))
	require.ErrorContains(t, err, "550")
	require.NoError(t, s.Send(context.Background(), newMsg(t, "good@acme.io")))

	conns, _, _, messages, commands := srv.snapshot()
	assert.Equal(t, 1, conns)
	assert.Len(t, messages, 1)
	assert.Contains(t, commands, "RSET")
	assert.Equal(t, 1, s.Dials())
}

func TestIdleProbeReconnects(t *testing.T) {
	t.Parallel()

	srv := newFakeServer(t)
	srv.closeAfterData = 1
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s, err := Open(context.Background(), Config{
		Host:      "127.0.0.1",
		Port:      srv.port(),
		AuthMode:  AuthAllowListed,
		TLSMode:   TLSNone,
		IdleProbe: time.Minute,
	}, WithClock(func() time.Time { return now }))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.Send(context.Background(), newMsg(t, "a@acme.io")))
	now = now.Add(2 * time.Minute)
	require.NoError(t, s.Send(context.Background(), newMsg(t, "b@acme.io")))

	assert.Equal(t, 2, s.Dials())
	conns, helos, _, messages, _ := srv.snapshot()
	assert.Equal(t, 2, conns)
	assert.Len(t, helos, 2, "reconnect greets again")
	assert.Len(t, messages, 2)
}

func TestDroppedSessionRetriedWithoutProbe(t *testing.T) {
	t.Parallel()

	srv := newFakeServer(t)
	srv.closeAfterData = 1
	s, err := Open(context.Background(), Config{
		Host: "127.0.0.1", Port: srv.port(), AuthMode: AuthAllowListed, TLSMode: TLSNone,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.Send(context.Background(), newMsg(t, "a@acme.io")))
	require.NoError(t, s.Send(context.Background(), newMsg(t, "b@acme.io")))
	require.NoError(t, s.Send(context.Background(), newMsg(t, "c@acme.io")))

	assert.Equal(t, 2, s.Dials())
	conns, helos, _, messages, _ := srv.snapshot()
	assert.Equal(t, 2, conns)
	assert.Len(t, helos, 2)
	assert.Len(t, messages, 3)
}

func TestStartTLSRequiredWhenConfigured(t *testing.T) {
	t.Parallel()

	srv := newFakeServer(t)
	_, err := Open(context.Background(), Config{
		Host: "127.0.0.1", Port: srv.port(), AuthMode: AuthAllowListed,
	})
	require.ErrorContains(t, err, "STARTTLS")
}

func TestDialFailure(t *testing.T) {
	t.Parallel()

	dialer := &recordingDialer{fail: errors.New("connection refused")}
	_, err := Open(context.Background(), Config{
		Host: "smtp.example.com", AuthMode: AuthAllowListed, TLSMode: TLSNone,
	}, WithDialer(dialer))
	require.ErrorContains(t, err, "connection refused")
	assert.Equal(t, []string{"tcp"}, dialer.networks)
	assert.Equal(t, []string{"smtp.example.com:587"}, dialer.addresses)
}

func TestSendHonorsCancelledContext(t *testing.T) {
	t.Parallel()

	srv := newFakeServer(t)
	s, err := Open(context.Background(), Config{
		Host: "127.0.0.1", Port: srv.port(), AuthMode: AuthAllowListed, TLSMode: TLSNone,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, s.Send(ctx, newMsg(t, "a@acme.io")), context.Canceled)
	_, _, _, messages, _ := srv.snapshot()
	assert.Empty(t, messages)
}
