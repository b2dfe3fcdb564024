// Package transport dials a single candidate endpoint (§4.2): TCP with
// an optional TLS+ALPN handshake, or QUIC for the h3 class, capturing
// the negotiated protocol and peer identity the pool and stats layers
// need.
package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/netip"
	"time"

	"github.com/google/uuid"
	"github.com/quic-go/quic-go"
)

// ALPNClass is the protocol offered/accepted during TLS ALPN (§ GLOSSARY).
type ALPNClass string

const (
	ALPNh1 ALPNClass = "h1"
	ALPNh2 ALPNClass = "h2"
	ALPNh3 ALPNClass = "h3"
)

// Candidate is one resolved endpoint to dial.
type Candidate struct {
	Addr netip.Addr
	Port uint16
	Host string // original hostname, used as SNI regardless of DNS override
}

func (c Candidate) String() string {
	return net.JoinHostPort(c.Addr.String(), fmt.Sprintf("%d", c.Port))
}

// Connection is a freshly dialed, handshake-complete transport
// connection, ready to be wrapped by an HTTP protocol layer and handed
// to the pool.
type Connection struct {
	ID    string
	Proto ALPNClass

	TCPConn  net.Conn   // set for h1/h2
	QUICConn *quic.Conn // set for h3

	LocalAddr  net.Addr
	RemoteAddr net.Addr

	NegotiatedVersion uint16 // tls.VersionTLS12/13, 0 for plaintext
	PeerCertDER       [][]byte
	SNI               string
}

// Close tears down the underlying socket, whichever protocol it is.
func (c *Connection) Close() error {
	if c.QUICConn != nil {
		return c.QUICConn.CloseWithError(0, "")
	}
	if c.TCPConn != nil {
		return c.TCPConn.Close()
	}
	return nil
}

// Config bundles the dial-time parameters for one candidate.
type Config struct {
	ALPN      ALPNClass
	UseTLS    bool
	TLSConfig *tls.Config // base config; NextProtos and ServerName are overwritten per dial
	DialTimeout time.Duration
}

// DefaultDialTimeout is used when Config.DialTimeout is unset.
const DefaultDialTimeout = 10 * time.Second

// Dial connects to candidate per cfg, performing a TLS or QUIC
// handshake as required. cancel (via ctx) aborts the socket and drops
// any partially established state; Dial never returns a half-open
// Connection.
func Dial(ctx context.Context, candidate Candidate, cfg Config) (*Connection, error) {
	if cfg.ALPN == ALPNh3 {
		return dialQUIC(ctx, candidate, cfg)
	}
	return dialTCP(ctx, candidate, cfg)
}

func dialTCP(ctx context.Context, candidate Candidate, cfg Config) (*Connection, error) {
	timeout := cfg.DialTimeout
	if timeout <= 0 {
		timeout = DefaultDialTimeout
	}
	dialer := &net.Dialer{Timeout: timeout}

	rawConn, err := dialer.DialContext(ctx, "tcp", candidate.String())
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", candidate, err)
	}

	conn := &Connection{
		ID:         uuid.NewString(),
		Proto:      ALPNh1,
		TCPConn:    rawConn,
		LocalAddr:  rawConn.LocalAddr(),
		RemoteAddr: rawConn.RemoteAddr(),
		SNI:        candidate.Host,
	}

	if !cfg.UseTLS {
		return conn, nil
	}

	tlsConf := cloneTLSConfig(cfg.TLSConfig)
	tlsConf.ServerName = candidate.Host
	tlsConf.NextProtos = []string{"h2", "http/1.1"}

	tlsConn := tls.Client(rawConn, tlsConf)
	if err := handshakeWithCancel(ctx, tlsConn); err != nil {
		_ = rawConn.Close()
		return nil, fmt.Errorf("transport: TLS handshake with %s: %w", candidate, err)
	}

	state := tlsConn.ConnectionState()
	conn.TCPConn = tlsConn
	conn.NegotiatedVersion = state.Version
	for _, cert := range state.PeerCertificates {
		conn.PeerCertDER = append(conn.PeerCertDER, cert.Raw)
	}
	switch state.NegotiatedProtocol {
	case "h2":
		conn.Proto = ALPNh2
	default:
		conn.Proto = ALPNh1
	}

	return conn, nil
}

// handshakeWithCancel runs tlsConn.HandshakeContext, which already
// aborts the handshake (and closes the underlying socket on failure)
// when ctx is done.
func handshakeWithCancel(ctx context.Context, tlsConn *tls.Conn) error {
	return tlsConn.HandshakeContext(ctx)
}

func dialQUIC(ctx context.Context, candidate Candidate, cfg Config) (*Connection, error) {
	tlsConf := cloneTLSConfig(cfg.TLSConfig)
	tlsConf.ServerName = candidate.Host
	tlsConf.NextProtos = []string{"h3"}

	qconn, err := quic.DialAddr(ctx, candidate.String(), tlsConf, nil)
	if err != nil {
		return nil, fmt.Errorf("transport: QUIC dial %s: %w", candidate, err)
	}

	state := qconn.ConnectionState().TLS
	conn := &Connection{
		ID:                uuid.NewString(),
		Proto:             ALPNh3,
		QUICConn:          qconn,
		LocalAddr:         qconn.LocalAddr(),
		RemoteAddr:        qconn.RemoteAddr(),
		NegotiatedVersion: state.Version,
		SNI:               candidate.Host,
	}
	for _, cert := range state.PeerCertificates {
		conn.PeerCertDER = append(conn.PeerCertDER, cert.Raw)
	}
	return conn, nil
}

// cloneTLSConfig never mutates the caller's base config; nil base
// means the system root store, which is mandatory (no insecure option).
func cloneTLSConfig(base *tls.Config) *tls.Config {
	if base == nil {
		return &tls.Config{MinVersion: tls.VersionTLS12}
	}
	c := base.Clone()
	if c.MinVersion == 0 {
		c.MinVersion = tls.VersionTLS12
	}
	c.InsecureSkipVerify = false
	return c
}
