package transport

import (
	"context"
	"crypto/tls"
	"time"

	"github.com/quic-go/quic-go"
)

// pollDeadline is how long a QUIC read/write blocks before this package
// reports "no progress yet" rather than actually blocking the caller's
// tick loop (§5: only the I/O passes may suspend, and only briefly).
const pollDeadline = 1 * time.Millisecond

// QUICTransport adapts a single QUIC stream — the worker's one persistent
// session stream — to the Transport contract.
type QUICTransport struct {
	conn   *quic.Conn
	stream *quic.Stream
}

func newQUICTransport(conn *quic.Conn, stream *quic.Stream) *QUICTransport {
	return &QUICTransport{conn: conn, stream: stream}
}

func (t *QUICTransport) Read(buf []byte) (int, error) {
	_ = t.stream.SetReadDeadline(time.Now().Add(pollDeadline))
	n, err := t.stream.Read(buf)
	if err != nil {
		if ne, ok := err.(interface{ Timeout() bool }); ok && ne.Timeout() {
			return n, nil
		}
		return n, err
	}
	return n, nil
}

func (t *QUICTransport) Write(data []byte) (int, error) {
	_ = t.stream.SetWriteDeadline(time.Now().Add(pollDeadline))
	n, err := t.stream.Write(data)
	if err != nil {
		if ne, ok := err.(interface{ Timeout() bool }); ok && ne.Timeout() {
			return n, nil
		}
		return n, err
	}
	return n, nil
}

func (t *QUICTransport) Close() error {
	return t.conn.CloseWithError(0, "session closed")
}

// RemoteAddr reports the connecting peer's network address, used by the
// dispatcher's accept loop to populate a new session's Address component.
func (t *QUICTransport) RemoteAddr() string {
	return t.conn.RemoteAddr().String()
}

// QUICDialer dials a worker's persistent session stream to a dispatcher.
type QUICDialer struct {
	TLSConfig *tls.Config
}

func (d QUICDialer) Dial(addr string) (Transport, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn, err := quic.DialAddr(ctx, addr, d.TLSConfig, &quic.Config{
		KeepAlivePeriod: 10 * time.Second,
		MaxIdleTimeout:  60 * time.Second,
	})
	if err != nil {
		return nil, err
	}
	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		return nil, err
	}
	return newQUICTransport(conn, stream), nil
}

// QUICListener accepts worker sessions as QUIC connections, each carrying
// exactly one bidirectional stream.
type QUICListener struct {
	listener *quic.Listener
}

// ListenQUIC starts a QUIC listener on addr.
func ListenQUIC(addr string, tlsConfig *tls.Config) (*QUICListener, error) {
	listener, err := quic.ListenAddr(addr, tlsConfig, &quic.Config{
		KeepAlivePeriod: 10 * time.Second,
		MaxIdleTimeout:  60 * time.Second,
	})
	if err != nil {
		return nil, err
	}
	return &QUICListener{listener: listener}, nil
}

func (l *QUICListener) Accept() (Transport, error) {
	ctx := context.Background()
	conn, err := l.listener.Accept(ctx)
	if err != nil {
		return nil, err
	}
	stream, err := conn.AcceptStream(ctx)
	if err != nil {
		return nil, err
	}
	return newQUICTransport(conn, stream), nil
}

func (l *QUICListener) Addr() string { return l.listener.Addr().String() }
func (l *QUICListener) Close() error { return l.listener.Close() }
