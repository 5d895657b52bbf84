package handshake

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"
)

type Config struct {
	DialTimeout  time.Duration
	WriteTimeout time.Duration
	ReadTimeout  time.Duration
}

func NewDefaultConfig() Config {
	return Config{
		DialTimeout:  10 * time.Second,
		WriteTimeout: 5 * time.Second,
		ReadTimeout:  5 * time.Second,
	}
}

// Dial connects to addr and performs the handshake. On success the
// connection is returned open for the next protocol phase; on any failure it
// is closed.
func Dial(ctx context.Context, addr string, infoHash, peerID [20]byte, cfg Config) (net.Conn, [20]byte, error) {
	dialer := net.Dialer{Timeout: cfg.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, [20]byte{}, &Error{Op: "dial", Err: err}
	}

	remoteID, err := Exchange(ctx, conn, infoHash, peerID, cfg)
	if err != nil {
		conn.Close()
		return nil, [20]byte{}, err
	}

	return conn, remoteID, nil
}

// Exchange runs an outbound session over conn with the configured deadlines.
// Cancelling ctx interrupts a pending write or read. It does not close conn.
func Exchange(ctx context.Context, conn net.Conn, infoHash, peerID [20]byte, cfg Config) ([20]byte, error) {
	logger := slog.With("peer", conn.RemoteAddr().String())

	release, err := guard(ctx, conn, cfg)
	if err != nil {
		return [20]byte{}, err
	}
	defer release()

	s := NewSession(conn, infoHash, peerID).WithLogger(logger)
	remoteID, err := s.Run()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return [20]byte{}, &Error{Op: "run", Err: ctxErr}
		}
		return [20]byte{}, err
	}

	logger.Info("peer connected")
	return remoteID, nil
}

// Accept answers an inbound handshake. The remote side speaks first and the
// local handshake is written back only when known accepts its info-hash.
// The same deadlines and cancellation as Exchange apply; conn is not closed.
func Accept(ctx context.Context, conn net.Conn, peerID [20]byte, known func([20]byte) bool, cfg Config) (*Handshake, error) {
	release, err := guard(ctx, conn, cfg)
	if err != nil {
		return nil, err
	}
	defer release()

	h, err := Read(conn)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, &Error{Op: "run", Err: ctxErr}
		}
		return nil, err
	}

	if !known(h.InfoHash) {
		return nil, &Error{Op: "validate", Err: ErrUnknownTorrent}
	}

	if err := New(h.InfoHash, peerID).Write(conn); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, &Error{Op: "run", Err: ctxErr}
		}
		return nil, err
	}

	return h, nil
}

// guard sets the exchange deadline on conn and moves it into the past once
// ctx is done. release must be called before conn is used again; it clears
// the deadline.
func guard(ctx context.Context, conn net.Conn, cfg Config) (release func(), err error) {
	if timeout := cfg.WriteTimeout + cfg.ReadTimeout; timeout > 0 {
		if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
			return nil, fmt.Errorf("failed to set deadline: %w", err)
		}
	}

	fired := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		defer close(fired)
		conn.SetDeadline(time.Unix(1, 0))
	})

	return func() {
		if !stop() {
			<-fired
		}
		conn.SetDeadline(time.Time{})
	}, nil
}
