package torrent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"

	"github.com/danferreira/metapeer/internal/handshake"
	"github.com/danferreira/metapeer/internal/metadata"
	"github.com/danferreira/metapeer/internal/peer"
	"github.com/danferreira/metapeer/internal/tracker"
)

var ErrNoPeers = errors.New("no peer completed the handshake")

// Torrent is a loaded metainfo file together with its derived info-hash.
type Torrent struct {
	Metadata *metadata.Torrent
	InfoHash [20]byte

	peerID [20]byte
	config Config
	logger *slog.Logger
}

// Peers announces once to the torrent's tracker.
func (t *Torrent) Peers(ctx context.Context) (*tracker.Response, error) {
	tr, err := tracker.NewTracker(t.Metadata.Announce, t.InfoHash, t.peerID, t.config.ListenPort, t.config.Tracker)
	if err != nil {
		return nil, err
	}

	t.logger.Info("Sending announcement to tracker")
	resp, err := tr.Announce(ctx, tracker.EventUpdated, 0, 0, t.Metadata.Info.TotalLength())
	if err != nil {
		return nil, err
	}

	t.logger.Info("Successfully announced to tracker", "peers", len(resp.Peers), "interval", resp.Interval)
	return resp, nil
}

// Connect dials p and performs the handshake. The returned connection is
// open and owned by the caller.
func (t *Torrent) Connect(ctx context.Context, p peer.Peer) (net.Conn, [20]byte, error) {
	return t.ConnectAddr(ctx, p.Addr())
}

func (t *Torrent) ConnectAddr(ctx context.Context, addr string) (net.Conn, [20]byte, error) {
	return handshake.Dial(ctx, addr, t.InfoHash, t.peerID, t.config.Handshake)
}

// ConnectAny announces and then tries the returned peers one after the
// other, in tracker order and skipping repeated addresses, until a handshake
// succeeds.
func (t *Torrent) ConnectAny(ctx context.Context) (net.Conn, peer.Peer, [20]byte, error) {
	resp, err := t.Peers(ctx)
	if err != nil {
		return nil, peer.Peer{}, [20]byte{}, err
	}

	pool := peer.NewPool(len(resp.Peers))
	pool.PushMany(resp.Peers)

	var errs []error
	for {
		p, ok := pool.Pop()
		if !ok {
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, peer.Peer{}, [20]byte{}, err
		}

		conn, remoteID, err := t.Connect(ctx, p)
		if err != nil {
			t.logger.Debug("handshake failed", "peer", p.Addr(), "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", p.Addr(), err))
			continue
		}

		return conn, p, remoteID, nil
	}

	return nil, peer.Peer{}, [20]byte{}, errors.Join(append([]error{ErrNoPeers}, errs...)...)
}
