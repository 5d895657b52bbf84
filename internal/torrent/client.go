package torrent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/danferreira/metapeer/internal/handshake"
	"github.com/danferreira/metapeer/internal/metadata"
	"github.com/danferreira/metapeer/internal/peer"
	"github.com/danferreira/metapeer/internal/tracker"
)

type Config struct {
	ListenPort int
	// PeerID is generated when left zero.
	PeerID    [20]byte
	Tracker   tracker.Config
	Handshake handshake.Config
}

func NewDefaultConfig() Config {
	return Config{
		ListenPort: 6881,
		Tracker:    tracker.NewDefaultConfig(),
		Handshake:  handshake.NewDefaultConfig(),
	}
}

// Client owns the local peer id and the torrents loaded into it.
type Client struct {
	mu sync.RWMutex

	config   Config
	torrents map[[20]byte]*Torrent
}

func NewClient(cfg Config) (*Client, error) {
	if cfg.PeerID == ([20]byte{}) {
		id, err := peer.NewPeerID()
		if err != nil {
			return nil, err
		}
		cfg.PeerID = id
	}

	return &Client{
		config:   cfg,
		torrents: make(map[[20]byte]*Torrent),
	}, nil
}

func (c *Client) PeerID() [20]byte {
	return c.config.PeerID
}

func (c *Client) Load(path string) (*Torrent, error) {
	m, err := metadata.ParseFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to parse torrent file %s: %w", path, err)
	}

	return c.Add(m)
}

// Add registers m and derives its info-hash. Adding the same torrent twice
// returns the existing entry.
func (c *Client) Add(m *metadata.Torrent) (*Torrent, error) {
	infoHash, err := m.InfoHash()
	if err != nil {
		return nil, fmt.Errorf("failed to derive info hash: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if t, ok := c.torrents[infoHash]; ok {
		return t, nil
	}

	t := &Torrent{
		Metadata: m,
		InfoHash: infoHash,
		peerID:   c.config.PeerID,
		config:   c.config,
		logger:   slog.With("infoHash", metadata.HexHash(infoHash)),
	}
	c.torrents[infoHash] = t

	return t, nil
}

func (c *Client) Torrent(infoHash [20]byte) (*Torrent, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	t, ok := c.torrents[infoHash]
	return t, ok
}

// Serve answers inbound handshakes on ln for loaded torrents until ctx is
// done or ln is closed. Connections are closed once the handshake is over,
// since nothing past the handshake is spoken here. Serve returns only after
// every in-flight handshake has finished.
func (c *Client) Serve(ctx context.Context, ln net.Listener) error {
	slog.Info("Listening for incoming peers", "addr", ln.Addr().String())

	var wg sync.WaitGroup
	defer wg.Wait()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			slog.Error("Error during accepting new conn", "error", err)
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer conn.Close()

			if err := c.handleInboundConnection(ctx, conn); err != nil {
				slog.Debug("inbound connection failed", "peer", conn.RemoteAddr().String(), "error", err)
			}
		}()
	}
}

func (c *Client) handleInboundConnection(ctx context.Context, conn net.Conn) error {
	known := func(infoHash [20]byte) bool {
		_, ok := c.Torrent(infoHash)
		return ok
	}

	h, err := handshake.Accept(ctx, conn, c.config.PeerID, known, c.config.Handshake)
	if err != nil {
		return err
	}

	slog.Info("inbound peer connected", "peer", conn.RemoteAddr().String(), "infoHash", metadata.HexHash(h.InfoHash))
	return nil
}
