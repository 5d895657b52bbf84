package tracker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/danferreira/metapeer/internal/bencode"
	"github.com/danferreira/metapeer/internal/metadata"
	"github.com/danferreira/metapeer/internal/peer"
)

type Event string

const (
	EventStarted   Event = "started"
	EventCompleted Event = "completed"
	EventStopped   Event = "stopped"
	EventUpdated   Event = ""
)

// MaxResponseSize bounds the announce response body read from a tracker.
const MaxResponseSize = 1 << 20

var ErrResponseTooLarge = errors.New("response body exceeds size limit")

type Kind int

const (
	KindTransport Kind = iota
	KindStatus
	KindDecode
	KindFailure
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindStatus:
		return "status"
	case KindDecode:
		return "decode"
	case KindFailure:
		return "failure"
	}
	return "unknown"
}

type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("tracker %s error: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

type Response struct {
	// Interval is the number of seconds to wait before announcing again.
	Interval       int64
	MinInterval    int64
	Complete       int64
	Incomplete     int64
	WarningMessage string
	Peers          peer.Peers
}

type Config struct {
	Timeout time.Duration
	// ForceIPv4 dials the tracker over tcp4 only, since compact peer lists
	// are IPv4.
	ForceIPv4 bool
}

func NewDefaultConfig() Config {
	return Config{
		Timeout:   15 * time.Second,
		ForceIPv4: true,
	}
}

type Tracker struct {
	announce *url.URL
	infoHash [20]byte
	peerID   [20]byte
	port     int
	client   *http.Client
}

func NewTracker(announce string, infoHash, peerID [20]byte, listenPort int, cfg Config) (*Tracker, error) {
	u, err := url.Parse(announce)
	if err != nil {
		return nil, fmt.Errorf("invalid announce url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported tracker scheme %q", u.Scheme)
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.ForceIPv4 {
		dialer := net.Dialer{}
		transport.DialContext = func(ctx context.Context, _, addr string) (net.Conn, error) {
			return dialer.DialContext(ctx, "tcp4", addr)
		}
	}

	return &Tracker{
		announce: u,
		infoHash: infoHash,
		peerID:   peerID,
		port:     listenPort,
		client:   &http.Client{Timeout: cfg.Timeout, Transport: transport},
	}, nil
}

// Announce asks the tracker for peers of the given torrent with nothing
// uploaded or downloaded yet and the whole file left.
func Announce(ctx context.Context, t *metadata.Torrent, infoHash, peerID [20]byte, listenPort int) (*Response, error) {
	tr, err := NewTracker(t.Announce, infoHash, peerID, listenPort, NewDefaultConfig())
	if err != nil {
		return nil, err
	}

	return tr.Announce(ctx, EventUpdated, 0, 0, t.Info.TotalLength())
}

func (t *Tracker) Announce(ctx context.Context, e Event, downloaded, uploaded, left int64) (*Response, error) {
	announceURL := t.URL(e, downloaded, uploaded, left)
	slog.Debug("Sending announcement to tracker", "url", announceURL, "event", e)

	r, err := http.NewRequestWithContext(ctx, http.MethodGet, announceURL, nil)
	if err != nil {
		return nil, &Error{Kind: KindTransport, Err: err}
	}

	resp, err := t.client.Do(r)
	if err != nil {
		return nil, &Error{Kind: KindTransport, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &Error{Kind: KindStatus, Err: fmt.Errorf("tracker HTTP %d", resp.StatusCode)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize+1))
	if err != nil {
		return nil, &Error{Kind: KindTransport, Err: err}
	}
	if len(body) > MaxResponseSize {
		return nil, &Error{Kind: KindDecode, Err: ErrResponseTooLarge}
	}

	return parseResponse(body)
}

// URL builds the announce URL. info_hash is appended by hand because every
// byte has to be percent-encoded, which url.Values does not do.
func (t *Tracker) URL(e Event, downloaded, uploaded, left int64) string {
	params := url.Values{
		"peer_id":    []string{string(t.peerID[:])},
		"port":       []string{strconv.Itoa(t.port)},
		"uploaded":   []string{strconv.FormatInt(uploaded, 10)},
		"downloaded": []string{strconv.FormatInt(downloaded, 10)},
		"left":       []string{strconv.FormatInt(left, 10)},
		"compact":    []string{"1"},
	}

	if e != EventUpdated {
		params.Add("event", string(e))
	}

	u := *t.announce
	query := params.Encode()
	if u.RawQuery != "" {
		query = u.RawQuery + "&" + query
	}
	u.RawQuery = query + "&info_hash=" + PercentEncode(t.infoHash[:])

	return u.String()
}

// PercentEncode escapes every byte as %XX, including unreserved ones.
func PercentEncode(b []byte) string {
	const hex = "0123456789ABCDEF"

	var sb strings.Builder
	sb.Grow(3 * len(b))
	for _, c := range b {
		sb.WriteByte('%')
		sb.WriteByte(hex[c>>4])
		sb.WriteByte(hex[c&0x0f])
	}
	return sb.String()
}

func parseResponse(body []byte) (*Response, error) {
	v, err := bencode.DecodeBytes(body)
	if err != nil {
		return nil, &Error{Kind: KindDecode, Err: err}
	}

	d, ok := v.(*bencode.Dict)
	if !ok {
		return nil, &Error{Kind: KindDecode, Err: errors.New("response is not a dictionary")}
	}

	if reason, ok := d.Bytes("failure reason"); ok {
		return nil, &Error{Kind: KindFailure, Err: errors.New(string(reason))}
	}

	interval, ok := d.Int("interval")
	if !ok {
		return nil, &Error{Kind: KindDecode, Err: errors.New("missing or invalid interval")}
	}

	peersValue, ok := d.Get("peers")
	if !ok {
		return nil, &Error{Kind: KindDecode, Err: errors.New("missing peers")}
	}

	var peers peer.Peers
	if err := peers.UnmarshalBencode(peersValue); err != nil {
		return nil, &Error{Kind: KindDecode, Err: err}
	}

	resp := &Response{
		Interval: interval,
		Peers:    peers,
	}
	resp.MinInterval, _ = d.Int("min interval")
	resp.Complete, _ = d.Int("complete")
	resp.Incomplete, _ = d.Int("incomplete")
	if warning, ok := d.Bytes("warning message"); ok {
		resp.WarningMessage = string(warning)
		slog.Warn("Tracker warning", "message", resp.WarningMessage)
	}

	return resp, nil
}
