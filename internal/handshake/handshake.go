package handshake

import (
	"errors"
	"fmt"
	"io"
)

const ProtocolIdentifier = "BitTorrent protocol"

// Length is the size of a handshake on the wire.
const Length = 1 + len(ProtocolIdentifier) + 8 + 20 + 20

var (
	ErrProtocolLength   = errors.New("invalid protocol length in handshake")
	ErrProtocol         = errors.New("invalid protocol identifier in handshake")
	ErrInfoHashMismatch = errors.New("infoHash received on handshake is different")
	ErrUnknownTorrent   = errors.New("no torrent with the received infoHash")
)

// Error wraps a failure during one step of the handshake.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("handshake %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

type Handshake struct {
	Reserved [8]byte
	InfoHash [20]byte
	PeerID   [20]byte
}

func New(infoHash, peerID [20]byte) *Handshake {
	return &Handshake{
		InfoHash: infoHash,
		PeerID:   peerID,
	}
}

func (h *Handshake) Serialize() []byte {
	buf := make([]byte, Length)
	buf[0] = byte(len(ProtocolIdentifier))
	curr := 1
	curr += copy(buf[curr:], ProtocolIdentifier)
	curr += copy(buf[curr:], h.Reserved[:])
	curr += copy(buf[curr:], h.InfoHash[:])
	copy(buf[curr:], h.PeerID[:])
	return buf
}

// Write sends the whole handshake. Anything less than Length bytes is an error.
func (h *Handshake) Write(writer io.Writer) error {
	buf := h.Serialize()
	n, err := writer.Write(buf)
	if err != nil {
		return &Error{Op: "write", Err: err}
	}
	if n != len(buf) {
		return &Error{Op: "write", Err: io.ErrShortWrite}
	}
	return nil
}

// Unmarshal parses a handshake and checks the protocol fields. The info-hash
// is not checked here.
func Unmarshal(buf []byte) (*Handshake, error) {
	if len(buf) != Length {
		return nil, &Error{Op: "parse", Err: fmt.Errorf("expected %d bytes, got %d", Length, len(buf))}
	}

	if int(buf[0]) != len(ProtocolIdentifier) {
		return nil, &Error{Op: "parse", Err: ErrProtocolLength}
	}

	curr := 1
	if string(buf[curr:curr+len(ProtocolIdentifier)]) != ProtocolIdentifier {
		return nil, &Error{Op: "parse", Err: ErrProtocol}
	}
	curr += len(ProtocolIdentifier)

	h := &Handshake{}
	curr += copy(h.Reserved[:], buf[curr:])
	curr += copy(h.InfoHash[:], buf[curr:])
	copy(h.PeerID[:], buf[curr:])

	return h, nil
}

// Read reads exactly Length bytes from reader and parses them.
func Read(reader io.Reader) (*Handshake, error) {
	buf := make([]byte, Length)

	if _, err := io.ReadFull(reader, buf); err != nil {
		return nil, &Error{Op: "read", Err: err}
	}

	return Unmarshal(buf)
}
