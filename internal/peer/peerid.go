package peer

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

const PeerIDPrefix = "-MP0001-"

type PeerID = [20]byte

// NewPeerID returns an Azureus-style id: the client prefix followed by 12
// random printable characters.
func NewPeerID() (PeerID, error) {
	var id PeerID
	copy(id[:], PeerIDPrefix)

	var tail [6]byte
	if _, err := rand.Read(tail[:]); err != nil {
		return id, fmt.Errorf("failed to generate peer id: %w", err)
	}
	hex.Encode(id[len(PeerIDPrefix):], tail[:])

	return id, nil
}

// ParsePeerID accepts a 20-character id as given on the command line.
func ParsePeerID(s string) (PeerID, error) {
	var id PeerID
	if len(s) != len(id) {
		return id, fmt.Errorf("peer id must be %d bytes, got %d", len(id), len(s))
	}
	copy(id[:], s)
	return id, nil
}
