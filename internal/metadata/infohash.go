package metadata

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"

	"github.com/danferreira/metapeer/internal/bencode"
	rawbencode "github.com/zeebo/bencode"
)

// InfoHash is the SHA-1 of the canonically encoded info dictionary. The
// enclosing torrent fields never take part in it.
func InfoHash(info *Info) ([20]byte, error) {
	data, err := bencode.Marshal(info)
	if err != nil {
		return [20]byte{}, err
	}

	return sha1.Sum(data), nil
}

func (t *Torrent) InfoHash() ([20]byte, error) {
	return InfoHash(&t.Info)
}

// RawInfoHash hashes the info dictionary exactly as it appears in data,
// without re-encoding it. For canonically encoded files it matches InfoHash.
func RawInfoHash(data []byte) ([20]byte, error) {
	var raw struct {
		Info rawbencode.RawMessage `bencode:"info"`
	}

	if err := rawbencode.DecodeBytes(data, &raw); err != nil {
		return [20]byte{}, fmt.Errorf("failed to extract info dictionary: %w", err)
	}

	if len(raw.Info) == 0 {
		return [20]byte{}, &Error{Field: keyInfo, Err: ErrMissingField}
	}

	return sha1.Sum(raw.Info), nil
}

func HexHash(h [20]byte) string {
	return hex.EncodeToString(h[:])
}
