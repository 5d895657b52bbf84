package metadata

import (
	"slices"

	"github.com/danferreira/metapeer/internal/bencode"
)

const HashSize = 20

// Pieces holds the SHA-1 hash of every piece, in piece order.
type Pieces [][HashSize]byte

func (p *Pieces) UnmarshalBencode(v bencode.Value) error {
	s, ok := v.(bencode.String)
	if !ok {
		return ErrWrongType
	}
	if len(s)%HashSize != 0 {
		return ErrPiecesLength
	}

	chunks := slices.Collect(slices.Chunk([]byte(s), HashSize))
	pieces := make(Pieces, 0, len(chunks))
	for _, chunk := range chunks {
		var h [HashSize]byte
		copy(h[:], chunk)
		pieces = append(pieces, h)
	}

	*p = pieces
	return nil
}

func (p Pieces) MarshalBencode() (bencode.Value, error) {
	buf := make([]byte, 0, len(p)*HashSize)
	for _, h := range p {
		buf = append(buf, h[:]...)
	}
	return bencode.String(buf), nil
}
