package peer

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"strconv"

	"github.com/danferreira/metapeer/internal/bencode"
)

// CompactSize is the length of one IPv4 peer in the compact format.
const CompactSize = 6

var ErrCompactLength = errors.New("compact peer list length is not a multiple of 6")

type Peer struct {
	IP   net.IP
	Port uint16
}

func (p Peer) Addr() string {
	return net.JoinHostPort(p.IP.String(), strconv.Itoa(int(p.Port)))
}

func (p Peer) String() string {
	return p.Addr()
}

// Unmarshal decodes a single 6-byte compact record.
func Unmarshal(buf []byte) (Peer, error) {
	if len(buf) != CompactSize {
		return Peer{}, errors.New("invalid peer address")
	}

	ip := make(net.IP, net.IPv4len)
	copy(ip, buf[:4])

	return Peer{
		IP:   ip,
		Port: binary.BigEndian.Uint16(buf[4:]),
	}, nil
}

// Peers is a tracker's peer list in the order it was received.
type Peers []Peer

func UnmarshalCompact(blob []byte) (Peers, error) {
	if len(blob)%CompactSize != 0 {
		return nil, fmt.Errorf("%w: got %d bytes", ErrCompactLength, len(blob))
	}

	peers := make(Peers, 0, len(blob)/CompactSize)
	for i := 0; i < len(blob); i += CompactSize {
		p, err := Unmarshal(blob[i : i+CompactSize])
		if err != nil {
			return nil, err
		}
		peers = append(peers, p)
	}

	return peers, nil
}

func (ps Peers) MarshalCompact() ([]byte, error) {
	buf := make([]byte, 0, len(ps)*CompactSize)
	for _, p := range ps {
		ip4 := p.IP.To4()
		if ip4 == nil {
			return nil, fmt.Errorf("peer %s is not an IPv4 address", p.IP)
		}
		buf = append(buf, ip4...)
		buf = binary.BigEndian.AppendUint16(buf, p.Port)
	}
	return buf, nil
}

func (ps *Peers) UnmarshalBencode(v bencode.Value) error {
	s, ok := v.(bencode.String)
	if !ok {
		return errors.New("peers is not a compact string")
	}

	peers, err := UnmarshalCompact(s)
	if err != nil {
		return err
	}

	*ps = peers
	return nil
}

func (ps Peers) MarshalBencode() (bencode.Value, error) {
	buf, err := ps.MarshalCompact()
	if err != nil {
		return nil, err
	}
	return bencode.String(buf), nil
}
