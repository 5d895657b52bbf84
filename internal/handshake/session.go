package handshake

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
)

var errSessionUsed = errors.New("session already ran")

type State int

const (
	StateBuilt State = iota
	StateSent
	StateAwaitingReply
	StateEstablished
	StateRejected
)

func (s State) String() string {
	switch s {
	case StateBuilt:
		return "built"
	case StateSent:
		return "sent"
	case StateAwaitingReply:
		return "awaiting reply"
	case StateEstablished:
		return "established"
	case StateRejected:
		return "rejected"
	}
	return "unknown"
}

// Session performs one outbound handshake: a single write, a single read and
// a validation of the reply. It never retries.
type Session struct {
	rw     io.ReadWriter
	local  *Handshake
	remote *Handshake
	state  State
	logger *slog.Logger
}

func NewSession(rw io.ReadWriter, infoHash, peerID [20]byte) *Session {
	return &Session{
		rw:     rw,
		local:  New(infoHash, peerID),
		state:  StateBuilt,
		logger: slog.Default(),
	}
}

// WithLogger replaces the session logger, typically one carrying the peer address.
func (s *Session) WithLogger(logger *slog.Logger) *Session {
	s.logger = logger
	return s
}

func (s *Session) State() State {
	return s.state
}

// RemotePeerID is only meaningful once the session is established.
func (s *Session) RemotePeerID() [20]byte {
	if s.remote == nil {
		return [20]byte{}
	}
	return s.remote.PeerID
}

// Run sends the local handshake, reads the reply and checks that the peer
// serves the same torrent. It returns the remote peer id.
func (s *Session) Run() ([20]byte, error) {
	if s.state != StateBuilt {
		return [20]byte{}, &Error{Op: "run", Err: errSessionUsed}
	}

	if err := s.local.Write(s.rw); err != nil {
		return s.reject(err)
	}
	s.transition(StateSent)

	s.transition(StateAwaitingReply)
	reply, err := Read(s.rw)
	if err != nil {
		return s.reject(err)
	}

	if !bytes.Equal(reply.InfoHash[:], s.local.InfoHash[:]) {
		return s.reject(&Error{Op: "validate", Err: ErrInfoHashMismatch})
	}

	s.remote = reply
	s.transition(StateEstablished)

	return reply.PeerID, nil
}

func (s *Session) transition(next State) {
	s.logger.Debug("handshake state", "from", s.state, "to", next)
	s.state = next
}

func (s *Session) reject(err error) ([20]byte, error) {
	s.transition(StateRejected)
	s.logger.Debug("handshake rejected", "error", err)
	return [20]byte{}, err
}
