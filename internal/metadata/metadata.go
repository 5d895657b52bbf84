package metadata

import (
	"errors"
	"fmt"
	"net/url"
	"os"

	"github.com/danferreira/metapeer/internal/bencode"
)

var (
	ErrMissingField = errors.New("missing field")
	ErrWrongType    = errors.New("wrong type")
	ErrPiecesLength = errors.New("pieces length is not a multiple of 20")
	ErrEmptyPath    = errors.New("empty path list")
	ErrPieceCount   = errors.New("piece count does not match length")
	ErrPieceLength  = errors.New("piece length must be positive")
)

// Error reports a metainfo field that is missing or malformed.
type Error struct {
	Field string
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("metadata: %s: %v", e.Field, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

type Torrent struct {
	Announce string
	Info     Info
}

type Info struct {
	// Name is the suggested file name to save as.
	Name string
	// PieceLength is the number of bytes per piece. Only the last piece may be shorter.
	PieceLength int64
	Pieces      Pieces
	// Length is the size of the file in bytes.
	Length int64
	// Path lists subdirectory names ending with the file name. It is kept
	// for multi-file layouts but nothing here interprets it.
	Path [][]string
	// Extra holds info keys the model does not know, so that re-encoding
	// produces the same info-hash.
	Extra *bencode.Dict
}

const (
	keyAnnounce    = "announce"
	keyInfo        = "info"
	keyName        = "name"
	keyPieceLength = "piece length"
	keyPieces      = "pieces"
	keyLength      = "length"
	keyPath        = "path"
)

func Parse(data []byte) (*Torrent, error) {
	t := &Torrent{}
	if err := bencode.Unmarshal(data, t); err != nil {
		return nil, err
	}
	return t, nil
}

func ParseFile(path string) (*Torrent, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	return Parse(data)
}

func (t *Torrent) UnmarshalBencode(v bencode.Value) error {
	d, ok := v.(*bencode.Dict)
	if !ok {
		return &Error{Field: "torrent", Err: ErrWrongType}
	}

	announce, err := requireBytes(d, keyAnnounce, keyAnnounce)
	if err != nil {
		return err
	}

	infoValue, ok := d.Get(keyInfo)
	if !ok {
		return &Error{Field: keyInfo, Err: ErrMissingField}
	}

	var info Info
	if err := info.UnmarshalBencode(infoValue); err != nil {
		return err
	}

	t.Announce = string(announce)
	t.Info = info
	return nil
}

func (t *Torrent) MarshalBencode() (bencode.Value, error) {
	info, err := t.Info.MarshalBencode()
	if err != nil {
		return nil, err
	}

	d := bencode.NewDict()
	d.Set(keyAnnounce, bencode.String(t.Announce))
	d.Set(keyInfo, info)
	return d, nil
}

// Marshal returns the canonical encoding of the torrent.
func (t *Torrent) Marshal() ([]byte, error) {
	return bencode.Marshal(t)
}

func (t *Torrent) AnnounceURL() (*url.URL, error) {
	u, err := url.Parse(t.Announce)
	if err != nil {
		return nil, &Error{Field: keyAnnounce, Err: err}
	}
	return u, nil
}

func (i *Info) UnmarshalBencode(v bencode.Value) error {
	d, ok := v.(*bencode.Dict)
	if !ok {
		return &Error{Field: keyInfo, Err: ErrWrongType}
	}

	name, err := requireBytes(d, keyName, "info.name")
	if err != nil {
		return err
	}

	pieceLength, err := requireInt(d, keyPieceLength, "info.piece length")
	if err != nil {
		return err
	}

	length, err := requireInt(d, keyLength, "info.length")
	if err != nil {
		return err
	}

	piecesValue, ok := d.Get(keyPieces)
	if !ok {
		return &Error{Field: "info.pieces", Err: ErrMissingField}
	}

	var pieces Pieces
	if err := pieces.UnmarshalBencode(piecesValue); err != nil {
		return &Error{Field: "info.pieces", Err: err}
	}

	var path [][]string
	if pathValue, ok := d.Get(keyPath); ok {
		path, err = decodePath(pathValue)
		if err != nil {
			return err
		}
	}

	extra := bencode.NewDict()
	for _, k := range d.Keys() {
		switch k {
		case keyName, keyPieceLength, keyPieces, keyLength, keyPath:
			continue
		}
		value, _ := d.Get(k)
		extra.Set(k, value)
	}

	*i = Info{
		Name:        string(name),
		PieceLength: pieceLength,
		Pieces:      pieces,
		Length:      length,
		Path:        path,
	}
	if extra.Len() > 0 {
		i.Extra = extra
	}

	return nil
}

func (i *Info) MarshalBencode() (bencode.Value, error) {
	d := bencode.NewDict()
	for _, k := range i.Extra.Keys() {
		value, _ := i.Extra.Get(k)
		d.Set(k, value)
	}

	pieces, err := i.Pieces.MarshalBencode()
	if err != nil {
		return nil, err
	}

	d.Set(keyName, bencode.String(i.Name))
	d.Set(keyPieceLength, bencode.Integer(i.PieceLength))
	d.Set(keyPieces, pieces)
	d.Set(keyLength, bencode.Integer(i.Length))

	if i.Path != nil {
		outer := make(bencode.List, 0, len(i.Path))
		for _, segments := range i.Path {
			inner := make(bencode.List, 0, len(segments))
			for _, s := range segments {
				inner = append(inner, bencode.String(s))
			}
			outer = append(outer, inner)
		}
		d.Set(keyPath, outer)
	}

	return d, nil
}

// Validate runs the checks Parse leaves to the caller: a present but empty
// path list, a non-positive piece length and a piece count that does not
// cover the file length.
func (i *Info) Validate() error {
	if i.Path != nil && len(i.Path) == 0 {
		return &Error{Field: "info.path", Err: ErrEmptyPath}
	}

	if i.PieceLength <= 0 {
		return &Error{Field: "info.piece length", Err: ErrPieceLength}
	}

	if want := (i.Length + i.PieceLength - 1) / i.PieceLength; int64(len(i.Pieces)) != want {
		return &Error{Field: "info.pieces", Err: fmt.Errorf("%w: have %d, want %d", ErrPieceCount, len(i.Pieces), want)}
	}

	return nil
}

func (i *Info) NumPieces() int {
	return len(i.Pieces)
}

// PieceSize returns the length of piece index; the last piece may be shorter.
func (i *Info) PieceSize(index int) int64 {
	begin := int64(index) * i.PieceLength
	end := begin + i.PieceLength
	if end > i.Length {
		end = i.Length
	}
	if end < begin {
		return 0
	}
	return end - begin
}

func (i *Info) TotalLength() int64 {
	return i.Length
}

func requireBytes(d *bencode.Dict, key, field string) ([]byte, error) {
	v, ok := d.Get(key)
	if !ok {
		return nil, &Error{Field: field, Err: ErrMissingField}
	}
	s, ok := v.(bencode.String)
	if !ok {
		return nil, &Error{Field: field, Err: ErrWrongType}
	}
	return []byte(s), nil
}

func requireInt(d *bencode.Dict, key, field string) (int64, error) {
	v, ok := d.Get(key)
	if !ok {
		return 0, &Error{Field: field, Err: ErrMissingField}
	}
	n, ok := v.(bencode.Integer)
	if !ok {
		return 0, &Error{Field: field, Err: ErrWrongType}
	}
	return int64(n), nil
}

func decodePath(v bencode.Value) ([][]string, error) {
	outer, ok := v.(bencode.List)
	if !ok {
		return nil, &Error{Field: "info.path", Err: ErrWrongType}
	}

	path := make([][]string, 0, len(outer))
	for _, e := range outer {
		inner, ok := e.(bencode.List)
		if !ok {
			return nil, &Error{Field: "info.path", Err: ErrWrongType}
		}

		segments := make([]string, 0, len(inner))
		for _, s := range inner {
			b, ok := s.(bencode.String)
			if !ok {
				return nil, &Error{Field: "info.path", Err: ErrWrongType}
			}
			segments = append(segments, string(b))
		}
		path = append(path, segments)
	}

	return path, nil
}
