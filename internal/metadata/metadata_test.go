package metadata

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	jackpal "github.com/jackpal/bencode-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danferreira/metapeer/internal/bencode"
)

var zeroPiece = strings.Repeat("\x00", 20)

// canonicalInfo is name=test, piece length=16384, length=16384 and a single
// all-zero piece hash, with keys in canonical order.
var canonicalInfo = "d6:lengthi16384e4:name4:test12:piece lengthi16384e6:pieces20:" + zeroPiece + "e"

const expectedInfoHash = "1b91a3998543926b55fdc8cadc562bf1a0dc3447"

func torrentBytes(info string) []byte {
	return []byte("d8:announce30:http://localhost:8000/announce4:info" + info + "e")
}

func TestParseSingleFileTorrent(t *testing.T) {
	torrent, err := Parse(torrentBytes(canonicalInfo))

	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8000/announce", torrent.Announce)
	assert.Equal(t, "test", torrent.Info.Name)
	assert.Equal(t, int64(16384), torrent.Info.PieceLength)
	assert.Equal(t, int64(16384), torrent.Info.Length)
	assert.Equal(t, Pieces{{}}, torrent.Info.Pieces)
	assert.Nil(t, torrent.Info.Path)
	assert.Nil(t, torrent.Info.Extra)
	assert.NoError(t, torrent.Info.Validate())
}

func TestInfoHash(t *testing.T) {
	info := Info{
		Name:        "test",
		PieceLength: 16384,
		Length:      16384,
		Pieces:      Pieces{{}},
	}

	first, err := InfoHash(&info)
	require.NoError(t, err)
	second, err := InfoHash(&info)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, expectedInfoHash, HexHash(first))
}

func TestInfoHashMatchesIndependentEncoder(t *testing.T) {
	info := Info{
		Name:        "file_1.txt",
		PieceLength: 32768,
		Length:      100000,
		Pieces:      Pieces{{1}, {2}, {3}, {4}},
	}

	pieces, err := info.Pieces.MarshalBencode()
	require.NoError(t, err)

	var buf bytes.Buffer
	err = jackpal.Marshal(&buf, map[string]interface{}{
		"name":         info.Name,
		"pieces":       string(pieces.(bencode.String)),
		"piece length": info.PieceLength,
		"length":       info.Length,
	})
	require.NoError(t, err)

	v, err := info.MarshalBencode()
	require.NoError(t, err)
	assert.Equal(t, buf.Bytes(), bencode.Encode(v))
}

func TestTorrentInfoHashIgnoresAnnounce(t *testing.T) {
	a, err := Parse(torrentBytes(canonicalInfo))
	require.NoError(t, err)

	b := *a
	b.Announce = "http://other.example/announce"

	ha, err := a.InfoHash()
	require.NoError(t, err)
	hb, err := b.InfoHash()
	require.NoError(t, err)

	assert.Equal(t, ha, hb)
}

func TestRawInfoHash(t *testing.T) {
	data := torrentBytes(canonicalInfo)

	torrent, err := Parse(data)
	require.NoError(t, err)

	derived, err := torrent.InfoHash()
	require.NoError(t, err)

	raw, err := RawInfoHash(data)
	require.NoError(t, err)

	assert.Equal(t, derived, raw)
	assert.Equal(t, expectedInfoHash, HexHash(raw))
}

func TestInfoHashIsCanonical(t *testing.T) {
	unordered := "d4:name4:test6:lengthi16384e6:pieces20:" + zeroPiece + "12:piece lengthi16384ee"
	data := torrentBytes(unordered)

	torrent, err := Parse(data)
	require.NoError(t, err)

	derived, err := torrent.InfoHash()
	require.NoError(t, err)
	assert.Equal(t, expectedInfoHash, HexHash(derived))

	raw, err := RawInfoHash(data)
	require.NoError(t, err)
	assert.NotEqual(t, derived, raw)
}

func TestExtraInfoKeysKeepHash(t *testing.T) {
	info := "d6:lengthi16384e4:name4:test12:piece lengthi16384e6:pieces20:" + zeroPiece + "7:privatei1ee"
	data := torrentBytes(info)

	torrent, err := Parse(data)
	require.NoError(t, err)
	require.NotNil(t, torrent.Info.Extra)

	private, ok := torrent.Info.Extra.Int("private")
	assert.True(t, ok)
	assert.Equal(t, int64(1), private)

	derived, err := torrent.InfoHash()
	require.NoError(t, err)
	raw, err := RawInfoHash(data)
	require.NoError(t, err)

	assert.Equal(t, raw, derived)
	assert.NotEqual(t, expectedInfoHash, HexHash(derived))
}

func TestInfoHashRejectsNilExtra(t *testing.T) {
	info := Info{
		Name:        "test",
		PieceLength: 16384,
		Length:      16384,
		Pieces:      Pieces{{}},
		Extra:       bencode.NewDict(),
	}
	info.Extra.Set("source", nil)

	_, err := InfoHash(&info)

	assert.ErrorIs(t, err, bencode.ErrNilValue)
}

func TestMarshalRoundTrip(t *testing.T) {
	torrent, err := Parse(torrentBytes(canonicalInfo))
	require.NoError(t, err)
	torrent.Info.Path = [][]string{{"dir", "file.txt"}}

	data, err := torrent.Marshal()
	require.NoError(t, err)

	again, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, torrent, again)

	h1, err := torrent.InfoHash()
	require.NoError(t, err)
	h2, err := RawInfoHash(data)
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
}

func TestParseErrors(t *testing.T) {
	tests := map[string]struct {
		input []byte
		field string
		err   error
	}{
		"not a dictionary": {[]byte("le"), "torrent", ErrWrongType},
		"missing announce": {[]byte("d4:info" + canonicalInfo + "e"), "announce", ErrMissingField},
		"announce integer": {[]byte("d8:announcei1e4:info" + canonicalInfo + "e"), "announce", ErrWrongType},
		"missing info":     {[]byte("d8:announce3:urle"), "info", ErrMissingField},
		"info is a list":   {torrentBytes("le"), "info", ErrWrongType},
		"missing name": {
			torrentBytes("d6:lengthi1e12:piece lengthi1e6:pieces0:e"), "info.name", ErrMissingField,
		},
		"missing piece length": {
			torrentBytes("d6:lengthi1e4:name1:a6:pieces0:e"), "info.piece length", ErrMissingField,
		},
		"missing pieces": {
			torrentBytes("d6:lengthi1e4:name1:a12:piece lengthi1ee"), "info.pieces", ErrMissingField,
		},
		"missing length": {
			torrentBytes("d4:name1:a12:piece lengthi1e6:pieces0:e"), "info.length", ErrMissingField,
		},
		"piece length string": {
			torrentBytes("d6:lengthi1e4:name1:a12:piece length1:x6:pieces0:e"), "info.piece length", ErrWrongType,
		},
		"pieces not multiple of 20": {
			torrentBytes("d6:lengthi1e4:name1:a12:piece lengthi1e6:pieces19:" + strings.Repeat("x", 19) + "e"),
			"info.pieces", ErrPiecesLength,
		},
		"path not a list of lists": {
			torrentBytes("d6:lengthi1e4:name1:a4:pathl1:xe12:piece lengthi1e6:pieces0:e"), "info.path", ErrWrongType,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(tt.input)

			var metaErr *Error
			require.True(t, errors.As(err, &metaErr), "expected metadata error, got %v", err)
			assert.Equal(t, tt.field, metaErr.Field)
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestParseMalformedBencode(t *testing.T) {
	_, err := Parse([]byte("d8:announce"))

	var decodeErr *bencode.DecodeError
	assert.True(t, errors.As(err, &decodeErr))
}

func TestEmptyPathIsCallerResponsibility(t *testing.T) {
	info := "d6:lengthi16384e4:name4:test4:pathle12:piece lengthi16384e6:pieces20:" + zeroPiece + "e"

	torrent, err := Parse(torrentBytes(info))
	require.NoError(t, err)

	assert.NotNil(t, torrent.Info.Path)
	assert.ErrorIs(t, torrent.Info.Validate(), ErrEmptyPath)
}

func TestValidate(t *testing.T) {
	tests := map[string]struct {
		info Info
		err  error
	}{
		"valid":              {Info{PieceLength: 10, Length: 25, Pieces: make(Pieces, 3)}, nil},
		"zero piece length":  {Info{PieceLength: 0, Length: 25}, ErrPieceLength},
		"too few pieces":     {Info{PieceLength: 10, Length: 25, Pieces: make(Pieces, 2)}, ErrPieceCount},
		"too many pieces":    {Info{PieceLength: 10, Length: 20, Pieces: make(Pieces, 3)}, ErrPieceCount},
		"multi-file segment": {Info{PieceLength: 10, Length: 10, Pieces: make(Pieces, 1), Path: [][]string{{"a"}}}, nil},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			err := tt.info.Validate()
			if tt.err == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.err)
			}
		})
	}
}

func TestPieceSize(t *testing.T) {
	info := Info{PieceLength: 16384, Length: 40000, Pieces: make(Pieces, 3)}

	assert.Equal(t, 3, info.NumPieces())
	assert.Equal(t, int64(16384), info.PieceSize(0))
	assert.Equal(t, int64(16384), info.PieceSize(1))
	assert.Equal(t, int64(7232), info.PieceSize(2))
	assert.Equal(t, int64(0), info.PieceSize(3))
	assert.Equal(t, int64(40000), info.TotalLength())
}

func TestParseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "single_file.torrent")
	require.NoError(t, os.WriteFile(path, torrentBytes(canonicalInfo), 0o644))

	torrent, err := ParseFile(path)
	require.NoError(t, err)

	u, err := torrent.AnnounceURL()
	require.NoError(t, err)
	assert.Equal(t, "localhost:8000", u.Host)

	_, err = ParseFile(filepath.Join(t.TempDir(), "missing.torrent"))
	assert.Error(t, err)
}

func TestPiecesRejectsNonMultipleOf20(t *testing.T) {
	var p Pieces

	err := p.UnmarshalBencode(bencode.String(strings.Repeat("a", 19)))
	assert.ErrorIs(t, err, ErrPiecesLength)

	err = p.UnmarshalBencode(bencode.String(strings.Repeat("a", 40)))
	require.NoError(t, err)
	assert.Len(t, p, 2)
}
