package bencode

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
)

// ErrNilValue is returned when a list element or dictionary value is nil.
var ErrNilValue = errors.New("bencode: nil value")

// Encode returns the canonical encoding of v: dictionary keys in ascending
// byte order and integers in minimal decimal form. It panics if v holds a nil
// Value anywhere; Marshal and EncodeTo report that as ErrNilValue instead.
func Encode(v Value) []byte {
	b, err := encode(v)
	if err != nil {
		panic(err)
	}
	return b
}

func EncodeTo(w io.Writer, v Value) error {
	bw := bufio.NewWriter(w)
	if err := writeValue(bw, v); err != nil {
		return err
	}
	return bw.Flush()
}

func encode(v Value) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeValue(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

type byteWriter interface {
	io.Writer
	io.ByteWriter
	io.StringWriter
}

func writeValue(w byteWriter, v Value) error {
	switch v := v.(type) {
	case nil:
		return ErrNilValue
	case Integer:
		w.WriteByte('i')
		w.WriteString(strconv.FormatInt(int64(v), 10))
		w.WriteByte('e')
	case String:
		writeString(w, v)
	case List:
		w.WriteByte('l')
		for i, e := range v {
			if err := writeValue(w, e); err != nil {
				return fmt.Errorf("list index %d: %w", i, err)
			}
		}
		w.WriteByte('e')
	case *Dict:
		w.WriteByte('d')
		for _, k := range v.SortedKeys() {
			writeString(w, []byte(k))
			if err := writeValue(w, v.values[k]); err != nil {
				return fmt.Errorf("key %q: %w", k, err)
			}
		}
		w.WriteByte('e')
	default:
		return fmt.Errorf("bencode: unknown value type %T", v)
	}
	return nil
}

func writeString(w byteWriter, s []byte) {
	w.WriteString(strconv.Itoa(len(s)))
	w.WriteByte(':')
	w.Write(s)
}

// Marshaler is implemented by types that describe themselves as a Value.
type Marshaler interface {
	MarshalBencode() (Value, error)
}

// Unmarshaler is implemented by types that build themselves from a Value.
type Unmarshaler interface {
	UnmarshalBencode(Value) error
}

func Marshal(m Marshaler) ([]byte, error) {
	v, err := m.MarshalBencode()
	if err != nil {
		return nil, err
	}
	return encode(v)
}

func Unmarshal(data []byte, u Unmarshaler) error {
	v, err := DecodeBytes(data)
	if err != nil {
		return err
	}
	return u.UnmarshalBencode(v)
}
