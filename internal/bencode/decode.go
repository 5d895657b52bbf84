package bencode

import (
	"errors"
	"fmt"
	"math"
)

// MaxDepth bounds the nesting of lists and dictionaries.
const MaxDepth = 256

var (
	ErrMaxDepth     = errors.New("nesting too deep")
	ErrTrailingData = errors.New("trailing data after value")
)

type DecodeError struct {
	Offset int
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("bencode: %s at offset %d: %v", e.Reason, e.Offset, e.Err)
	}
	return fmt.Sprintf("bencode: %s at offset %d", e.Reason, e.Offset)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

type decoder struct {
	data  []byte
	pos   int
	depth int
}

// Decode reads one value from the front of data and returns it together with
// the bytes that follow it.
func Decode(data []byte) (Value, []byte, error) {
	d := &decoder{data: data}
	v, err := d.value()
	if err != nil {
		return nil, data, err
	}
	return v, data[d.pos:], nil
}

// DecodeBytes decodes data, which must hold exactly one value.
func DecodeBytes(data []byte) (Value, error) {
	v, rest, err := Decode(data)
	if err != nil {
		return nil, err
	}
	if len(rest) > 0 {
		return nil, &DecodeError{Offset: len(data) - len(rest), Reason: "unexpected byte", Err: ErrTrailingData}
	}
	return v, nil
}

func (d *decoder) fail(reason string) error {
	return &DecodeError{Offset: d.pos, Reason: reason}
}

func (d *decoder) value() (Value, error) {
	if d.pos >= len(d.data) {
		return nil, d.fail("unexpected end of input")
	}

	switch c := d.data[d.pos]; {
	case c == 'i':
		return d.integer()
	case c >= '0' && c <= '9':
		return d.string()
	case c == 'l':
		return d.list()
	case c == 'd':
		return d.dict()
	default:
		return nil, d.fail(fmt.Sprintf("unhandled value %q", c))
	}
}

func (d *decoder) integer() (Value, error) {
	start := d.pos
	d.pos++ // 'i'

	end := d.pos
	for end < len(d.data) && d.data[end] != 'e' {
		end++
	}
	if end == len(d.data) {
		d.pos = start
		return nil, d.fail("unterminated integer")
	}

	n, err := parseInt(d.data[d.pos:end], true)
	if err != nil {
		return nil, &DecodeError{Offset: d.pos, Reason: "invalid integer", Err: err}
	}

	d.pos = end + 1
	return Integer(n), nil
}

func (d *decoder) string() (Value, error) {
	start := d.pos

	colon := d.pos
	for colon < len(d.data) && d.data[colon] != ':' {
		colon++
	}
	if colon == len(d.data) {
		return nil, d.fail("missing string length separator")
	}

	n, err := parseInt(d.data[d.pos:colon], false)
	if err != nil {
		return nil, &DecodeError{Offset: start, Reason: "invalid string length", Err: err}
	}

	d.pos = colon + 1
	if n > int64(len(d.data)-d.pos) {
		d.pos = start
		return nil, d.fail(fmt.Sprintf("truncated string of length %d", n))
	}

	s := make([]byte, n)
	copy(s, d.data[d.pos:d.pos+int(n)])
	d.pos += int(n)
	return String(s), nil
}

func (d *decoder) enter() error {
	d.depth++
	if d.depth > MaxDepth {
		return &DecodeError{Offset: d.pos, Reason: "too many nested values", Err: ErrMaxDepth}
	}
	return nil
}

func (d *decoder) list() (Value, error) {
	if err := d.enter(); err != nil {
		return nil, err
	}
	defer func() { d.depth-- }()

	start := d.pos
	d.pos++ // 'l'

	l := List{}
	for {
		if d.pos >= len(d.data) {
			d.pos = start
			return nil, d.fail("unterminated list")
		}
		if d.data[d.pos] == 'e' {
			d.pos++
			return l, nil
		}

		v, err := d.value()
		if err != nil {
			return nil, err
		}
		l = append(l, v)
	}
}

func (d *decoder) dict() (Value, error) {
	if err := d.enter(); err != nil {
		return nil, err
	}
	defer func() { d.depth-- }()

	start := d.pos
	d.pos++ // 'd'

	dict := NewDict()
	for {
		if d.pos >= len(d.data) {
			d.pos = start
			return nil, d.fail("unterminated dictionary")
		}
		if d.data[d.pos] == 'e' {
			d.pos++
			return dict, nil
		}

		if c := d.data[d.pos]; c < '0' || c > '9' {
			return nil, d.fail("dictionary key is not a string")
		}
		k, err := d.string()
		if err != nil {
			return nil, err
		}

		v, err := d.value()
		if err != nil {
			return nil, err
		}
		dict.Set(string(k.(String)), v)
	}
}

var (
	errEmptyNumber    = errors.New("empty number")
	errLeadingZero    = errors.New("leading zero")
	errNegativeZero   = errors.New("negative zero")
	errNotDigit       = errors.New("non-digit character")
	errNumberOverflow = errors.New("number out of range")
)

// parseInt parses a strict decimal: no '+', no leading zeros, no "-0".
func parseInt(b []byte, signed bool) (int64, error) {
	neg := false
	if signed && len(b) > 0 && b[0] == '-' {
		neg = true
		b = b[1:]
	}
	if len(b) == 0 {
		return 0, errEmptyNumber
	}
	if b[0] == '0' && len(b) > 1 {
		return 0, errLeadingZero
	}
	if neg && len(b) == 1 && b[0] == '0' {
		return 0, errNegativeZero
	}

	var n uint64
	limit := uint64(math.MaxInt64)
	if neg {
		limit++
	}
	for _, c := range b {
		if c < '0' || c > '9' {
			return 0, errNotDigit
		}
		digit := uint64(c - '0')
		if n > (limit-digit)/10 {
			return 0, errNumberOverflow
		}
		n = n*10 + digit
	}

	if neg {
		return -int64(n), nil
	}
	return int64(n), nil
}
