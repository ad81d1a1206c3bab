package pager

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// ErrInvalidCursor is returned by Cursor.Offset for tokens that are not
// non-negative decimal integers.
var ErrInvalidCursor = errors.New("invalid cursor")

// Cursor is an opaque pagination token. The zero value is NoCursor and means
// "start from the beginning".
//
// On the wire a present cursor is the decimal string of a non-negative offset.
// An empty token is present but invalid, so it is distinct from NoCursor.
type Cursor struct {
	token   string
	present bool
}

// NoCursor requests the first page.
var NoCursor = Cursor{}

// CursorFrom wraps a token received from a previous page.
func CursorFrom(token string) Cursor {
	return Cursor{token: token, present: true}
}

// OffsetCursor encodes offset as a cursor.
func OffsetCursor(offset int) Cursor {
	return CursorFrom(strconv.Itoa(offset))
}

// Present reports whether the cursor carries a token.
func (c Cursor) Present() bool {
	return c.present
}

// Token returns the raw token, or "" for NoCursor.
func (c Cursor) Token() string {
	return c.token
}

// Offset decodes the cursor. NoCursor decodes to 0.
func (c Cursor) Offset() (int, error) {
	if !c.present {
		return 0, nil
	}
	n, err := strconv.Atoi(c.token)
	if err != nil {
		return 0, fmt.Errorf("%w %q: %v", ErrInvalidCursor, c.token, err)
	}
	if n < 0 {
		return 0, fmt.Errorf("%w %q: negative offset", ErrInvalidCursor, c.token)
	}
	return n, nil
}

// String implements fmt.Stringer.
func (c Cursor) String() string {
	if !c.present {
		return "<none>"
	}
	return c.token
}

// MarshalJSON encodes NoCursor as null and a present cursor as its token.
func (c Cursor) MarshalJSON() ([]byte, error) {
	if !c.present {
		return []byte("null"), nil
	}
	return json.Marshal(c.token)
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (c *Cursor) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*c = NoCursor
		return nil
	}
	var token string
	if err := json.Unmarshal(data, &token); err != nil {
		return fmt.Errorf("decode cursor: %w", err)
	}
	*c = CursorFrom(token)
	return nil
}
