package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// Resolution is a pixel size, written as "WxH".
type Resolution struct {
	Width  int
	Height int
}

// ParseResolution parses a "WxH" string such as "3500x3500".
func ParseResolution(s string) (Resolution, error) {
	w, h, ok := strings.Cut(strings.ToLower(strings.TrimSpace(s)), "x")
	if !ok {
		return Resolution{}, fmt.Errorf("%w: %q", ErrInvalidResolution, s)
	}
	width, err := strconv.Atoi(w)
	if err != nil {
		return Resolution{}, fmt.Errorf("%w: %q", ErrInvalidResolution, s)
	}
	height, err := strconv.Atoi(h)
	if err != nil {
		return Resolution{}, fmt.Errorf("%w: %q", ErrInvalidResolution, s)
	}
	r := Resolution{Width: width, Height: height}
	if !r.Valid() {
		return Resolution{}, fmt.Errorf("%w: %q", ErrInvalidResolution, s)
	}
	return r, nil
}

// Valid reports whether both dimensions are positive.
func (r Resolution) Valid() bool {
	return r.Width > 0 && r.Height > 0
}

// String formats r as "WxH".
func (r Resolution) String() string {
	return fmt.Sprintf("%dx%d", r.Width, r.Height)
}
