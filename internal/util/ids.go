package util

import (
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// NewID returns a 21 character URL-safe nanoid.
func NewID() string {
	id, err := gonanoid.New()
	if err != nil {
		// only fails when crypto/rand does
		panic(err)
	}
	return id
}

// IsNanoid reports whether s has the shape produced by NewID.
func IsNanoid(s string) bool {
	if len(s) != 21 {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '_', c == '-':
		default:
			return false
		}
	}
	return true
}
