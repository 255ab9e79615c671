package validation

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Location name failures. All are reported to clients as invalid input.
var (
	ErrNameEmpty  = errors.New("name is required")
	ErrNameLength = errors.New("name length out of range")
	ErrNameChars  = errors.New("name contains invalid characters")
)

// NormalizeLocationName collapses whitespace runs to single spaces and checks the
// result: rune length within [minLen, maxLen] and only letters, digits, spaces
// and the punctuation found in place names. maxLen <= 0 means unbounded.
func NormalizeLocationName(input string, minLen, maxLen int) (string, error) {
	name := strings.Join(strings.Fields(input), " ")
	n := utf8.RuneCountInString(name)
	if n == 0 {
		return "", ErrNameEmpty
	}
	if n < minLen || (maxLen > 0 && n > maxLen) {
		return "", fmt.Errorf("%w: %d runes, want %d..%d", ErrNameLength, n, minLen, maxLen)
	}
	if i := strings.IndexFunc(name, func(r rune) bool { return !placeNameRune(r) }); i >= 0 {
		r, _ := utf8.DecodeRuneInString(name[i:])
		return "", fmt.Errorf("%w: %q", ErrNameChars, r)
	}
	return name, nil
}

func placeNameRune(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.Is(unicode.Mn, r) {
		return true
	}
	return strings.ContainsRune(" ,-.'()", r)
}
