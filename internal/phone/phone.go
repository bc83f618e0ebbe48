package phone

import (
	"strings"
	"sync/atomic"
)

// DefaultCountryCode is the Brazilian calling code prepended to domestic numbers
const DefaultCountryCode = "55"

// MinDigits is the minimum length of a usable normalized number
const MinDigits = 10

// Normalizer converts free-form phone input into digits-only international form
type Normalizer struct {
	CountryCode string
}

var defaultNormalizer atomic.Pointer[Normalizer]

// SetDefaultCountryCode changes the country code used by Normalize.
// An empty code restores DefaultCountryCode.
func SetDefaultCountryCode(cc string) {
	defaultNormalizer.Store(&Normalizer{CountryCode: cc})
}

// Normalize normalizes raw using the default country code
func Normalize(raw string) string {
	if n := defaultNormalizer.Load(); n != nil {
		return n.Normalize(raw)
	}
	return Normalizer{}.Normalize(raw)
}

// Normalize strips formatting, adds the country code to domestic numbers
// and removes the mobile ninth digit from full-length numbers.
// The result is not length checked; callers use Valid for that.
func (n Normalizer) Normalize(raw string) string {
	digits := Digits(raw)
	if digits == "" {
		return ""
	}

	// Trunk prefix
	digits = strings.TrimPrefix(digits, "0")

	cc := n.CountryCode
	if cc == "" {
		cc = DefaultCountryCode
	}

	if len(digits) == 10 || len(digits) == 11 {
		digits = cc + digits
	}

	// CC + 2-digit area code + 9 + 8 digits
	ninth := len(cc) + 2
	if len(digits) == len(cc)+11 && strings.HasPrefix(digits, cc) && digits[ninth] == '9' {
		digits = digits[:ninth] + digits[ninth+1:]
	}

	return digits
}

// Digits returns only the ASCII digits of s
func Digits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] >= '0' && s[i] <= '9' {
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

// Valid reports whether a normalized number is long enough to be dialed
func Valid(normalized string) bool {
	return len(normalized) >= MinDigits
}

// Mask hides all but the last four digits, for logging
func Mask(number string) string {
	if number == "" {
		return ""
	}
	if len(number) <= 4 {
		return strings.Repeat("*", len(number))
	}
	return strings.Repeat("*", len(number)-4) + number[len(number)-4:]
}
