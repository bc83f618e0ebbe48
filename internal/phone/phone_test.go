package phone

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{name: "formatted international mobile", raw: "+55 11 99999-8888", want: "551199998888"},
		{name: "trunk prefix landline", raw: "011988887777", want: "551188887777"},
		{name: "domestic 11 digits", raw: "(21) 98765-4321", want: "552187654321"},
		{name: "domestic 10 digits", raw: "2133334444", want: "552133334444"},
		{name: "already normalized", raw: "551133334444", want: "551133334444"},
		{name: "13 digits without ninth digit kept", raw: "5511833334444", want: "5511833334444"},
		{name: "foreign 13 digits kept", raw: "4411933334444", want: "4411933334444"},
		{name: "empty", raw: "", want: ""},
		{name: "no digits", raw: "abc-()", want: ""},
		{name: "only zero", raw: "0", want: ""},
		{name: "short number not padded", raw: "12345", want: "12345"},
		{name: "single leading zero dropped", raw: "00123", want: "0123"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.raw))
		})
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{
		"+55 11 99999-8888",
		"011988887777",
		"21 3333-4444",
		"5511833334444",
		"12345",
	}
	for _, in := range inputs {
		once := Normalize(in)
		assert.Equal(t, once, Normalize(once), "input %q", in)
	}
}

func TestNormalizeOutputIsDigits(t *testing.T) {
	for _, in := range []string{"+1 (555) 010-9999", "tel: 11 9 8888 7777", "☎ 55-21-99876-5432"} {
		out := Normalize(in)
		assert.Equal(t, Digits(out), out)
	}
}

func TestNormalizerCustomCountryCode(t *testing.T) {
	n := Normalizer{CountryCode: "351"}
	assert.Equal(t, "3519123456789", n.Normalize("9123456789"))
	assert.Equal(t, "35111833334444", n.Normalize("35111833334444"))
}

func TestValid(t *testing.T) {
	assert.True(t, Valid("5511988887777"))
	assert.True(t, Valid("1234567890"))
	assert.False(t, Valid("123456789"))
	assert.False(t, Valid(""))
}

func TestMask(t *testing.T) {
	assert.Equal(t, "********8888", Mask("551199998888"))
	assert.Equal(t, "***", Mask("123"))
	assert.Equal(t, "", Mask(""))
}

func TestSetDefaultCountryCode(t *testing.T) {
	t.Cleanup(func() { SetDefaultCountryCode("") })

	SetDefaultCountryCode("351")
	assert.Equal(t, "3512123456789", Normalize("212 345 6789"))

	SetDefaultCountryCode("")
	assert.Equal(t, "552123456789", Normalize("212 345 6789"))
}
