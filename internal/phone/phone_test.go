package phone

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	cases := map[string]string{
		"555-123-4567":      "+15551234567",
		"15551234567":       "+15551234567",
		"(555) 123 4567":    "+15551234567",
		"+1 555 123 4567":   "+15551234567",
		"+447911123456":     "+447911123456",
		"447911123456":      "+447911123456",
		"  +447911123456  ": "+447911123456",
		"+abc":              "+abc",
	}
	for raw, want := range cases {
		assert.Equal(t, want, Normalize(raw), "Normalize(%q)", raw)
	}
}

func TestNormalizeIsIdempotent(t *testing.T) {
	inputs := []string{
		"+15551234567", "+447911123456", "+1234567890", "+49301234567", "+12",
		"555-123-4567", "+5551234567", "(555) 123 4567", "447911123456", "+abc", "",
	}
	for _, s := range inputs {
		once := Normalize(s)
		assert.Equal(t, once, Normalize(once), "Normalize(Normalize(%q))", s)
	}
}

func TestNormalizeTenDigitFormsShareOneKey(t *testing.T) {
	want := Normalize("555-123-4567")
	require.Equal(t, "+15551234567", want)
	assert.Equal(t, want, Normalize("+5551234567"))
	assert.Equal(t, want, Normalize("+1 (555) 123-4567"))
	// Ten digits after a plus are read as a national number, not kept verbatim.
	assert.Equal(t, "+11234567890", Normalize("+1234567890"))
}

func TestIsValid(t *testing.T) {
	assert.True(t, IsValid("+15551234567"))
	assert.True(t, IsValid("+12"))
	assert.True(t, IsValid("+123456789012345"))

	assert.False(t, IsValid("5551234567"))
	assert.False(t, IsValid("+0123456789"))
	assert.False(t, IsValid("+1"))
	assert.False(t, IsValid("+1234567890123456"))
	assert.False(t, IsValid("+abc"))
	assert.False(t, IsValid(""))
}

func TestCanonical(t *testing.T) {
	got, err := Canonical("555.123.4567")
	require.NoError(t, err)
	assert.Equal(t, "+15551234567", got)

	_, err = Canonical("+abc")
	assert.ErrorIs(t, err, ErrInvalid)

	_, err = Canonical("")
	assert.ErrorIs(t, err, ErrInvalid)

	_, err = Canonical("0")
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestMask(t *testing.T) {
	assert.Equal(t, "+1***-***-4567", Mask("+15551234567"))
	assert.Equal(t, "+1***45", Mask("+12345"))
	assert.Equal(t, "+12", Mask("+12"))
}
