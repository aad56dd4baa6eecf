package auth

import (
	"crypto/rand"
	"math/big"
	"strings"

	"github.com/google/uuid"
)

const (
	minUsernameBase = 3
	maxUsernameBase = 25
	usernameSuffix  = 3
)

// generateUsername derives a handle from a member's names: lowercase ASCII
// letters and digits of first+last, padded to three characters, capped at 25,
// followed by a three digit suffix.
func generateUsername(first, last string) string {
	base := cleanName(first) + cleanName(last)
	if len(base) < minUsernameBase {
		base += randomDigits(minUsernameBase)
	}
	if len(base) > maxUsernameBase {
		base = base[:maxUsernameBase]
	}
	return base + randomDigits(usernameSuffix)
}

// disambiguate appends a six character random tag to a taken username.
func disambiguate(username string) string {
	tag := strings.ReplaceAll(uuid.NewString(), "-", "")[:6]
	return username + "_" + tag
}

func cleanName(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func randomDigits(n int) string {
	ten := big.NewInt(10)
	var b strings.Builder
	for i := 0; i < n; i++ {
		d, err := rand.Int(rand.Reader, ten)
		if err != nil {
			// crypto/rand does not fail on supported platforms.
			panic(err)
		}
		b.WriteByte(byte('0' + d.Int64()))
	}
	return b.String()
}
