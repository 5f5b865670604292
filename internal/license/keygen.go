package license

import (
	"crypto/rand"
	"fmt"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// License key format: EDU-XXXX-XXXX-XXXX. The first two groups are
// random; the final group is a keyed BLAKE2b MAC over them, so the
// validation service can check authenticity without a registry lookup.
const (
	KeyPrefix    = "EDU"
	keyCharset   = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	keyRandomLen = 8
	keyMACLen    = 4
)

// KeyGenerator creates and verifies product license keys.
type KeyGenerator struct {
	secret []byte
}

// NewKeyGenerator creates a generator with the given signing secret.
func NewKeyGenerator(secret string) *KeyGenerator {
	return &KeyGenerator{secret: []byte(secret)}
}

// Generate produces a new formatted license key.
func (g *KeyGenerator) Generate() (string, error) {
	buf := make([]byte, keyRandomLen)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate key: %w", err)
	}

	random := make([]byte, keyRandomLen)
	for i, b := range buf {
		random[i] = keyCharset[int(b)%len(keyCharset)]
	}

	body := KeyPrefix + string(random)
	mac := g.mac(body)
	return formatKey(body + mac), nil
}

// Verify reports whether the key carries a valid authenticity MAC.
// Manually entered keys that don't follow the generated format are not
// verifiable and return false.
func (g *KeyGenerator) Verify(key string) bool {
	clean := NormalizeKey(key)
	if len(clean) != len(KeyPrefix)+keyRandomLen+keyMACLen {
		return false
	}
	if !strings.HasPrefix(clean, KeyPrefix) {
		return false
	}
	body := clean[:len(clean)-keyMACLen]
	return g.mac(body) == clean[len(clean)-keyMACLen:]
}

// HasGeneratedFormat reports whether the key looks like a key this
// service generated, regardless of MAC validity.
func HasGeneratedFormat(key string) bool {
	clean := NormalizeKey(key)
	return len(clean) == len(KeyPrefix)+keyRandomLen+keyMACLen &&
		strings.HasPrefix(clean, KeyPrefix)
}

// NormalizeKey strips separators and uppercases a key for comparison.
func NormalizeKey(key string) string {
	clean := strings.ReplaceAll(strings.ReplaceAll(key, "-", ""), " ", "")
	return strings.ToUpper(clean)
}

// FormatKey renders a normalized key with display dashes:
// EDU-XXXX-XXXX-XXXX.
func FormatKey(key string) string {
	clean := NormalizeKey(key)
	if len(clean) != len(KeyPrefix)+keyRandomLen+keyMACLen {
		return clean
	}
	return formatKey(clean)
}

func formatKey(clean string) string {
	return fmt.Sprintf("%s-%s-%s-%s", clean[:3], clean[3:7], clean[7:11], clean[11:15])
}

func (g *KeyGenerator) mac(body string) string {
	h, err := blake2b.New256(g.secret)
	if err != nil {
		// blake2b only rejects keys longer than 64 bytes; the secret is
		// validated at construction by config.
		panic(err)
	}
	h.Write([]byte(body))
	sum := h.Sum(nil)

	out := make([]byte, keyMACLen)
	for i := 0; i < keyMACLen; i++ {
		out[i] = keyCharset[int(sum[i])%len(keyCharset)]
	}
	return string(out)
}
