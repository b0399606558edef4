package domain

import (
	"encoding/hex"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/crypto/sha3"

	dErrors "whitelist/pkg/domain-errors"
)

// MaxIdentityLength bounds identities accepted at trust boundaries.
const MaxIdentityLength = 256

// Identity is an opaque, externally issued caller token such as a wallet address.
// The registry uses it only as a set key.
type Identity string

// ParseIdentity validates raw input at a trust boundary.
//
// Input shaped like an Ethereum address ("0x" followed by 40 hex digits) is
// canonicalised to its EIP-55 checksum form so case variants of the same address
// collapse into one identity. Any other non-empty printable token is kept verbatim.
func ParseIdentity(raw string) (Identity, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "identity is required")
	}
	if len(value) > MaxIdentityLength {
		return "", dErrors.New(dErrors.CodeInvalidInput, "identity is too long")
	}
	if !utf8.ValidString(value) {
		return "", dErrors.New(dErrors.CodeInvalidInput, "identity must be valid UTF-8")
	}
	for _, r := range value {
		if unicode.IsControl(r) || unicode.IsSpace(r) || unicode.Is(unicode.Cf, r) {
			return "", dErrors.New(dErrors.CodeInvalidInput, "identity contains invalid characters")
		}
	}
	if IsHexAddress(value) {
		return Identity(ChecksumAddress(value)), nil
	}
	return Identity(value), nil
}

// MustParseIdentity is ParseIdentity for tests and constants; it panics on error.
func MustParseIdentity(raw string) Identity {
	identity, err := ParseIdentity(raw)
	if err != nil {
		panic(err)
	}
	return identity
}

func (i Identity) String() string {
	return string(i)
}

// IsNil reports whether the identity is empty.
func (i Identity) IsNil() bool {
	return i == ""
}

// IsHexAddress reports whether s is "0x" followed by exactly 40 hex digits.
func IsHexAddress(s string) bool {
	if len(s) != 42 || !(strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X")) {
		return false
	}
	_, err := hex.DecodeString(s[2:])
	return err == nil
}

// ChecksumAddress returns the EIP-55 mixed-case encoding of a hex address.
// The caller must ensure IsHexAddress(addr).
func ChecksumAddress(addr string) string {
	lower := strings.ToLower(addr[2:])

	hasher := sha3.NewLegacyKeccak256()
	_, _ = hasher.Write([]byte(lower))
	digest := hasher.Sum(nil)

	out := make([]byte, 0, 42)
	out = append(out, '0', 'x')
	for i := 0; i < len(lower); i++ {
		c := lower[i]
		nibble := digest[i/2]
		if i%2 == 0 {
			nibble >>= 4
		} else {
			nibble &= 0x0f
		}
		if c >= 'a' && c <= 'f' && nibble >= 8 {
			c -= 'a' - 'A'
		}
		out = append(out, c)
	}
	return string(out)
}
