package domain

import (
	"testing"
	"unicode/utf8"
)

// FuzzParseIdentity tests that parsing never panics on arbitrary input
// and that accepted identities are stable under re-parsing.
func FuzzParseIdentity(f *testing.F) {
	f.Add("")
	f.Add("0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed")
	f.Add("0xZZ")
	f.Add("'; DROP TABLE whitelist_members;--")
	f.Add(string([]byte{0x00, 0x01, 0x02}))
	f.Add("alice\x00suffix")

	f.Fuzz(func(t *testing.T, input string) {
		identity, err := ParseIdentity(input)
		if err != nil {
			return
		}

		again, err := ParseIdentity(identity.String())
		if err != nil {
			t.Errorf("accepted identity failed round-trip: %v", err)
		}
		if again != identity {
			t.Errorf("round-trip changed identity %q -> %q", identity, again)
		}
		if !utf8.ValidString(identity.String()) {
			t.Error("non-UTF8 identity was accepted")
		}
		if len(identity) > MaxIdentityLength {
			t.Error("oversized identity was accepted")
		}
	})
}
