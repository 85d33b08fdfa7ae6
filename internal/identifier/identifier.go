// Package identifier derives and validates the anonymized recipient
// identifiers persisted by the engine and exchanged with survey tooling.
//
// An identifier has the shape "XXXXXXXX-V": eight uppercase hex digits taken
// from an Adler-32 checksum, followed by one verifier character computed over
// those digits in a Crockford-style base-32 alphabet.
package identifier

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"hash/adler32"
	"strings"
)

const (
	bodyLength = 8
	modulus    = 31
	separator  = "-"
)

// weights has one factor per body digit. The last factor is zero: the
// verifier scheme was designed for seven digits and Adler-32 yields eight.
var weights = [bodyLength]int{4, 3, 9, 5, 7, 1, 8, 0}

const alphabet = "0123456789abcdefghjkmnpqrstvwxyz"

var alphabetValues = func() map[byte]int {
	values := make(map[byte]int, len(alphabet)+2)
	for i := 0; i < len(alphabet); i++ {
		values[alphabet[i]] = i
	}
	values['i'] = 1
	values['l'] = 1
	return values
}()

// Derive returns the anonymized identifier for input. Unless alreadyDigested
// is set, input is first reduced to its lowercase hex MD5 digest.
func Derive(input string, alreadyDigested bool) string {
	source := input
	if !alreadyDigested {
		sum := md5.Sum([]byte(input))
		source = hex.EncodeToString(sum[:])
	}

	body := fmt.Sprintf("%08x", adler32.Checksum([]byte(source)))
	verifier, _ := Verifier(body)

	return strings.ToUpper(body + separator + string(verifier))
}

// IsValid reports whether identifier carries a matching verifier character.
// Malformed input is reported as invalid.
func IsValid(identifier string) bool {
	parts := strings.Split(identifier, separator)
	if len(parts) != 2 {
		return false
	}

	body, got := parts[0], parts[1]
	if len(got) != 1 {
		return false
	}

	want, ok := Verifier(body)
	if !ok {
		return false
	}

	return strings.EqualFold(got, string(want))
}

// Verifier computes the uppercase verifier character for an eight digit body.
// It returns false if the body has the wrong length or digits outside the
// alphabet.
func Verifier(body string) (byte, bool) {
	if len(body) != bodyLength {
		return 0, false
	}

	lowered := strings.ToLower(body)
	sum := 0
	for i := 0; i < bodyLength; i++ {
		value, ok := alphabetValues[lowered[i]]
		if !ok {
			return 0, false
		}
		sum += value * weights[i]
	}

	return strings.ToUpper(string(alphabet[sum%modulus]))[0], true
}
