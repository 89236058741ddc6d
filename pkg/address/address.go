// Package address provides the Everscale account address value type.
package address

import (
	"encoding/json"
	"fmt"
	"strings"

	tonaddress "github.com/xssnick/tonutils-go/address"
)

// Zero is the raw form of the all-zero basechain address.
const Zero = "0:0000000000000000000000000000000000000000000000000000000000000000"

// Address is an immutable, comparable account address. Two Address values are
// equal when their canonical string forms are equal, so == and map keys work.
type Address struct {
	raw string
}

// New wraps an address received from the wire. Parseable addresses (raw
// "wc:hex" or user-friendly base64) are canonicalized to the lowercase raw
// form; anything else is kept verbatim so wire values are never rejected.
func New(s string) Address {
	s = strings.TrimSpace(s)
	if canonical, err := canonicalize(s); err == nil {
		return Address{raw: canonical}
	}
	return Address{raw: s}
}

// Parse is the strict counterpart of New.
func Parse(s string) (Address, error) {
	canonical, err := canonicalize(strings.TrimSpace(s))
	if err != nil {
		return Address{}, err
	}
	return Address{raw: canonical}, nil
}

// MustParse is Parse for constants and tests.
func MustParse(s string) Address {
	a, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return a
}

func canonicalize(s string) (string, error) {
	if s == "" {
		return "", fmt.Errorf("empty address")
	}
	if strings.Contains(s, ":") {
		addr, err := tonaddress.ParseRawAddr(s)
		if err != nil {
			return "", fmt.Errorf("invalid raw address %q: %w", s, err)
		}
		return addr.StringRaw(), nil
	}
	addr, err := tonaddress.ParseAddr(s)
	if err != nil {
		return "", fmt.Errorf("invalid address %q: %w", s, err)
	}
	return addr.StringRaw(), nil
}

// String returns the canonical form.
func (a Address) String() string {
	return a.raw
}

// IsZero reports whether the address is unset. The all-zero chain address is
// a real address and is not considered unset.
func (a Address) IsZero() bool {
	return a.raw == ""
}

// Equals compares canonical forms.
func (a Address) Equals(other Address) bool {
	return a.raw == other.raw
}

// Ptr returns a pointer to a copy of a, for optional message fields.
func (a Address) Ptr() *Address {
	return &a
}

func (a Address) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.raw)
}

func (a *Address) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*a = Address{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("address must be a string: %w", err)
	}
	*a = New(s)
	return nil
}

func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.raw), nil
}

func (a *Address) UnmarshalText(text []byte) error {
	*a = New(string(text))
	return nil
}
