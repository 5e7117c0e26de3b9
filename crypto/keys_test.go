package crypto

import (
	"bytes"
	"testing"
)

func TestAddressRoundTrip(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	addr := key.PubKey().Address()
	encoded := addr.String()
	if encoded == "" {
		t.Fatal("expected bech32 encoding")
	}

	decoded, err := DecodeAddress(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !decoded.Equal(addr) {
		t.Fatalf("round trip mismatch: %s vs %s", decoded, addr)
	}
	if decoded.Prefix() != AccountPrefix {
		t.Fatalf("unexpected prefix %q", decoded.Prefix())
	}
}

func TestDecodeAddressRejectsGarbage(t *testing.T) {
	for _, input := range []string{"", "not-bech32", "btc1qqqqqq"} {
		if _, err := DecodeAddress(input); err == nil {
			t.Fatalf("expected decode failure for %q", input)
		}
	}
}

func TestAddressZeroAndEqual(t *testing.T) {
	var zero Address
	if !zero.IsZero() {
		t.Fatal("default address should be zero")
	}
	a := NewAddress(AccountPrefix, bytes.Repeat([]byte{0x01}, 20))
	b := NewAddress(AccountPrefix, bytes.Repeat([]byte{0x01}, 20))
	c := NewAddress(AccountPrefix, bytes.Repeat([]byte{0x02}, 20))
	if a.IsZero() {
		t.Fatal("populated address should not be zero")
	}
	if !a.Equal(b) || a.Equal(c) {
		t.Fatal("equality should compare the raw bytes")
	}
}

func TestNewAddressCopiesInput(t *testing.T) {
	raw := bytes.Repeat([]byte{0x0A}, 20)
	addr := NewAddress(AccountPrefix, raw)
	raw[0] = 0xFF
	if addr.Bytes()[0] != 0x0A {
		t.Fatal("address must not alias the caller's slice")
	}
}
