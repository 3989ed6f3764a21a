package types

import "testing"

func TestBase58Check_RoundTrip(t *testing.T) {
	payload := []byte{0x8f, 0x3a, 0x44, 0xb8, 0x05, 0x6c, 0xaf, 0xec, 0x36, 0x8d,
		0xea, 0x0c, 0xbe, 0x0a, 0xd1, 0xd9, 0xbc, 0x3f, 0x43, 0x05}

	s, err := EncodeBase58Check(MainnetVersion, payload)
	if err != nil {
		t.Fatalf("EncodeBase58Check: %v", err)
	}

	version, decoded, err := DecodeBase58Check(s)
	if err != nil {
		t.Fatalf("DecodeBase58Check(%q): %v", s, err)
	}
	if version != MainnetVersion {
		t.Errorf("version = %x, want %x", version, MainnetVersion)
	}
	if len(decoded) != len(payload) {
		t.Fatalf("decoded length = %d, want %d", len(decoded), len(payload))
	}
	for i := range payload {
		if decoded[i] != payload[i] {
			t.Fatalf("decoded payload mismatch at byte %d", i)
		}
	}
}

func TestBase58Check_DifferentVersionsDifferentStrings(t *testing.T) {
	payload := []byte{0x01, 0x02, 0x03}
	main, _ := EncodeBase58Check(MainnetVersion, payload)
	test, _ := EncodeBase58Check(TestnetVersion, payload)
	if main == test {
		t.Error("different version bytes should produce different encodings")
	}
}

func TestBase58Check_RejectsCorruptChecksum(t *testing.T) {
	s, _ := EncodeBase58Check(MainnetVersion, []byte{0xde, 0xad, 0xbe, 0xef})
	bad := []byte(s)
	bad[0]++
	if _, _, err := DecodeBase58Check(string(bad)); err == nil {
		t.Error("corrupted base58check string should fail checksum verification")
	}
}

func TestBase58Check_TooShortRejected(t *testing.T) {
	if _, _, err := DecodeBase58Check("a"); err == nil {
		t.Error("too-short input should be rejected")
	}
}
