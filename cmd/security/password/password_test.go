package password

import (
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"testing"

	"golang.org/x/crypto/pbkdf2"
)

func cheapConfig() Config {
	cfg := DefaultConfig()
	cfg.Params.MemoryKiB = 8 * 1024
	cfg.Params.Iterations = 1
	cfg.Params.Parallelism = 1
	return cfg
}

func TestHashAndVerify_OK(t *testing.T) {
	cfg := cheapConfig()

	h, err := cfg.Hash("pw1")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	if h.Salt == "" || h.Hash == "" {
		t.Fatalf("expected hash and salt, got %+v", h)
	}

	ok, err := cfg.Verify(h, "pw1")
	if err != nil {
		t.Fatalf("Verify error: %v", err)
	}
	if !ok {
		t.Fatalf("expected match")
	}
	if cfg.NeedsRehash(h) {
		t.Fatalf("fresh hash should not need rehash")
	}
}

func TestVerify_WrongPassword(t *testing.T) {
	cfg := cheapConfig()

	h, err := cfg.Hash("correct horse")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}

	ok, err := cfg.Verify(h, "battery staple")
	if err != nil {
		t.Fatalf("Verify error: %v", err)
	}
	if ok {
		t.Fatalf("expected mismatch")
	}
}

func TestVerify_SaltFromAnotherUserFails(t *testing.T) {
	cfg := cheapConfig()

	a, _ := cfg.Hash("same-password")
	b, _ := cfg.Hash("same-password")
	if a.Salt == b.Salt {
		t.Fatalf("expected distinct salts")
	}

	ok, err := cfg.Verify(Hashed{Hash: a.Hash, Salt: b.Salt}, "same-password")
	if err != nil {
		t.Fatalf("Verify error: %v", err)
	}
	if ok {
		t.Fatalf("expected mismatch with swapped salt")
	}
}

func TestVerify_LegacyPBKDF2(t *testing.T) {
	cfg := cheapConfig()

	salt := []byte("0123456789abcdefghijklmn")
	key := pbkdf2.Key([]byte("pw1"), salt, legacyIterations, legacyKeyLength, sha256.New)
	h := Hashed{
		Hash: base64.StdEncoding.EncodeToString(key),
		Salt: base64.StdEncoding.EncodeToString(salt),
	}

	ok, err := cfg.Verify(h, "pw1")
	if err != nil || !ok {
		t.Fatalf("expected legacy match, ok=%v err=%v", ok, err)
	}
	ok, err = cfg.Verify(h, "pw2")
	if err != nil || ok {
		t.Fatalf("expected legacy mismatch, ok=%v err=%v", ok, err)
	}
	if !cfg.NeedsRehash(h) {
		t.Fatalf("legacy hash must need rehash")
	}
}

func TestVerify_InvalidHash(t *testing.T) {
	cfg := cheapConfig()

	ok, err := cfg.Verify(Hashed{Hash: "$argon2id$nope", Salt: "AAAA"}, "whatever")
	if !errors.Is(err, ErrInvalidHash) {
		t.Fatalf("expected ErrInvalidHash, got %v", err)
	}
	if ok {
		t.Fatalf("expected false")
	}

	_, err = cfg.Verify(Hashed{Hash: "not base64!", Salt: "also not"}, "whatever")
	if !errors.Is(err, ErrInvalidHash) {
		t.Fatalf("expected ErrInvalidHash for legacy garbage, got %v", err)
	}
}

func TestValidate_Policy(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Policy.MinLength = 4
	cfg.Policy.MaxLength = 8

	cases := []struct {
		in   string
		want error
	}{
		{in: "abc", want: ErrPasswordTooShort},
		{in: "abcdefghi", want: ErrPasswordTooLong},
		{in: "    ", want: ErrPasswordInvalid},
		{in: "ab\x00cd", want: ErrPasswordInvalid},
		{in: "good1", want: nil},
	}
	for _, tc := range cases {
		if got := cfg.Validate(tc.in); !errors.Is(got, tc.want) {
			t.Fatalf("Validate(%q)=%v want=%v", tc.in, got, tc.want)
		}
	}
}
