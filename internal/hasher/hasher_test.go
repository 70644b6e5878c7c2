package hasher

import (
	"strings"
	"testing"
)

const emptySHA256 = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"

func TestSumSHA256(t *testing.T) {
	digest, n, err := Sum(SHA256, strings.NewReader(""))
	if err != nil {
		t.Fatalf("sum: %v", err)
	}
	if digest != emptySHA256 || n != 0 {
		t.Fatalf("unexpected empty digest %s (%d bytes)", digest, n)
	}

	digest, n, err = Sum(SHA256, strings.NewReader("hello"))
	if err != nil {
		t.Fatalf("sum: %v", err)
	}
	if digest != "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824" || n != 5 {
		t.Fatalf("unexpected digest %s (%d bytes)", digest, n)
	}
}

func TestSumBLAKE2b(t *testing.T) {
	digest, n, err := Sum(BLAKE2b256, strings.NewReader("hello"))
	if err != nil {
		t.Fatalf("sum: %v", err)
	}
	if len(digest) != DigestLength || n != 5 {
		t.Fatalf("unexpected digest %s (%d bytes)", digest, n)
	}
	sha, _, _ := Sum(SHA256, strings.NewReader("hello"))
	if digest == sha {
		t.Fatal("blake2b digest must differ from sha256")
	}
}

func TestParseAlgorithm(t *testing.T) {
	got, err := ParseAlgorithm("")
	if err != nil || got != SHA256 {
		t.Fatalf("expected sha256 default, got %q (%v)", got, err)
	}
	got, err = ParseAlgorithm(" BLAKE2B-256 ")
	if err != nil || got != BLAKE2b256 {
		t.Fatalf("expected blake2b-256, got %q (%v)", got, err)
	}
	if _, err := ParseAlgorithm("md5"); err == nil {
		t.Fatal("expected md5 to be rejected")
	}
}

func TestValidateDigest(t *testing.T) {
	got, err := ValidateDigest(" " + strings.ToUpper(emptySHA256) + " ")
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if got != emptySHA256 {
		t.Fatalf("expected normalized digest, got %s", got)
	}

	for _, bad := range []string{"", "abc", strings.Repeat("g", 64), strings.Repeat("a", 65)} {
		if _, err := ValidateDigest(bad); err == nil {
			t.Fatalf("expected %q to be rejected", bad)
		}
	}
}
