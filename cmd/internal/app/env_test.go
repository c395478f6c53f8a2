package app

import (
	"testing"
	"time"
)

func TestEnvHelpers(t *testing.T) {
	t.Setenv("GS_TEST_STR", "  game  ")
	t.Setenv("GS_TEST_BOOL", "t")
	t.Setenv("GS_TEST_INT", "0")
	t.Setenv("GS_TEST_INT32", "0")
	t.Setenv("GS_TEST_DUR", "-1s")

	if got := EnvString("GS_TEST_STR", "x"); got != "game" {
		t.Fatalf("EnvString = %q", got)
	}
	if got := EnvString("GS_TEST_UNSET", "x"); got != "x" {
		t.Fatalf("EnvString default = %q", got)
	}
	if !EnvBool("GS_TEST_BOOL", false) {
		t.Fatalf("EnvBool should parse t")
	}
	if got := EnvInt("GS_TEST_INT", 7); got != 7 {
		t.Fatalf("EnvInt must reject zero, got %d", got)
	}
	if got := EnvInt32("GS_TEST_INT32", 7); got != 0 {
		t.Fatalf("EnvInt32 must accept zero, got %d", got)
	}
	if got := EnvDuration("GS_TEST_DUR", time.Second); got != time.Second {
		t.Fatalf("EnvDuration must reject negatives, got %s", got)
	}

	t.Setenv("GS_TEST_INT32", "99999999999")
	if got := EnvInt32("GS_TEST_INT32", 3); got != 3 {
		t.Fatalf("EnvInt32 overflow should fall back, got %d", got)
	}
	t.Setenv("GS_TEST_BOOL", "maybe")
	if EnvBool("GS_TEST_BOOL", false) {
		t.Fatalf("EnvBool garbage should fall back")
	}
}
