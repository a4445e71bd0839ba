package utils

import (
	"strconv"
	"strings"
	"testing"
)

func TestGenerateSecureOTPRange(t *testing.T) {
	for _, length := range []int{4, 6, 9} {
		low := 1
		for i := 1; i < length; i++ {
			low *= 10
		}
		high := low*10 - 1

		for i := 0; i < 200; i++ {
			code, err := GenerateSecureOTP(length)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(code) != length {
				t.Fatalf("expected %d digits, got %q", length, code)
			}
			n, err := strconv.Atoi(code)
			if err != nil || n < low || n > high {
				t.Fatalf("expected code in [%d, %d], got %q", low, high, code)
			}
		}
	}
}

func TestGenerateSecureOTPRejectsBadLength(t *testing.T) {
	if _, err := GenerateSecureOTP(0); err == nil {
		t.Fatalf("expected error for zero length")
	}
}

func TestGenerateReferenceID(t *testing.T) {
	a := GenerateReferenceID("APP-")
	b := GenerateReferenceID("APP-")
	if a == b {
		t.Fatalf("expected unique references")
	}
	if !strings.HasPrefix(a, "APP-") || len(a) != 36 {
		t.Fatalf("unexpected reference %q", a)
	}
	if strings.ToUpper(a) != a {
		t.Fatalf("expected upper-case reference, got %q", a)
	}
}
