package blob

import (
	"errors"
	"testing"
)

func TestValidateKey(t *testing.T) {
	cases := []struct {
		key string
		ok  bool
	}{
		{"reports/seed:19:10:2026:1/20261019T093000Z.json", true},
		{"a/b..c/d", true},
		{"", false},
		{"   ", false},
		{"/etc/passwd", false},
		{"reports/../../etc", false},
		{"..", false},
	}
	for _, tc := range cases {
		err := ValidateKey(tc.key)
		if tc.ok && err != nil {
			t.Fatalf("%q: unexpected error %v", tc.key, err)
		}
		if !tc.ok && !errors.Is(err, ErrInvalidKey) {
			t.Fatalf("%q: expected ErrInvalidKey, got %v", tc.key, err)
		}
	}
}

func TestCloneMetadata(t *testing.T) {
	if CloneMetadata(nil) != nil {
		t.Fatalf("nil must stay nil")
	}
	in := map[string]string{"lot": "x"}
	out := CloneMetadata(in)
	out["lot"] = "y"
	if in["lot"] != "x" {
		t.Fatalf("clone shares storage")
	}
}
