package slug

import (
	"strings"
	"testing"
)

func TestMake(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"simple", "Acme", "acme"},
		{"spaces", "Acme Corp", "acme-corp"},
		{"punctuation", "Acme, Corp. (HQ)", "acme-corp-hq"},
		{"accents", "Müller & Söhne", "muller-sohne"},
		{"collapses separators", "a  -  b", "a-b"},
		{"leading and trailing junk", "  --Acme--  ", "acme"},
		{"numbers", "Team 42", "team-42"},
		{"empty", "", ""},
		{"no usable characters", "日本語", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Make(tt.in); got != tt.want {
				t.Errorf("Make(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestWithSuffix(t *testing.T) {
	got := WithSuffix("Acme Corp", "org")
	if !strings.HasPrefix(got, "acme-corp-") {
		t.Errorf("WithSuffix = %q, want acme-corp- prefix", got)
	}
	if len(got) != len("acme-corp-")+8 {
		t.Errorf("WithSuffix = %q, want 8-char suffix", got)
	}

	got = WithSuffix("日本語", "org")
	if !strings.HasPrefix(got, "org-") {
		t.Errorf("WithSuffix with empty base = %q, want org- prefix", got)
	}
}

func TestRandom(t *testing.T) {
	a := Random(8)
	b := Random(8)
	if len(a) != 8 || len(b) != 8 {
		t.Fatalf("Random(8) lengths = %d, %d", len(a), len(b))
	}
	if a == b {
		t.Errorf("two Random(8) calls returned the same value %q", a)
	}
}
