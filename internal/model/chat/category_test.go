package chat

import "testing"

func TestParseCategory(t *testing.T) {
	cases := map[string]Category{
		"crisis_support": CategoryCrisis,
		" THERAPY ":      CategoryTherapy,
		"general":        CategoryGeneral,
		"":               CategoryGeneral,
		"unknown":        CategoryGeneral,
	}
	for raw, want := range cases {
		if got := ParseCategory(raw); got != want {
			t.Fatalf("ParseCategory(%q) = %s, want %s", raw, got, want)
		}
	}
}

func TestDefaultName(t *testing.T) {
	if got := CategoryCrisis.DefaultName(); got != "Crisis Support" {
		t.Fatalf("unexpected name: %s", got)
	}
	if got := Category("").DefaultName(); got != "General Chat" {
		t.Fatalf("unexpected name: %s", got)
	}
}
