package textnorm

import "testing"

func TestNormalize(t *testing.T) {
	t.Parallel()

	if got := Normalize(" Café  Crème "); got != "cafe creme" {
		t.Fatalf("unexpected normalized keyword: %q", got)
	}
	if got := Normalize("CAFE"); got != "cafe" {
		t.Fatalf("unexpected normalized keyword: %q", got)
	}
	if got := Normalize("šéf kuchyně"); got != "sef kuchyne" {
		t.Fatalf("unexpected normalized keyword: %q", got)
	}
	if got := Normalize(""); got != "" {
		t.Fatalf("expected empty result for empty input, got %q", got)
	}
}

func TestNormalizeIsIdempotentOverFolding(t *testing.T) {
	t.Parallel()

	inputs := []string{"café", "Cafe", "pâtisserie LYON", "žluťoučký kůň", "plain ascii"}
	for _, input := range inputs {
		if Normalize(input) != Normalize(FoldDiacritics(input)) {
			t.Fatalf("normalize(%q) differs from normalize(fold(%q))", input, input)
		}
	}
}

func TestHasDiacritics(t *testing.T) {
	t.Parallel()

	if !HasDiacritics("café") {
		t.Fatal("expected café to report diacritics")
	}
	if HasDiacritics("cafe") {
		t.Fatal("expected cafe to report no diacritics")
	}
}
