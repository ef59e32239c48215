package textutil

import (
	"math"
	"testing"
)

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestRatio(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want float64
	}{
		{"identical", "caymus", "caymus", 1},
		{"one substitution", "caymus", "caymis", 10.0 / 12.0},
		{"disjoint", "abc", "xyz", 0},
		{"empty left", "", "caymus", 0},
		{"both empty", "", "", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Ratio(tt.a, tt.b); !approx(got, tt.want) {
				t.Errorf("Ratio(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestPartialRatioFindsSubstring(t *testing.T) {
	if got := PartialRatio("caymus", "caymus cabernet sauvignon"); got != 1 {
		t.Fatalf("PartialRatio substring = %v, want 1", got)
	}
	if got := PartialRatio("caymus cabernet sauvignon", "caymus"); got != 1 {
		t.Fatalf("PartialRatio should be symmetric in argument order, got %v", got)
	}
	whole := Ratio("caymus", "caymus cabernet sauvignon")
	if whole >= 1 {
		t.Fatalf("expected whole ratio below 1, got %v", whole)
	}
	if got := PartialRatio("zzzz", "caymus cabernet"); got >= 0.5 {
		t.Fatalf("expected low partial ratio for unrelated text, got %v", got)
	}
}

func TestTokenSortRatioIgnoresOrder(t *testing.T) {
	if got := TokenSortRatio("sauvignon cabernet caymus", "caymus cabernet sauvignon"); got != 1 {
		t.Fatalf("TokenSortRatio = %v, want 1", got)
	}
	if got := Ratio("sauvignon cabernet caymus", "caymus cabernet sauvignon"); got >= 1 {
		t.Fatalf("expected order to matter for Ratio, got %v", got)
	}
}

func TestFold(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Château Margaux", "chateau margaux"},
		{"Kendall-Jackson Vintner's Reserve", "kendall jackson vintners reserve"},
		{"  Moët & Chandon  ", "moet chandon"},
		{"Grüner Veltliner, Ried Lamm!", "gruner veltliner ried lamm"},
		{"Smørrebrød Cuvée Æble", "smorrebrod cuvee aeble"},
		{"", ""},
	}
	for _, tt := range tests {
		got := Fold(tt.in)
		if got != tt.want {
			t.Errorf("Fold(%q) = %q, want %q", tt.in, got, tt.want)
		}
		if again := Fold(got); again != got {
			t.Errorf("Fold is not idempotent: %q -> %q", got, again)
		}
	}
}

func TestTokenize(t *testing.T) {
	got := Tokenize("Opus One, Napa Valley")
	want := []string{"opus", "one", "napa", "valley"}
	if len(got) != len(want) {
		t.Fatalf("Tokenize = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Tokenize = %v, want %v", got, want)
		}
	}
}

func TestPhoneticOverlap(t *testing.T) {
	if got := PhoneticOverlap("kaymus cabernet", "caymus cabernet sauvignon"); got != 1 {
		t.Fatalf("expected sound-alike words to match, got %v", got)
	}
	if got := PhoneticOverlap("merlot", "caymus cabernet"); got != 0 {
		t.Fatalf("expected no phonetic overlap, got %v", got)
	}
	if got := PhoneticOverlap("xyz123 ab", "caymus"); got != 0 {
		t.Fatalf("expected ineligible words to be ignored, got %v", got)
	}
	if got := PhoneticOverlap("", "caymus"); got != 0 {
		t.Fatalf("expected empty query to score 0, got %v", got)
	}
}

func TestTernary(t *testing.T) {
	if Ternary(true, "yes", "no") != "yes" || Ternary(false, 1, 2) != 2 {
		t.Fatal("Ternary returned the wrong branch")
	}
}
