package normalize_test

import (
	"reflect"
	"testing"

	"winescan/internal/config"
	"winescan/internal/normalize"
)

func defaultNormalizer() *normalize.Normalizer {
	return normalize.New(config.Default().Normalizer.StopWords)
}

func TestNormalizeShelfLabel(t *testing.T) {
	q := defaultNormalizer().Normalize("CAYMUS CABERNET SAUVIGNON 2019 750ML $45.99")
	if q.Text != "caymus cabernet sauvignon" {
		t.Fatalf("Normalize = %q, want %q", q.Text, "caymus cabernet sauvignon")
	}
	want := []normalize.Removal{
		{Step: normalize.StepVintage, Value: "2019"},
		{Step: normalize.StepVolume, Value: "750ML"},
		{Step: normalize.StepPrice, Value: "$45.99"},
	}
	if !reflect.DeepEqual(q.Removed, want) {
		t.Fatalf("Removed = %+v, want %+v", q.Removed, want)
	}
	if q.Raw != "CAYMUS CABERNET SAUVIGNON 2019 750ML $45.99" {
		t.Fatalf("expected raw text preserved, got %q", q.Raw)
	}
}

func TestNormalizeVariants(t *testing.T) {
	n := defaultNormalizer()
	tests := []struct {
		in   string
		want string
	}{
		{"Opus One 1.5L 2018", "opus one"},
		{"Whispering Angel Rosé 75cl £18", "whispering angel rose"},
		{"Cloudy Bay 1,5 l 13.5% vol", "cloudy bay"},
		{"Estate Bottled PRODUCT OF FRANCE Château Margaux", "france chateau margaux"},
		{"Barolo 12.50€ 2016", "barolo"},
		{"Vintage 1899 Port", "vintage 1899 port"},
		{"Cuvee20190", "cuvee20190"},
		{"wine", ""},
		{"   ", ""},
		{"2019 750ML $45.99", ""},
		{"OPUS ONE $1,299.99", "opus one"},
		{"Penfolds Grange € 1.299,00", "penfolds grange"},
		{"Sassicaia 1.250€", "sassicaia"},
		{"Caymus $1299", "caymus"},
	}
	for _, tt := range tests {
		if got := n.Normalize(tt.in).Text; got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeEmptyIsNotAnError(t *testing.T) {
	q := defaultNormalizer().Normalize("")
	if !q.Empty() || len(q.Removed) != 0 {
		t.Fatalf("expected empty query without removals, got %+v", q)
	}
}

func TestNormalizeIsIdempotent(t *testing.T) {
	n := defaultNormalizer()
	inputs := []string{
		"CAYMUS CABERNET SAUVIGNON 2019 750ML $45.99",
		"Kendall-Jackson Vintner's Reserve Chardonnay 2021 750.ml",
		"$2000 special 1L",
		"Moët & Chandon Impérial Brut 75 cl 12% ALC/VOL",
		"unkown red wine blend xyz123",
		"20 19 750 ml",
	}
	for _, in := range inputs {
		once := n.Normalize(in)
		twice := n.Normalize(once.Text)
		if twice.Text != once.Text {
			t.Errorf("not idempotent for %q: %q -> %q", in, once.Text, twice.Text)
		}
		if len(twice.Removed) != 0 {
			t.Errorf("expected no removals on normalized text %q, got %+v", once.Text, twice.Removed)
		}
	}
}

func TestNormalizeStopListIsWholeWord(t *testing.T) {
	n := normalize.New([]string{"reserve", "imported by"})
	q := n.Normalize("Reserved Cellars RESERVE Imported  By Acme")
	if q.Text != "reserved cellars acme" {
		t.Fatalf("Normalize = %q", q.Text)
	}
	if len(q.Removed) != 2 || q.Removed[0].Step != normalize.StepStopword {
		t.Fatalf("unexpected removals %+v", q.Removed)
	}
}

func TestNormalizeWithoutStopWords(t *testing.T) {
	q := normalize.New(nil).Normalize("Red Wine Blend 2020")
	if q.Text != "red wine blend" {
		t.Fatalf("Normalize = %q", q.Text)
	}
}
