package core

import (
	"reflect"
	"testing"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{"lowercases and drops stop words", "Wash the hands", []string{"wash", "hands"}},
		{"splits on punctuation", "hand-washing, gloves.", []string{"hand", "washing", "gloves"}},
		{"keeps digits", "Wash hands for 20 seconds.", []string{"wash", "hands", "20", "seconds"}},
		{"keeps repeats", "soap soap", []string{"soap", "soap"}},
		{"only stop words", "the and of", []string{}},
		{"empty", "", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Tokenize(tt.text)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Tokenize(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestTermFrequencies(t *testing.T) {
	freqs, total := TermFrequencies("Soap and water. Soap first!")
	if total != 4 {
		t.Errorf("total = %d, want 4", total)
	}
	if freqs["soap"] != 2 || freqs["water"] != 1 || freqs["first"] != 1 {
		t.Errorf("unexpected frequencies: %v", freqs)
	}
}

func TestUniqueTerms(t *testing.T) {
	got := UniqueTerms("Gloves, soap, gloves")
	want := []string{"gloves", "soap"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("UniqueTerms() = %v, want %v", got, want)
	}
}
