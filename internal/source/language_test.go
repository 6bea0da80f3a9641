package source

import "testing"

func TestLooksEnglish(t *testing.T) {
	cases := []struct {
		name string
		tag  string
		text string
		want bool
	}{
		{"explicit english tag", "en", "cualquier texto", true},
		{"regional english tag", "en-US", "whatever", true},
		{"explicit foreign tag", "de", "The cat sat on the mat", false},
		{"english sentence", "", "The senate voted on the measure for a second time", true},
		{"foreign sentence", "", "Der Bundestag stimmte erneut über das Gesetz ab heute", false},
		{"short text passes", "", "Fed raises rates", true},
		{"punctuation around words", "", "Vote today: the house, and the senate, decide.", true},
	}
	for _, tc := range cases {
		if got := looksEnglish(tc.tag, tc.text); got != tc.want {
			t.Errorf("%s: looksEnglish(%q, %q) = %v, want %v", tc.name, tc.tag, tc.text, got, tc.want)
		}
	}
}
