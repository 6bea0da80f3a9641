package source

import "strings"

// Function words used as a cheap English detector. A headline plus
// description that contains at least two of these as whole words is treated
// as English.
var englishFunctionWords = []string{
	"the", "a", "an", "of", "to", "in", "and", "on", "for", "is", "with", "at",
}

const minWordsForLanguageCheck = 5

// looksEnglish applies the language heuristic from the filter pipeline. An
// explicit non-English tag fails immediately; without a tag, very short text
// passes, otherwise at least two common English function words must appear.
func looksEnglish(tag, text string) bool {
	if tag != "" {
		lang := strings.ToLower(tag)
		return lang == "en" || strings.HasPrefix(lang, "en-")
	}

	words := strings.Fields(strings.ToLower(text))
	if len(words) < minWordsForLanguageCheck {
		return true
	}

	present := make(map[string]bool)
	for _, w := range words {
		w = strings.Trim(w, ".,;:!?\"'()[]{}-")
		for _, fn := range englishFunctionWords {
			if w == fn {
				present[fn] = true
			}
		}
	}
	return len(present) >= 2
}
