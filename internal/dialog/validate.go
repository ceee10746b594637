package dialog

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// NormalizeFullName collapses whitespace and capitalises every word and every hyphen-separated part
// of a word. It reports false when fewer than two words are given.
func NormalizeFullName(raw string) (string, bool) {
	words := strings.Fields(raw)
	if len(words) < 2 {
		return "", false
	}
	// Casers are stateful, one per call.
	title := cases.Title(language.Russian)
	for i, w := range words {
		parts := strings.Split(w, "-")
		for j, p := range parts {
			parts[j] = title.String(p)
		}
		words[i] = strings.Join(parts, "-")
	}
	return strings.Join(words, " "), true
}

// ParsePassport strips spaces and splits exactly ten digits into a 4-digit series and 6-digit number.
func ParsePassport(raw string) (series, number string, ok bool) {
	digits := strings.Join(strings.Fields(raw), "")
	if len(digits) != 10 {
		return "", "", false
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return "", "", false
		}
	}
	return digits[:4], digits[4:], true
}

var (
	// Department prefix, two-digit intake year, dash, three-digit section, optional sub-group letter: Б22-101, ИФТЭ21-503А.
	studyGroupPattern = regexp.MustCompile(`^[А-ЯЁA-Z]{1,4}\d{2}-\d{3}[А-ЯЁA-Z]?$`)
	// Codes issued before the two-digit year format: К7-361, ТФ9-12.
	legacyStudyGroupPattern = regexp.MustCompile(`^[А-ЯЁ]{1,2}\d-\d{2,3}[А-ЯЁ]?$`)
)

// irregularStudyGroups are accepted verbatim.
var irregularStudyGroups = map[string]bool{
	"АСПИРАНТУРА": true,
	"ОРДИНАТУРА":  true,
	"ВЫПУСКНИК":   true,
	"ИНО-ОБМЕН":   true,
}

// NormalizeStudyGroup upper-cases raw and checks it against the institution's group-code formats.
func NormalizeStudyGroup(raw string) (string, bool) {
	code := strings.ToUpper(strings.TrimSpace(raw))
	if code == "" {
		return "", false
	}
	if studyGroupPattern.MatchString(code) || legacyStudyGroupPattern.MatchString(code) || irregularStudyGroups[code] {
		return code, true
	}
	return "", false
}

// freeText trims s; blank text counts as absent.
func freeText(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
