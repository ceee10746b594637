package dialog

import "testing"

func TestNormalizeFullName(t *testing.T) {
	testCases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"иван   петров-сидоров", "Иван Петров-Сидоров", true},
		{"  ИВАН  ПЕТРОВ ", "Иван Петров", true},
		{"анна-мария де ла круз", "Анна-Мария Де Ла Круз", true},
		{"john smith", "John Smith", true},
		{"иван", "", false},
		{"   ", "", false},
		{"", "", false},
	}
	for _, tc := range testCases {
		t.Run(tc.in, func(t *testing.T) {
			got, ok := NormalizeFullName(tc.in)
			if ok != tc.ok || got != tc.want {
				t.Errorf("NormalizeFullName(%q) = %q, %v; want %q, %v", tc.in, got, ok, tc.want, tc.ok)
			}
		})
	}
}

func TestParsePassport(t *testing.T) {
	testCases := []struct {
		in             string
		series, number string
		ok             bool
	}{
		{"12 34 567890", "1234", "567890", true},
		{"1234567890", "1234", "567890", true},
		{" 1234 567890 ", "1234", "567890", true},
		{"123456789", "", "", false},
		{"12345678901", "", "", false},
		{"12 34 56789O", "", "", false},
		{"", "", "", false},
	}
	for _, tc := range testCases {
		t.Run(tc.in, func(t *testing.T) {
			series, number, ok := ParsePassport(tc.in)
			if ok != tc.ok || series != tc.series || number != tc.number {
				t.Errorf("ParsePassport(%q) = %q, %q, %v; want %q, %q, %v",
					tc.in, series, number, ok, tc.series, tc.number, tc.ok)
			}
		})
	}
}

func TestNormalizeStudyGroup(t *testing.T) {
	testCases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"б22-101", "Б22-101", true},
		{"ифтэ21-503а", "ИФТЭ21-503А", true},
		{" С20-702 ", "С20-702", true},
		{"к7-361", "К7-361", true},
		{"аспирантура", "АСПИРАНТУРА", true},
		{"Б22101", "", false},
		{"Б2-1010", "", false},
		{"АБВГД22-101", "", false},
		{"22-101", "", false},
		{"", "", false},
	}
	for _, tc := range testCases {
		t.Run(tc.in, func(t *testing.T) {
			got, ok := NormalizeStudyGroup(tc.in)
			if ok != tc.ok || got != tc.want {
				t.Errorf("NormalizeStudyGroup(%q) = %q, %v; want %q, %v", tc.in, got, ok, tc.want, tc.ok)
			}
		})
	}
}
