package discovery

import "testing"

func TestSlugify(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Party", "party"},
		{"Atrea Duplex 380", "atrea-duplex-380"},
		{"Noční větrání", "nocni-vetrani"},
		{"Küchen-Lüftung", "kuchen-luftung"},
		{"  spaced   out  ", "spaced-out"},
		{"Vollständig", "vollstandig"},
		{"100% Boost!", "100-boost"},
		{"", ""},
		{"---", ""},
	}
	for _, tt := range tests {
		if got := Slugify(tt.in); got != tt.want {
			t.Errorf("Slugify(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
