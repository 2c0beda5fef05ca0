package dehyphenator

import (
	"strings"
	"testing"
)

func TestString(t *testing.T) {
	tests := []struct {
		name      string
		in        string
		joinLines bool
		want      string
	}{
		{"lowercase continuation", "Silben-\ntrennung\n", false, "Silbentrennung\n"},
		{"uppercase continuation", "Schiller-\nStraße\n", false, "Schiller-Straße\n"},
		{"uppercase before hyphen", "CD-\nRom\n", false, "CD-Rom\n"},
		{"plain lines", "erste Zeile\nzweite Zeile\n", false, "erste Zeile\nzweite Zeile\n"},
		{"surrounding whitespace", "  ein-  \n  fach \n", false, "einfach\n"},
		{"empty lines kept", "a\n\nb\n", false, "a\n\nb\n"},
		{"joined", "a\n\nb\n", true, "a b "},
		{"joined with hyphen", "Ver-\nsicherung und\nmehr", true, "Versicherung und mehr "},
		{"trailing hyphen at end", "ab-", false, "ab-"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := String(tt.in, tt.joinLines)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLongLine(t *testing.T) {
	long := strings.Repeat("wort ", 40_000)
	got, err := String(long+"Silben-\ntrennung\n", false)
	if err != nil {
		t.Fatal(err)
	}
	if want := strings.TrimSpace(long) + " Silbentrennung\n"; got != want {
		t.Errorf("got %d bytes ending in %q, want %d bytes", len(got), got[len(got)-20:], len(want))
	}
}
