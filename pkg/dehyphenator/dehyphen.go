/*
Package dehyphenator joins words that recognition split across lines.

	OCR output keeps the line breaks of the scanned page, so words hyphenated
	by the typesetter arrive as two fragments. A trailing hyphen is removed
	when the word continues in lowercase on the next line and kept when either
	side of the break is uppercase, which preserves compounds like "CD-Rom" or
	"Schiller-Straße". The heuristics are tuned for German text.
*/
package dehyphenator

import (
	"bufio"
	"io"
	"strings"
	"unicode"
)

// Dehyphenate reads lines from in and writes them to out with end-of-line
// hyphens removed where appropriate. With joinLines set, lines are separated
// by a single space instead of a newline.
func Dehyphenate(in io.Reader, out io.Writer, joinLines bool) error {
	w := bufio.NewWriter(out)
	sep := "\n"
	if joinLines {
		sep = " "
	}
	pending := false
	r := bufio.NewReader(in)
	for {
		raw, err := r.ReadString('\n')
		if err != nil && err != io.EOF {
			return err
		}
		if raw == "" {
			break
		}
		line := []rune(strings.TrimSpace(strings.ReplaceAll(raw, "\uFFFE", "")))
		switch {
		case len(line) == 0 || isHyphen(line[0]):
			// empty and hyphen-only lines
			if !joinLines {
				w.WriteString("\n")
			}
			continue
		case pending && unicode.IsUpper(line[0]):
			w.WriteString("-")
		}
		pending = false
		switch {
		case !isHyphen(line[len(line)-1]):
			w.WriteString(string(line))
			w.WriteString(sep)
		case len(line) > 1 && unicode.IsUpper(line[len(line)-2]):
			// uppercase before the hyphen: keep it and join without separator
			w.WriteString(string(line))
		default:
			pending = true
			w.WriteString(string(line[:len(line)-1]))
		}
	}
	if pending {
		w.WriteString("-")
	}
	return w.Flush()
}

// String dehyphenates text.
func String(text string, joinLines bool) (string, error) {
	var b strings.Builder
	err := Dehyphenate(strings.NewReader(text), &b, joinLines)
	return b.String(), err
}

func isHyphen(r rune) bool {
	return unicode.Is(unicode.Hyphen, r)
}
