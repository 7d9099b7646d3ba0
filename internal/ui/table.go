package ui

import (
	"fmt"
	"io"
	"strings"
	"unicode/utf8"
)

// Row is one line of a Table. Muted rows render in the muted color.
type Row struct {
	Cells []string
	Muted bool
}

// Table writes rows as space-aligned columns under an accent-colored
// header. Widths are measured before coloring so escape codes never skew
// the alignment.
func Table(w io.Writer, header []string, rows []Row) error {
	widths := make([]int, len(header))
	measure := func(cells []string) {
		for i, c := range cells {
			if i >= len(widths) {
				widths = append(widths, 0)
			}
			widths[i] = max(widths[i], utf8.RuneCountInString(c))
		}
	}
	measure(header)
	for _, r := range rows {
		measure(r.Cells)
	}

	line := func(cells []string, render func(string) string) error {
		var b strings.Builder
		for i, c := range cells {
			if i > 0 {
				b.WriteString("  ")
			}
			if i < len(cells)-1 {
				c += strings.Repeat(" ", widths[i]-utf8.RuneCountInString(c))
			}
			b.WriteString(render(c))
		}
		_, err := fmt.Fprintln(w, b.String())
		return err
	}

	if err := line(header, RenderAccent); err != nil {
		return err
	}
	for _, r := range rows {
		render := RenderCommand
		if r.Muted {
			render = RenderMuted
		}
		if err := line(r.Cells, render); err != nil {
			return err
		}
	}
	return nil
}
