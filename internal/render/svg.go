package render

import (
	"fmt"
	"io"

	"github.com/smnthegr/cali-ai/internal/core/domain"
)

const (
	labelFontSize = 14.0
	// Rough advance width of the label font; good enough to size the filled
	// background behind the text.
	labelCharWidth = labelFontSize * 0.62
	labelPadding   = 4.0
)

// WriteSVG emits an SVG overlay for the detection result: one stroked
// rectangle plus a filled, text-sized label background per prediction with
// geometry.
func WriteSVG(w io.Writer, result domain.DetectionResult, displayedWidth, displayedHeight int) error {
	if _, err := fmt.Fprintf(w,
		`<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">`+"\n",
		displayedWidth, displayedHeight, displayedWidth, displayedHeight,
	); err != nil {
		return err
	}

	for _, box := range Boxes(result, displayedWidth, displayedHeight) {
		labelWidth := float64(len(box.Label))*labelCharWidth + 2*labelPadding
		labelHeight := labelFontSize + 2*labelPadding
		labelY := box.Y - labelHeight
		if labelY < 0 {
			labelY = box.Y
		}

		if _, err := fmt.Fprintf(w,
			`<rect x="%.1f" y="%.1f" width="%.1f" height="%.1f" fill="none" stroke="%s" stroke-width="3"/>`+"\n",
			box.X, box.Y, box.Width, box.Height, box.Color,
		); err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w,
			`<rect x="%.1f" y="%.1f" width="%.1f" height="%.1f" fill="%s"/>`+"\n",
			box.X, labelY, labelWidth, labelHeight, box.Color,
		); err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w,
			`<text x="%.1f" y="%.1f" font-family="sans-serif" font-size="%.0f" fill="#ffffff">%s</text>`+"\n",
			box.X+labelPadding, labelY+labelFontSize+labelPadding/2, labelFontSize, escapeText(box.Label),
		); err != nil {
			return err
		}
	}

	_, err := io.WriteString(w, "</svg>\n")
	return err
}

func escapeText(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '<':
			out = append(out, "&lt;"...)
		case '>':
			out = append(out, "&gt;"...)
		case '&':
			out = append(out, "&amp;"...)
		default:
			out = append(out, s[i])
		}
	}
	return string(out)
}
