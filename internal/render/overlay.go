// Package render rescales model-space detection geometry into display-space
// overlay boxes, the server-side counterpart of the browser canvas renderer.
package render

import "github.com/smnthegr/cali-ai/internal/core/domain"

// palette is cycled by prediction position so a given result always renders
// with the same colors.
var palette = []string{
	"#00bcd4", // cyan
	"#ff5722", // deep orange
	"#8bc34a", // light green
	"#ffc107", // amber
	"#e91e63", // pink
	"#3f51b5", // indigo
}

// Box is one drawable overlay rectangle in display pixel space.
type Box struct {
	X      float64
	Y      float64
	Width  float64
	Height float64

	Label       string
	Description string
	Color       string
}

// Boxes converts each prediction's center+size geometry from the model's
// reported image dimensions into corner coordinates in the displayed image's
// pixel space (scale = displayed / reported per axis). Predictions without
// geometry yield no box.
func Boxes(result domain.DetectionResult, displayedWidth, displayedHeight int) []Box {
	scaleX := scale(displayedWidth, result.ImageWidth)
	scaleY := scale(displayedHeight, result.ImageHeight)

	var boxes []Box
	for i, pred := range result.AllPredictions {
		geo := pred.Geometry
		if geo == nil {
			continue
		}

		w := geo.Width * scaleX
		h := geo.Height * scaleY
		box := Box{
			X:      geo.CenterX*scaleX - w/2,
			Y:      geo.CenterY*scaleY - h/2,
			Width:  w,
			Height: h,
			Label:  pred.Label,
			Color:  palette[i%len(palette)],
		}
		if pred.Info != nil {
			box.Label = pred.Info.CanonicalName
			box.Description = pred.Info.Description
		}
		boxes = append(boxes, box)
	}
	return boxes
}

func scale(displayed, reported int) float64 {
	if reported <= 0 || displayed <= 0 {
		return 1
	}
	return float64(displayed) / float64(reported)
}
