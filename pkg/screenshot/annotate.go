package screenshot

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"strconv"
	"strings"
	"sync"

	"github.com/fogleman/gg"
	"golang.org/x/image/colornames"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/opentype"
)

// Annotation styles.
const (
	StyleArrow  = "arrow"
	StyleCircle = "circle"
	StyleBox    = "box"
)

// DefaultAnnotationColor is used when an annotation names no colour.
const DefaultAnnotationColor = "red"

// Annotation is a labelled shape baked into a capture.
type Annotation struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Text  string  `json:"text"`
	Style string  `json:"style"`
	Color string  `json:"color,omitempty"`
}

// Shape geometry in pixels.
const (
	labelSize = 16

	arrowLength      = 50
	arrowLabelOffset = 55
	arrowStroke      = 2
	arrowHeadLength  = 20
	arrowHeadHalf    = 7

	circleRadius      = 30
	circleLabelOffset = 40
	circleStroke      = 3

	boxWidth       = 60
	boxHeight      = 40
	boxLabelOffset = 30
	boxStroke      = 3
)

var (
	labelFaceOnce sync.Once
	labelFace     font.Face
	labelFaceErr  error
)

func loadLabelFace() (font.Face, error) {
	labelFaceOnce.Do(func() {
		f, err := opentype.Parse(gobold.TTF)
		if err != nil {
			labelFaceErr = fmt.Errorf("parsing label font: %w", err)
			return
		}
		labelFace, labelFaceErr = opentype.NewFace(f, &opentype.FaceOptions{
			Size:    labelSize,
			DPI:     72,
			Hinting: font.HintingFull,
		})
	})
	return labelFace, labelFaceErr
}

// parseColor accepts CSS colour names and #rgb / #rrggbb hex. Anything else
// falls back to red.
func parseColor(s string) color.Color {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		s = DefaultAnnotationColor
	}
	if c, ok := colornames.Map[s]; ok {
		return c
	}
	if strings.HasPrefix(s, "#") {
		hex := s[1:]
		if len(hex) == 3 {
			hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
		}
		if len(hex) == 6 {
			if v, err := strconv.ParseUint(hex, 16, 32); err == nil {
				return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xff}
			}
		}
	}
	return colornames.Red
}

// renderOverlay draws every annotation onto a transparent layer of the given
// size. Unknown styles draw nothing.
func renderOverlay(width, height int, annotations []Annotation) (image.Image, error) {
	face, err := loadLabelFace()
	if err != nil {
		return nil, err
	}

	dc := gg.NewContext(width, height)
	dc.SetFontFace(face)

	for _, a := range annotations {
		dc.SetColor(parseColor(a.Color))

		switch a.Style {
		case StyleArrow:
			drawArrow(dc, a)
		case StyleCircle:
			dc.SetLineWidth(circleStroke)
			dc.DrawCircle(a.X, a.Y, circleRadius)
			dc.Stroke()
			dc.DrawStringAnchored(a.Text, a.X, a.Y-circleLabelOffset, 0.5, 0)
		case StyleBox:
			dc.SetLineWidth(boxStroke)
			dc.DrawRectangle(a.X-boxWidth/2, a.Y-boxHeight/2, boxWidth, boxHeight)
			dc.Stroke()
			dc.DrawStringAnchored(a.Text, a.X, a.Y-boxLabelOffset, 0.5, 0)
		}
	}

	return dc.Image(), nil
}

// drawArrow draws a shaft from up-left of the point down to it, a filled
// head whose tip sits on the point, and the label above the shaft's start.
func drawArrow(dc *gg.Context, a Annotation) {
	x0, y0 := a.X-arrowLength, a.Y-arrowLength

	dc.SetLineWidth(arrowStroke)
	dc.DrawLine(x0, y0, a.X, a.Y)
	dc.Stroke()

	angle := math.Atan2(a.Y-y0, a.X-x0)
	baseX := a.X - arrowHeadLength*math.Cos(angle)
	baseY := a.Y - arrowHeadLength*math.Sin(angle)
	perpX, perpY := -math.Sin(angle)*arrowHeadHalf, math.Cos(angle)*arrowHeadHalf

	dc.MoveTo(a.X, a.Y)
	dc.LineTo(baseX+perpX, baseY+perpY)
	dc.LineTo(baseX-perpX, baseY-perpY)
	dc.ClosePath()
	dc.Fill()

	dc.DrawString(a.Text, a.X-arrowLabelOffset, a.Y-arrowLabelOffset)
}

// annotate flattens an overlay for annotations onto img.
func annotate(img image.Image, annotations []Annotation) (image.Image, error) {
	b := img.Bounds()
	overlay, err := renderOverlay(b.Dx(), b.Dy(), annotations)
	if err != nil {
		return nil, err
	}

	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), img, b.Min, draw.Src)
	draw.Draw(out, out.Bounds(), overlay, image.Point{}, draw.Over)
	return out, nil
}
