package annotation

import (
	"fmt"
	"image/color"
	"strconv"
	"strings"

	"gocv.io/x/gocv"

	"espcam-worker-go/internal/config"
)

// Style holds the drawing parameters for boxes, labels and the HUD.
type Style struct {
	Face          gocv.HersheyFont
	LabelScale    float64
	LabelThick    int
	BoxThickness  int
	LabelPadding  int
	LabelColor    color.RGBA
	HUDScale      float64
	HUDThickness  int
	HUDLineHeight int
	HUDPadding    int
	HUDColor      color.RGBA
	ShadowColor   color.RGBA
	ShadowOffset  int
}

var (
	white = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	black = color.RGBA{A: 255}
)

// DefaultStyle matches the look of the desktop detector: thin white labels on
// class-colored boxes and a white FPS line with a dark drop shadow.
func DefaultStyle() Style {
	return Style{
		Face:          gocv.FontHersheySimplex,
		LabelScale:    0.5,
		LabelThick:    1,
		BoxThickness:  2,
		LabelPadding:  4,
		LabelColor:    white,
		HUDScale:      0.6,
		HUDThickness:  2,
		HUDLineHeight: 25,
		HUDPadding:    10,
		HUDColor:      white,
		ShadowColor:   black,
		ShadowOffset:  2,
	}
}

// StyleFromConfig applies the overlay font and color settings to DefaultStyle.
func StyleFromConfig(cfg *config.Config) Style {
	s := DefaultStyle()
	if cfg == nil {
		return s
	}
	// OverlayFont directly maps to gocv font constants
	s.Face = gocv.HersheyFont(cfg.OverlayFont)
	if cfg.OverlayColor != "" {
		if c, err := parseHexColor(cfg.OverlayColor); err == nil {
			// Keep text readable over the shadow: dark colors fall back to white
			if !isDarkColor(c) {
				s.HUDColor = c
			}
		}
	}
	return s
}

// palette is indexed by class id so a class keeps its color across frames.
var palette = []color.RGBA{
	hex("#FF3838"), hex("#FF9D97"), hex("#FF701F"), hex("#FFB21D"),
	hex("#CFD231"), hex("#48F90A"), hex("#92CC17"), hex("#3DDB86"),
	hex("#1A9334"), hex("#00D4BB"), hex("#2C99A8"), hex("#00C2FF"),
	hex("#344593"), hex("#6473FF"), hex("#0018EC"), hex("#8438FF"),
	hex("#520085"), hex("#CB38FF"), hex("#FF95C8"), hex("#FF37C7"),
}

// ClassColor returns the box color for a class id.
func ClassColor(classID int) color.RGBA {
	if classID < 0 {
		classID = -classID
	}
	return palette[classID%len(palette)]
}

func hex(s string) color.RGBA {
	c, err := parseHexColor(s)
	if err != nil {
		panic(err)
	}
	return c
}

func parseHexColor(s string) (color.RGBA, error) {
	var c color.RGBA
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "#")
	if len(s) != 6 {
		return c, fmt.Errorf("invalid color length: %s", s)
	}
	r, err := strconv.ParseUint(s[0:2], 16, 8)
	if err != nil {
		return c, err
	}
	g, err := strconv.ParseUint(s[2:4], 16, 8)
	if err != nil {
		return c, err
	}
	b, err := strconv.ParseUint(s[4:6], 16, 8)
	if err != nil {
		return c, err
	}
	return color.RGBA{R: uint8(r), G: uint8(g), B: uint8(b), A: 255}, nil
}

func isDarkColor(c color.RGBA) bool {
	// sRGB luminance: 0.2126 R + 0.7152 G + 0.0722 B, threshold ~128
	luminance := 0.2126*float64(c.R) + 0.7152*float64(c.G) + 0.0722*float64(c.B)
	return luminance < 128
}
