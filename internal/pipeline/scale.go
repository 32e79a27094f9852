package pipeline

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/wcharczuk/go-chart/v2/drawing"
)

// Scale is an ordered list of colour stops spaced evenly over [0,1].
type Scale struct {
	Name  string
	Stops []drawing.Color
}

// Built-in scales.
var (
	// OrRd is the 9-class sequential orange-red ramp.
	OrRd = mustScale("OrRd", "#fff7ec", "#fee8c8", "#fdd49e", "#fdbb84", "#fc8d59", "#ef6548", "#d7301f", "#b30000", "#7f0000")
	// Reds is a light-to-dark red ramp.
	Reds = mustScale("Reds", "#ffcccc", "#ff9999", "#ff6666", "#ff3333", "#ff0000", "#cc0000", "#990000", "#660000", "#330000")
)

var builtinScales = map[string]Scale{
	"orrd": OrRd,
	"reds": Reds,
}

// ScaleNames lists the built-in scale names.
func ScaleNames() []string { return []string{OrRd.Name, Reds.Name} }

var hexColor = regexp.MustCompile(`^#?([0-9a-fA-F]{6})$`)

// NewScale builds a scale from hex colours ("#rrggbb"). At least two stops
// are required.
func NewScale(name string, hex ...string) (Scale, error) {
	if len(hex) < 2 {
		return Scale{}, fmt.Errorf("scale %q needs at least two colours, got %d", name, len(hex))
	}
	s := Scale{Name: name, Stops: make([]drawing.Color, len(hex))}
	for i, h := range hex {
		m := hexColor.FindStringSubmatch(strings.TrimSpace(h))
		if m == nil {
			return Scale{}, fmt.Errorf("scale %q: invalid colour %q", name, h)
		}
		s.Stops[i] = drawing.ColorFromHex(m[1])
	}
	return s, nil
}

func mustScale(name string, hex ...string) Scale {
	s, err := NewScale(name, hex...)
	if err != nil {
		panic(err)
	}
	return s
}

// LookupScale resolves a built-in scale by case-insensitive name, or builds
// a custom one when custom colours are given.
func LookupScale(name string, custom []string) (Scale, error) {
	if len(custom) > 0 {
		if name == "" {
			name = "custom"
		}
		return NewScale(name, custom...)
	}
	if name == "" {
		return OrRd, nil
	}
	s, ok := builtinScales[strings.ToLower(name)]
	if !ok {
		return Scale{}, fmt.Errorf("unknown color scale %q (use %s)", name, strings.Join(ScaleNames(), ", "))
	}
	return s, nil
}

// At interpolates linearly in RGB between the two stops around t.
func (s Scale) At(t float64) drawing.Color {
	t = clamp01(t)
	n := len(s.Stops)
	if n == 0 {
		return drawing.ColorBlack
	}
	if n == 1 {
		return s.Stops[0]
	}
	pos := t * float64(n-1)
	i := int(math.Floor(pos))
	if i >= n-1 {
		return s.Stops[n-1]
	}
	f := pos - float64(i)
	a, b := s.Stops[i], s.Stops[i+1]
	return drawing.Color{
		R: lerp8(a.R, b.R, f),
		G: lerp8(a.G, b.G, f),
		B: lerp8(a.B, b.B, f),
		A: 255,
	}
}

// Bucket returns the stop of the equal-width class containing t.
func (s Scale) Bucket(t float64) drawing.Color {
	t = clamp01(t)
	n := len(s.Stops)
	if n == 0 {
		return drawing.ColorBlack
	}
	i := int(t * float64(n))
	if i >= n {
		i = n - 1
	}
	return s.Stops[i]
}

// Hex formats a colour as "#rrggbb".
func Hex(c drawing.Color) string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

func lerp8(a, b uint8, f float64) uint8 {
	return uint8(math.Round(float64(a) + (float64(b)-float64(a))*f))
}

func clamp01(t float64) float64 {
	if math.IsNaN(t) || t < 0 {
		return 0
	}
	if t > 1 {
		return 1
	}
	return t
}
