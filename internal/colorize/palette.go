// Package colorize resolves print palettes and paints solids with
// per-vertex colors by height.
package colorize

import (
	"fmt"
	"image/color"
	"strings"

	"gonum.org/v1/plot/palette"
)

// namedColors is the fixed lookup table for filament names.
var namedColors = map[string]color.RGBA{
	"red":     {R: 255, A: 255},
	"green":   {G: 255, A: 255},
	"blue":    {B: 255, A: 255},
	"yellow":  {R: 255, G: 255, A: 255},
	"orange":  {R: 255, G: 165, A: 255},
	"purple":  {R: 128, B: 128, A: 255},
	"cyan":    {G: 255, B: 255, A: 255},
	"magenta": {R: 255, B: 255, A: 255},
	"brown":   {R: 139, G: 69, B: 19, A: 255},
	"pink":    {R: 255, G: 192, B: 203, A: 255},
	"navy":    {B: 128, A: 255},
	"dark":    {R: 64, G: 64, B: 64, A: 255},
	"light":   {R: 192, G: 192, B: 192, A: 255},
	"white":   {R: 255, G: 255, B: 255, A: 255},
	"black":   {A: 255},
}

// NamedColor looks up a filament color by name, ignoring case.
func NamedColor(name string) (color.RGBA, bool) {
	c, ok := namedColors[strings.ToLower(strings.TrimSpace(name))]
	return c, ok
}

// Palette is an ordered list of colors, lowest band first.
type Palette struct {
	Colors []color.RGBA
	Names  []string
}

// Len returns the number of colors.
func (p Palette) Len() int {
	return len(p.Colors)
}

// At returns color i, clamped to the palette.
func (p Palette) At(i int) color.RGBA {
	if len(p.Colors) == 0 {
		return color.RGBA{A: 255}
	}
	return p.Colors[max(0, min(i, len(p.Colors)-1))]
}

// Legend returns one line per band: index, name and hex value.
func (p Palette) Legend() []string {
	lines := make([]string, len(p.Colors))
	for i, c := range p.Colors {
		lines[i] = fmt.Sprintf("zone %d: %-8s %s", i+1, p.Names[i], Hex(c))
	}
	return lines
}

// Hex formats c as #rrggbb.
func Hex(c color.RGBA) string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

// ResolvePalette builds an n-color palette. With no names it returns the
// default gradient. Known names come from the lookup table; unknown names
// and missing trailing entries get a hue-rotation color.
func ResolvePalette(names []string, n int) Palette {
	if len(names) == 0 {
		return Gradient(n)
	}
	p := Palette{
		Colors: make([]color.RGBA, 0, n),
		Names:  make([]string, 0, n),
	}
	for i := range n {
		name := fmt.Sprintf("zone%d", i+1)
		if i < len(names) {
			name = strings.TrimSpace(names[i])
		}
		c, ok := NamedColor(name)
		if !ok {
			c = rotatedHue(len(p.Colors))
		}
		p.Colors = append(p.Colors, c)
		p.Names = append(p.Names, name)
	}
	return p
}

// rotatedHue returns a fully saturated color 60 degrees further round the
// hue circle for each index.
func rotatedHue(index int) color.RGBA {
	hue := float64((index*60)%360) / 360
	c := palette.HSVA{H: hue, S: 1, V: 1, A: 1}
	return color.RGBAModel.Convert(c).(color.RGBA)
}

// Gradient returns n colors running blue, green, yellow, red.
func Gradient(n int) Palette {
	p := Palette{
		Colors: make([]color.RGBA, n),
		Names:  make([]string, n),
	}
	for i := range n {
		ratio := 0.0
		if n > 1 {
			ratio = float64(i) / float64(n-1)
		}
		var r, g, b float64
		switch {
		case ratio < 0.33:
			g = 255 * (ratio / 0.33)
			b = 255 * (1 - ratio/0.33)
		case ratio < 0.66:
			r = 255 * ((ratio - 0.33) / 0.33)
			g = 255
		default:
			r = 255
			g = 255 * (1 - (ratio-0.66)/0.34)
		}
		c := color.RGBA{R: uint8(r), G: uint8(g), B: uint8(b), A: 255}
		p.Colors[i] = c
		p.Names[i] = Hex(c)
	}
	return p
}
