package video

import (
	"hash/fnv"
	"image"
	"image/color"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Box is a labelled bounding box given by its centre and size.
type Box struct {
	CX, CY, W, H float64
	Label        string
}

// Rect converts the box to integer pixel bounds.
func (b Box) Rect() image.Rectangle {
	return image.Rect(
		int(b.CX-b.W/2), int(b.CY-b.H/2),
		int(b.CX+b.W/2), int(b.CY+b.H/2),
	)
}

const borderWidth = 2

var palette = []color.RGBA{
	{R: 255, G: 56, B: 56, A: 255},
	{R: 255, G: 157, B: 151, A: 255},
	{R: 255, G: 112, B: 31, A: 255},
	{R: 255, G: 178, B: 29, A: 255},
	{R: 72, G: 249, B: 10, A: 255},
	{R: 0, G: 194, B: 255, A: 255},
	{R: 52, G: 69, B: 147, A: 255},
	{R: 203, G: 56, B: 255, A: 255},
}

// Annotate returns a copy of img with each box outlined and labelled. The
// input image is left untouched.
func Annotate(img image.Image, boxes []Box) *image.RGBA {
	bounds := img.Bounds()
	dst := image.NewRGBA(bounds)
	draw.Draw(dst, bounds, img, bounds.Min, draw.Src)

	face := basicfont.Face7x13
	for _, b := range boxes {
		r := b.Rect().Add(bounds.Min).Intersect(bounds)
		if r.Empty() {
			continue
		}
		c := colorFor(b.Label)
		outline(dst, r, c)

		if b.Label == "" {
			continue
		}
		width := font.MeasureString(face, b.Label).Ceil() + 4
		height := face.Metrics().Height.Ceil() + 2
		bg := image.Rect(r.Min.X, r.Min.Y-height, r.Min.X+width, r.Min.Y)
		if bg.Min.Y < bounds.Min.Y {
			bg = bg.Add(image.Pt(0, height))
		}
		draw.Draw(dst, bg.Intersect(bounds), image.NewUniform(c), image.Point{}, draw.Src)
		d := font.Drawer{
			Dst:  dst,
			Src:  image.White,
			Face: face,
			Dot:  fixed.P(bg.Min.X+2, bg.Max.Y-3),
		}
		d.DrawString(b.Label)
	}
	return dst
}

func outline(dst *image.RGBA, r image.Rectangle, c color.RGBA) {
	u := image.NewUniform(c)
	edges := []image.Rectangle{
		image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+borderWidth),
		image.Rect(r.Min.X, r.Max.Y-borderWidth, r.Max.X, r.Max.Y),
		image.Rect(r.Min.X, r.Min.Y, r.Min.X+borderWidth, r.Max.Y),
		image.Rect(r.Max.X-borderWidth, r.Min.Y, r.Max.X, r.Max.Y),
	}
	for _, e := range edges {
		draw.Draw(dst, e.Intersect(r), u, image.Point{}, draw.Src)
	}
}

func colorFor(label string) color.RGBA {
	h := fnv.New32a()
	h.Write([]byte(label))
	return palette[h.Sum32()%uint32(len(palette))]
}
