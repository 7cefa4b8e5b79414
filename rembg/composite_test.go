package rembg

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gradientImage(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x * 7), G: uint8(y * 11), B: uint8(x + y), A: 255})
		}
	}
	return img
}

func uniformMask(w, h int, v uint8) *image.Gray {
	m := image.NewGray(image.Rect(0, 0, w, h))
	for i := range m.Pix {
		m.Pix[i] = v
	}
	return m
}

func TestCutout(t *testing.T) {
	t.Parallel()

	img := gradientImage(20, 10)
	mask := image.NewGray(img.Rect)
	mask.SetGray(3, 4, color.Gray{Y: 128})

	out, err := Cutout(img, mask)
	require.NoError(t, err)
	assert.Equal(t, img.Rect, out.Rect)

	c := out.NRGBAAt(3, 4)
	want := img.NRGBAAt(3, 4)
	assert.Equal(t, color.NRGBA{R: want.R, G: want.G, B: want.B, A: 128}, c)
	assert.Equal(t, uint8(0), out.NRGBAAt(0, 0).A)

	// 原图不被修改
	assert.Equal(t, uint8(255), img.NRGBAAt(3, 4).A)
}

func TestCutout_SizeMismatch(t *testing.T) {
	t.Parallel()

	_, err := Cutout(gradientImage(20, 10), uniformMask(10, 10, 255))
	assert.Error(t, err)
}

func TestComposite_OpaqueMaskKeepsForeground(t *testing.T) {
	t.Parallel()

	img := gradientImage(16, 12)
	fg, err := Cutout(img, uniformMask(16, 12, 255))
	require.NoError(t, err)

	out, err := Composite(fg, SolidBackground(color.NRGBA{R: 9, G: 200, B: 77, A: 255}, image.Pt(16, 12)))
	require.NoError(t, err)
	assert.Equal(t, img.Pix, out.Pix)
}

func TestComposite_TransparentMaskKeepsBackground(t *testing.T) {
	t.Parallel()

	img := gradientImage(16, 12)
	bg := gradientImage(16, 12)
	for i := 0; i < len(bg.Pix); i += 4 {
		bg.Pix[i] = 255 - bg.Pix[i]
	}

	fg, err := Cutout(img, uniformMask(16, 12, 0))
	require.NoError(t, err)

	out, err := Composite(fg, bg)
	require.NoError(t, err)
	assert.Equal(t, bg.Pix, out.Pix)
}

func TestComposite_HalfAlpha(t *testing.T) {
	t.Parallel()

	fg := SolidBackground(color.NRGBA{R: 200, G: 100, B: 0, A: 128}, image.Pt(2, 2))
	bg := SolidBackground(color.NRGBA{R: 0, G: 0, B: 100, A: 255}, image.Pt(2, 2))

	out, err := Composite(fg, bg)
	require.NoError(t, err)

	c := out.NRGBAAt(1, 1)
	a := 128.0 / 255
	assert.InDelta(t, 200*a, float64(c.R), 1)
	assert.InDelta(t, 100*a, float64(c.G), 1)
	assert.InDelta(t, 100*(1-a), float64(c.B), 1)
	assert.Equal(t, uint8(255), c.A)
}

func TestComposite_RedBackground(t *testing.T) {
	t.Parallel()

	red, err := ParseColor("#FF0000")
	require.NoError(t, err)

	fg, err := Cutout(gradientImage(8, 8), uniformMask(8, 8, 0))
	require.NoError(t, err)

	out, err := Composite(fg, SolidBackground(red, image.Pt(8, 8)))
	require.NoError(t, err)
	for i := 0; i < len(out.Pix); i += 4 {
		assert.Equal(t, []uint8{255, 0, 0, 255}, out.Pix[i:i+4])
	}
}

func TestComposite_SizeMismatch(t *testing.T) {
	t.Parallel()

	_, err := Composite(gradientImage(4, 4), gradientImage(5, 4))
	assert.Error(t, err)
}

func TestFitBackground(t *testing.T) {
	t.Parallel()

	bg := gradientImage(40, 30)
	got := FitBackground(bg, image.Pt(13, 57))
	assert.Equal(t, image.Pt(13, 57), got.Bounds().Size())

	same := FitBackground(bg, image.Pt(40, 30))
	assert.Same(t, bg, same)
}
