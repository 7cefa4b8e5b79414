package rembg

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"
	"net/url"
	"strconv"
	"strings"

	"github.com/nfnt/resize"
	"golang.org/x/image/colornames"
	"golang.org/x/image/draw"
)

var (
	ErrInvalidColor = errors.New("invalid background color")
	ErrInvalidURL   = errors.New("invalid background url")
)

// IsImageURL 以 http 开头的背景描述按图片地址处理，其余按颜色解析
func IsImageURL(spec string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(spec)), "http")
}

// ValidateImageURL 只接受带 host 的 http/https 地址
func ValidateImageURL(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	scheme := strings.ToLower(u.Scheme)
	if (scheme != "http" && scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: %q", ErrInvalidURL, raw)
	}
	return nil
}

// ParseColor 解析颜色描述
//
//	#rgb #rgba #rrggbb #rrggbbaa
//	CSS 颜色名，例如 red、white、transparent
//	rgb(r,g,b) rgba(r,g,b,a)，分量是 0~255 的整数或 0%~100%，
//	a 还可以是 0~1 的小数
//	hsl(h,s%,l%) hsv(h,s%,v%) hsb(h,s%,b%)，h 单位为度
func ParseColor(raw string) (color.NRGBA, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	switch {
	case s == "":
		return color.NRGBA{}, fmt.Errorf("%w: empty", ErrInvalidColor)
	case strings.HasPrefix(s, "#"):
		return parseHexColor(s[1:], raw)
	case strings.HasPrefix(s, "rgb"), strings.HasPrefix(s, "hs"):
		return parseFuncColor(s, raw)
	case s == "transparent":
		return color.NRGBA{}, nil
	}

	if c, ok := colornames.Map[s]; ok {
		return color.NRGBA{R: c.R, G: c.G, B: c.B, A: c.A}, nil
	}
	return color.NRGBA{}, fmt.Errorf("%w: %q", ErrInvalidColor, raw)
}

func parseHexColor(hex, raw string) (color.NRGBA, error) {
	switch len(hex) {
	case 3, 4:
		// #rgb 每位重复一次
		expanded := make([]byte, 0, len(hex)*2)
		for i := 0; i < len(hex); i++ {
			expanded = append(expanded, hex[i], hex[i])
		}
		hex = string(expanded)
	case 6, 8:
	default:
		return color.NRGBA{}, fmt.Errorf("%w: %q", ErrInvalidColor, raw)
	}

	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.NRGBA{}, fmt.Errorf("%w: %q", ErrInvalidColor, raw)
	}
	if len(hex) == 6 {
		v = v<<8 | 0xff
	}
	return color.NRGBA{R: uint8(v >> 24), G: uint8(v >> 16), B: uint8(v >> 8), A: uint8(v)}, nil
}

func parseFuncColor(s, raw string) (color.NRGBA, error) {
	invalid := fmt.Errorf("%w: %q", ErrInvalidColor, raw)

	open, end := strings.IndexByte(s, '('), strings.LastIndexByte(s, ')')
	if open < 0 || end != len(s)-1 {
		return color.NRGBA{}, invalid
	}
	name := strings.TrimSpace(s[:open])
	args := strings.Split(s[open+1:end], ",")
	for i := range args {
		args[i] = strings.TrimSpace(args[i])
	}

	switch name {
	case "rgb", "rgba":
		want := 3
		if name == "rgba" {
			want = 4
		}
		if len(args) != want {
			return color.NRGBA{}, invalid
		}
		c := color.NRGBA{A: 0xff}
		for i, dst := range []*uint8{&c.R, &c.G, &c.B} {
			v, ok := parseChannel(args[i])
			if !ok {
				return color.NRGBA{}, invalid
			}
			*dst = v
		}
		if len(args) == 4 {
			a, ok := parseAlpha(args[3])
			if !ok {
				return color.NRGBA{}, invalid
			}
			c.A = a
		}
		return c, nil

	case "hsl", "hsv", "hsb":
		if len(args) != 3 {
			return color.NRGBA{}, invalid
		}
		h, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			return color.NRGBA{}, invalid
		}
		sat, ok1 := parsePercent(args[1])
		third, ok2 := parsePercent(args[2])
		if !ok1 || !ok2 {
			return color.NRGBA{}, invalid
		}
		h = math.Mod(h/360, 1)
		if h < 0 {
			h++
		}
		var r, g, b float64
		if name == "hsl" {
			r, g, b = hslToRGB(h, sat, third)
		} else {
			r, g, b = hsvToRGB(h, sat, third)
		}
		return color.NRGBA{R: unitToByte(r), G: unitToByte(g), B: unitToByte(b), A: 0xff}, nil
	}
	return color.NRGBA{}, invalid
}

// parseChannel 0~255 的整数或 0%~100%
func parseChannel(p string) (uint8, bool) {
	if strings.HasSuffix(p, "%") {
		f, ok := parsePercent(p)
		return unitToByte(f), ok
	}
	n, err := strconv.Atoi(p)
	if err != nil || n < 0 || n > 255 {
		return 0, false
	}
	return uint8(n), true
}

// parseAlpha 在 parseChannel 基础上多接受 0~1 的小数
func parseAlpha(p string) (uint8, bool) {
	if strings.Contains(p, ".") && !strings.HasSuffix(p, "%") {
		f, err := strconv.ParseFloat(p, 64)
		if err != nil || f < 0 || f > 1 {
			return 0, false
		}
		return unitToByte(f), true
	}
	return parseChannel(p)
}

// parsePercent 解析 "n%"，返回 0~1
func parsePercent(p string) (float64, bool) {
	num, ok := strings.CutSuffix(p, "%")
	if !ok {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(num), 64)
	if err != nil || f < 0 || f > 100 {
		return 0, false
	}
	return f / 100, true
}

func unitToByte(f float64) uint8 {
	return uint8(f*255 + 0.5)
}

// hslToRGB 各分量都在 0~1
func hslToRGB(h, s, l float64) (r, g, b float64) {
	if s == 0 {
		return l, l, l
	}
	var m2 float64
	if l <= 0.5 {
		m2 = l * (1 + s)
	} else {
		m2 = l + s - l*s
	}
	m1 := 2*l - m2
	return hueToChannel(m1, m2, h+1.0/3), hueToChannel(m1, m2, h), hueToChannel(m1, m2, h-1.0/3)
}

func hueToChannel(m1, m2, hue float64) float64 {
	hue = math.Mod(hue, 1)
	if hue < 0 {
		hue++
	}
	switch {
	case hue < 1.0/6:
		return m1 + (m2-m1)*hue*6
	case hue < 0.5:
		return m2
	case hue < 2.0/3:
		return m1 + (m2-m1)*(2.0/3-hue)*6
	}
	return m1
}

func hsvToRGB(h, s, v float64) (r, g, b float64) {
	if s == 0 {
		return v, v, v
	}
	i := int(h * 6)
	f := h*6 - float64(i)
	p := v * (1 - s)
	q := v * (1 - s*f)
	t := v * (1 - s*(1-f))
	switch i % 6 {
	case 0:
		return v, t, p
	case 1:
		return q, v, p
	case 2:
		return p, v, t
	case 3:
		return p, q, v
	case 4:
		return t, p, v
	}
	return v, p, q
}

// SolidBackground 生成指定尺寸的纯色画布
func SolidBackground(c color.Color, size image.Point) *image.NRGBA {
	bg := image.NewNRGBA(image.Rect(0, 0, size.X, size.Y))
	draw.Draw(bg, bg.Bounds(), image.NewUniform(c), image.Point{}, draw.Src)
	return bg
}

// FitBackground 把背景图拉伸到和前景完全一致的像素尺寸 (Lanczos3)
func FitBackground(bg image.Image, size image.Point) image.Image {
	b := bg.Bounds()
	if b.Dx() == size.X && b.Dy() == size.Y {
		return bg
	}
	return resize.Resize(uint(size.X), uint(size.Y), bg, resize.Lanczos3)
}
