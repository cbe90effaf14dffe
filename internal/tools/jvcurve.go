package tools

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math"
)

const (
	jvPoints  = 100
	thermalV  = 0.026
	plotW     = 640
	plotH     = 480
	plotInset = 48
)

var (
	colBackground = color.RGBA{255, 255, 255, 255}
	colAxis       = color.RGBA{40, 40, 40, 255}
	colGrid       = color.RGBA{225, 225, 225, 255}
	colCurve      = color.RGBA{31, 119, 180, 255}
	colMPP        = color.RGBA{214, 39, 40, 255}
)

// JVPoint is one (voltage, current density) sample.
type JVPoint struct {
	V float64
	J float64
}

// JVCurve samples J = Jsc * (1 - exp((V - Voc) / Vt)) from 0 to Voc.
func JVCurve(m SolarMetrics) []JVPoint {
	pts := make([]JVPoint, jvPoints)
	for i := range pts {
		v := m.Voc * float64(i) / float64(jvPoints-1)
		pts[i] = JVPoint{V: v, J: m.Jsc * (1 - math.Exp((v-m.Voc)/thermalV))}
	}
	return pts
}

// RenderJVCurve plots the JV curve with the max power point marked.
func RenderJVCurve(m SolarMetrics) ([]byte, error) {
	if m.Voc <= 0 || m.Jsc <= 0 {
		return nil, errors.New("Voc and Jsc must be positive")
	}

	img := image.NewRGBA(image.Rect(0, 0, plotW, plotH))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: colBackground}, image.Point{}, draw.Src)

	maxV := m.Voc * 1.05
	maxJ := m.Jsc * 1.1
	toPx := func(v, j float64) (int, int) {
		x := plotInset + int(v/maxV*float64(plotW-2*plotInset))
		y := plotH - plotInset - int(j/maxJ*float64(plotH-2*plotInset))
		return x, y
	}

	for k := 1; k <= 4; k++ {
		x, _ := toPx(maxV*float64(k)/5, 0)
		_, y := toPx(0, maxJ*float64(k)/5)
		line(img, x, plotInset, x, plotH-plotInset, colGrid)
		line(img, plotInset, y, plotW-plotInset, y, colGrid)
	}
	line(img, plotInset, plotH-plotInset, plotW-plotInset, plotH-plotInset, colAxis)
	line(img, plotInset, plotInset, plotInset, plotH-plotInset, colAxis)

	pts := JVCurve(m)
	for i := 1; i < len(pts); i++ {
		x0, y0 := toPx(pts[i-1].V, pts[i-1].J)
		x1, y1 := toPx(pts[i].V, pts[i].J)
		line(img, x0, y0, x1, y1, colCurve)
		line(img, x0, y0+1, x1, y1+1, colCurve)
	}

	mx, my := toPx(m.Vm, m.Im)
	for dy := -4; dy <= 4; dy++ {
		for dx := -4; dx <= 4; dx++ {
			if dx*dx+dy*dy <= 16 {
				img.Set(mx+dx, my+dy, colMPP)
			}
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// line draws with Bresenham's algorithm.
func line(img *image.RGBA, x0, y0, x1, y1 int, c color.RGBA) {
	dx := abs(x1 - x0)
	dy := -abs(y1 - y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	e := dx + dy
	for {
		img.SetRGBA(x0, y0, c)
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * e
		if e2 >= dy {
			e += dy
			x0 += sx
		}
		if e2 <= dx {
			e += dx
			y0 += sy
		}
	}
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
