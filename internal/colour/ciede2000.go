// Package colour holds the colour-difference maths used by the capture flow.
package colour

import "math"

// Lab is a CIE L*a*b* colour.
type Lab struct {
	L float64 `json:"L" yaml:"L"`
	A float64 `json:"a" yaml:"a"`
	B float64 `json:"b" yaml:"b"`
}

var pow25to7 = math.Pow(25, 7)

// DeltaE2000 is the CIEDE2000 colour difference with unit weighting factors.
func DeltaE2000(x, y Lab) float64 {
	c1 := math.Hypot(x.A, x.B)
	c2 := math.Hypot(y.A, y.B)
	cBar7 := math.Pow((c1+c2)/2, 7)
	g := 0.5 * (1 - math.Sqrt(cBar7/(cBar7+pow25to7)))

	a1p := (1 + g) * x.A
	a2p := (1 + g) * y.A
	c1p := math.Hypot(a1p, x.B)
	c2p := math.Hypot(a2p, y.B)
	h1p := hueAngle(x.B, a1p)
	h2p := hueAngle(y.B, a2p)
	chromaProduct := c1p * c2p

	dLp := y.L - x.L
	dCp := c2p - c1p
	dhp := 0.0
	if chromaProduct != 0 {
		dhp = h2p - h1p
		if dhp > 180 {
			dhp -= 360
		} else if dhp < -180 {
			dhp += 360
		}
	}
	dHp := 2 * math.Sqrt(chromaProduct) * math.Sin(radians(dhp/2))

	lBarp := (x.L + y.L) / 2
	cBarp := (c1p + c2p) / 2
	var hBarp float64
	switch {
	case chromaProduct == 0:
		hBarp = h1p + h2p
	case math.Abs(h1p-h2p) <= 180:
		hBarp = (h1p + h2p) / 2
	case h1p+h2p < 360:
		hBarp = (h1p + h2p + 360) / 2
	default:
		hBarp = (h1p + h2p - 360) / 2
	}

	t := 1 -
		0.17*math.Cos(radians(hBarp-30)) +
		0.24*math.Cos(radians(2*hBarp)) +
		0.32*math.Cos(radians(3*hBarp+6)) -
		0.20*math.Cos(radians(4*hBarp-63))
	dTheta := 30 * math.Exp(-math.Pow((hBarp-275)/25, 2))
	cBarp7 := math.Pow(cBarp, 7)
	rC := 2 * math.Sqrt(cBarp7/(cBarp7+pow25to7))
	l50 := (lBarp - 50) * (lBarp - 50)
	sL := 1 + 0.015*l50/math.Sqrt(20+l50)
	sC := 1 + 0.045*cBarp
	sH := 1 + 0.015*cBarp*t
	rT := -math.Sin(radians(2*dTheta)) * rC

	l := dLp / sL
	c := dCp / sC
	h := dHp / sH
	return math.Sqrt(l*l + c*c + h*h + rT*c*h)
}

// hueAngle is atan2(b, a) in degrees within [0, 360).
func hueAngle(b, a float64) float64 {
	if a == 0 && b == 0 {
		return 0
	}
	h := math.Atan2(b, a) * 180 / math.Pi
	if h < 0 {
		h += 360
	}
	return h
}

func radians(deg float64) float64 { return deg * math.Pi / 180 }
