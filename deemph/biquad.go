// Package deemph undoes the 50/15µs pre-emphasis some CDs were mastered
// with. The curve is approximated by a shelving biquad per channel.
package deemph

import "math"

// Coefficients of a biquad normalized so that a0 is 1.
type Coefficients struct {
	B0, B1, B2 float64
	A1, A2     float64
}

// shelf computes the shared terms of the cookbook shelving filters.
func shelf(freq, slope, gainDB, sampleRate float64) (a, cosw0, sqrtA2alpha float64) {
	a = math.Pow(10, gainDB/40)
	w0 := 2 * math.Pi * freq / sampleRate
	alpha := math.Sin(w0) / 2 * math.Sqrt((a+1/a)*(1/slope-1)+2)
	return a, math.Cos(w0), 2 * math.Sqrt(a) * alpha
}

// LowShelf returns the cookbook low shelf filter. gainDB is the gain
// below freq.
func LowShelf(freq, slope, gainDB, sampleRate float64) Coefficients {
	a, c, s := shelf(freq, slope, gainDB, sampleRate)
	a0 := (a + 1) + (a-1)*c + s
	return Coefficients{
		B0: a * ((a + 1) - (a-1)*c + s) / a0,
		B1: 2 * a * ((a - 1) - (a+1)*c) / a0,
		B2: a * ((a + 1) - (a-1)*c - s) / a0,
		A1: -2 * ((a - 1) + (a+1)*c) / a0,
		A2: ((a + 1) + (a-1)*c - s) / a0,
	}
}

// HighShelf returns the cookbook high shelf filter. gainDB is the gain
// above freq.
func HighShelf(freq, slope, gainDB, sampleRate float64) Coefficients {
	a, c, s := shelf(freq, slope, gainDB, sampleRate)
	a0 := (a + 1) - (a-1)*c + s
	return Coefficients{
		B0: a * ((a + 1) + (a-1)*c + s) / a0,
		B1: -2 * a * ((a - 1) + (a+1)*c) / a0,
		B2: a * ((a + 1) + (a-1)*c - s) / a0,
		A1: 2 * ((a - 1) - (a+1)*c) / a0,
		A2: ((a + 1) - (a-1)*c - s) / a0,
	}
}

// Gain returns the magnitude response at freq.
func (c Coefficients) Gain(freq, sampleRate float64) float64 {
	w := 2 * math.Pi * freq / sampleRate
	// evaluate b(z)/a(z) at z = e^jw
	z1 := complex(math.Cos(w), -math.Sin(w))
	z2 := z1 * z1
	num := complex(c.B0, 0) + complex(c.B1, 0)*z1 + complex(c.B2, 0)*z2
	den := 1 + complex(c.A1, 0)*z1 + complex(c.A2, 0)*z2
	r := num / den
	return math.Hypot(real(r), imag(r))
}

// Biquad is a direct form I second order IIR filter.
type Biquad struct {
	c      Coefficients
	x1, x2 float64
	y1, y2 float64
}

// NewBiquad creates a filter with cleared history.
func NewBiquad(c Coefficients) *Biquad {
	return &Biquad{c: c}
}

// Reset clears the filter history.
func (f *Biquad) Reset() {
	f.x1, f.x2, f.y1, f.y2 = 0, 0, 0, 0
}

// Process runs one sample through the filter.
func (f *Biquad) Process(in float32) float32 {
	x := float64(in)
	y := f.c.B0*x + f.c.B1*f.x1 + f.c.B2*f.x2 - f.c.A1*f.y1 - f.c.A2*f.y2
	f.x2, f.x1 = f.x1, x
	f.y2, f.y1 = f.y1, y
	return float32(y)
}
