package dsp

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/floats"
)

// FFTShift returns the FFT output shifted so that DC is centered.
func FFTShift(data []complex128) []complex128 {
	n := len(data)
	if n == 0 {
		return []complex128{}
	}
	half := n / 2
	shifted := make([]complex128, 0, n)
	shifted = append(shifted, data[half:]...)
	return append(shifted, data[:half]...)
}

// Spectrum is the magnitude spectrum of one receive chunk, DC centered.
// Bins are in dBFS where a full-scale CF32 tone (amplitude 1.0) reads 0.
type Spectrum struct {
	SampleRate float64
	Bins       []float64
}

// Compute windows samples with a Hamming window, transforms them and
// normalizes by the window sum.
func Compute(samples []complex64, sampleRate float64) Spectrum {
	s := Spectrum{SampleRate: sampleRate}
	if len(samples) == 0 {
		return s
	}
	win := Hamming(len(samples))
	coeff := fourier.NewCmplxFFT(len(samples)).Coefficients(nil, ApplyWindow(samples, win))
	scale := complex(floats.Sum(win), 0)
	for i := range coeff {
		coeff[i] /= scale
	}

	shifted := FFTShift(coeff)
	s.Bins = make([]float64, len(shifted))
	for i, v := range shifted {
		s.Bins[i] = toDB(cmplx.Abs(v), 20)
	}
	return s
}

// Offset returns the frequency of bin i relative to the tuned frequency.
func (s Spectrum) Offset(i int) float64 {
	n := len(s.Bins)
	if n == 0 {
		return 0
	}
	return float64(i-n/2) * s.SampleRate / float64(n)
}

// Peak returns the offset and level of the strongest bin.
func (s Spectrum) Peak() (offset, level float64) {
	if len(s.Bins) == 0 {
		return 0, math.Inf(-1)
	}
	i := floats.MaxIdx(s.Bins)
	return s.Offset(i), s.Bins[i]
}

// MeanPower is the average sample power in dBFS.
func MeanPower(samples []complex64) float64 {
	if len(samples) == 0 {
		return math.Inf(-1)
	}
	power := make([]float64, len(samples))
	for i, v := range samples {
		re, im := float64(real(v)), float64(imag(v))
		power[i] = re*re + im*im
	}
	return toDB(floats.Sum(power)/float64(len(power)), 10)
}

func toDB(v, factor float64) float64 {
	if v == 0 {
		return math.Inf(-1)
	}
	return factor * math.Log10(v)
}
