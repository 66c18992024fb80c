package bpm

import (
	"math"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
	"gonum.org/v1/gonum/dsp/window"
	"gonum.org/v1/gonum/stat"
)

const (
	frameSize = 2048
	hopSize   = 512

	minBPM       = 60.0
	maxBPM       = 200.0
	preferredBPM = 128.0

	// log compression applied to spectral magnitudes before differencing
	logGain = 100.0
)

// EstimateSamples estimates the tempo of mono samples. It returns nil when
// the signal is too short, has no periodic onsets or the estimate is below
// MinConfidence.
func EstimateSamples(samples []float64, sampleRate int) *Estimate {
	if sampleRate <= 0 || len(samples) < frameSize*4 {
		return nil
	}

	env := onsetEnvelope(samples)
	frameRate := float64(sampleRate) / hopSize

	period := tempoPeriod(env, frameRate)
	if period <= 0 {
		return nil
	}

	beats := trackBeats(env, period)
	intervals := make([]float64, 0, len(beats))
	for i := 1; i < len(beats); i++ {
		intervals = append(intervals, float64(beats[i]-beats[i-1])/frameRate)
	}

	tempo := 60 * frameRate / float64(period)
	if len(beats) > 4 {
		if mean := stat.Mean(intervals, nil); mean > 0 {
			tempo = 60 / mean
		}
	}

	bpm := CorrectOctave(int(math.Round(tempo)))
	confidence := ConfidenceFromIntervals(intervals)
	if bpm <= 0 || confidence < MinConfidence {
		return nil
	}

	return &Estimate{BPM: bpm, Confidence: confidence}
}

// CorrectOctave folds half and double time readings into the 70..180 range
// dance music usually sits in
func CorrectOctave(bpm int) int {
	if bpm < 70 {
		return bpm * 2
	}
	if bpm > 180 {
		return bpm / 2
	}
	return bpm
}

// ConfidenceFromIntervals scores beat regularity as 1 - CV of the inter-beat
// intervals, clamped to 0.5..0.95. Four beats or fewer score 0.5.
func ConfidenceFromIntervals(intervals []float64) float64 {
	if len(intervals)+1 <= 4 {
		return 0.5
	}
	mean, std := stat.MeanStdDev(intervals, nil)
	if mean <= 0 {
		return 0.5
	}
	return clamp(1-std/mean, 0.5, 0.95)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// onsetEnvelope computes positive log-magnitude spectral flux per hop
func onsetEnvelope(samples []float64) []float64 {
	win := make([]float64, frameSize)
	for i := range win {
		win[i] = 1
	}
	win = window.Hann(win)

	frames := 1 + (len(samples)-frameSize)/hopSize
	env := make([]float64, frames)
	frame := make([]float64, frameSize)
	bins := frameSize/2 + 1
	prev := make([]float64, bins)
	cur := make([]float64, bins)

	for t := 0; t < frames; t++ {
		start := t * hopSize
		for k := range frame {
			frame[k] = samples[start+k] * win[k]
		}

		spectrum := fft.FFTReal(frame)
		for k := 0; k < bins; k++ {
			cur[k] = math.Log1p(logGain * cmplx.Abs(spectrum[k]))
		}

		if t > 0 {
			var flux float64
			for k := 0; k < bins; k++ {
				if d := cur[k] - prev[k]; d > 0 {
					flux += d
				}
			}
			env[t] = flux
		}
		prev, cur = cur, prev
	}

	return env
}

// tempoPeriod picks the autocorrelation lag, in hops, with the best score
// inside the tempo range. Scores are weighted by a log-normal prior around
// preferredBPM.
func tempoPeriod(env []float64, frameRate float64) int {
	minLag := int(math.Ceil(60 * frameRate / maxBPM))
	maxLag := int(math.Floor(60 * frameRate / minBPM))
	if minLag < 1 {
		minLag = 1
	}
	if maxLag >= len(env) {
		maxLag = len(env) - 1
	}
	if minLag > maxLag {
		return 0
	}

	mean := stat.Mean(env, nil)
	centred := make([]float64, len(env))
	for i, v := range env {
		centred[i] = v - mean
	}

	best, bestScore := 0, 0.0
	for lag := minLag; lag <= maxLag; lag++ {
		var sum float64
		for t := 0; t+lag < len(centred); t++ {
			sum += centred[t] * centred[t+lag]
		}
		ac := sum / float64(len(centred)-lag)

		octaves := math.Log2(60 * frameRate / float64(lag) / preferredBPM)
		score := ac * math.Exp(-0.5*octaves*octaves)
		if score > bestScore {
			best, bestScore = lag, score
		}
	}

	return best
}

// trackBeats finds the phase with the most onset energy on a period grid,
// then walks the grid snapping each beat to the strongest nearby onset
func trackBeats(env []float64, period int) []int {
	bestPhase, bestScore := 0, -1.0
	for phase := 0; phase < period && phase < len(env); phase++ {
		var score float64
		for t := phase; t < len(env); t += period {
			score += env[t]
		}
		if score > bestScore {
			bestPhase, bestScore = phase, score
		}
	}

	radius := period / 8
	if radius < 1 {
		radius = 1
	}

	var beats []int
	for pos := bestPhase; pos < len(env); {
		lo, hi := pos-radius, pos+radius
		if lo < 0 {
			lo = 0
		}
		if hi >= len(env) {
			hi = len(env) - 1
		}

		refined := pos
		for t := lo; t <= hi; t++ {
			if env[t] > env[refined] {
				refined = t
			}
		}
		if n := len(beats); n > 0 && refined <= beats[n-1] {
			refined = pos
		}

		beats = append(beats, refined)
		pos = refined + period
	}

	return beats
}
