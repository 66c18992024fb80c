package bpm

import (
	"math"
	"testing"
)

const testRate = 22050

// clickTrain places unit impulses every period samples
func clickTrain(seconds float64, period int) []float64 {
	samples := make([]float64, int(seconds*testRate))
	for i := 0; i < len(samples); i += period {
		samples[i] = 1
	}
	return samples
}

func TestEstimateSamplesClickTrain(t *testing.T) {
	tests := []struct {
		name    string
		hops    int
		wantBPM int
	}{
		// 22 hops of 512 samples at 22050 Hz is 117.45 BPM
		{"117 bpm", 22, 117},
		// 40 hops reads as 64.6 BPM and is doubled
		{"half time folded up", 40, 130},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			est := EstimateSamples(clickTrain(30, tt.hops*hopSize), testRate)
			if est == nil {
				t.Fatal("EstimateSamples() = nil, want estimate")
			}
			if d := est.BPM - tt.wantBPM; d < -2 || d > 2 {
				t.Errorf("BPM = %d, want %d±2", est.BPM, tt.wantBPM)
			}
			if est.Confidence < 0.9 {
				t.Errorf("Confidence = %v, want >= 0.9 for a perfectly regular signal", est.Confidence)
			}
		})
	}
}

func TestEstimateSamplesRejects(t *testing.T) {
	tests := []struct {
		name    string
		samples []float64
		rate    int
	}{
		{"silence", make([]float64, 10*testRate), testRate},
		{"too short", clickTrain(0.2, 11264), testRate},
		{"no sample rate", clickTrain(10, 11264), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if est := EstimateSamples(tt.samples, tt.rate); est != nil {
				t.Errorf("EstimateSamples() = %+v, want nil", est)
			}
		})
	}
}

func TestCorrectOctave(t *testing.T) {
	tests := []struct {
		in   int
		want int
	}{
		{64, 128},
		{69, 138},
		{70, 70},
		{128, 128},
		{180, 180},
		{181, 90},
		{256, 128},
	}

	for _, tt := range tests {
		if got := CorrectOctave(tt.in); got != tt.want {
			t.Errorf("CorrectOctave(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestConfidenceFromIntervals(t *testing.T) {
	tests := []struct {
		name      string
		intervals []float64
		want      float64
	}{
		{"four beats", []float64{0.5, 0.5, 0.5}, 0.5},
		{"perfectly regular", []float64{0.5, 0.5, 0.5, 0.5}, 0.95},
		{"slight jitter", []float64{0.5, 0.55, 0.45, 0.5}, 1 - math.Sqrt(0.005/3)/0.5},
		{"erratic", []float64{0.2, 0.8, 0.2, 0.8}, 0.5},
		{"empty", nil, 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ConfidenceFromIntervals(tt.intervals)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("ConfidenceFromIntervals() = %v, want %v", got, tt.want)
			}
		})
	}
}
