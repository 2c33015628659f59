// ABOUTME: Tests for audio resampler
// ABOUTME: Tests linear interpolation, chunk continuity and downmixing
package resample

import (
	"testing"
)

func ramp(n, step int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i * step
	}
	return out
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

func TestNewResampler(t *testing.T) {
	r := New(44100, 16000)

	if r == nil {
		t.Fatal("expected resampler to be created")
	}
	if r.inputRate != 44100 {
		t.Errorf("expected inputRate 44100, got %d", r.inputRate)
	}
	if r.outputRate != 16000 {
		t.Errorf("expected outputRate 16000, got %d", r.outputRate)
	}
	if r.Passthrough() {
		t.Error("expected resampling, got passthrough")
	}
	if !New(16000, 16000).Passthrough() {
		t.Error("expected passthrough for equal rates")
	}
}

func TestResampleRates(t *testing.T) {
	tests := []struct {
		name string
		in   int
		out  int
	}{
		{"down 44100->16000", 44100, 16000},
		{"down 48000->16000", 48000, 16000},
		{"up 8000->16000", 8000, 16000},
		{"up 11025->16000", 11025, 16000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New(tt.in, tt.out)
			input := ramp(tt.in/10, 10) // 100ms
			output := r.Resample(input)

			expected := len(input) * tt.out / tt.in
			if abs(len(output)-expected) > 2 {
				t.Errorf("expected ~%d samples, got %d", expected, len(output))
			}

			// A ramp interpolates to a ramp
			step := float64(tt.in) / float64(tt.out)
			for k, v := range output {
				want := int(float64(k) * step * 10)
				if abs(v-want) > 1 {
					t.Fatalf("sample %d: expected ~%d, got %d", k, want, v)
				}
			}
		})
	}
}

func TestResampleSameRate(t *testing.T) {
	r := New(16000, 16000)
	input := ramp(200, 100)

	output := r.Resample(input)
	if len(output) != len(input) {
		t.Fatalf("expected %d samples, got %d", len(input), len(output))
	}
	for i := range input {
		if output[i] != input[i] {
			t.Fatalf("sample %d: expected %d, got %d", i, input[i], output[i])
		}
	}

	// Output must not alias the input
	output[0] = -1
	if input[0] != 0 {
		t.Error("passthrough output aliases input")
	}
}

func TestResampleChunkedMatchesWhole(t *testing.T) {
	input := ramp(4410, 7)

	whole := New(44100, 16000).Resample(input)

	r := New(44100, 16000)
	var chunked []int
	for start := 0; start < len(input); start += 333 {
		end := min(start+333, len(input))
		chunked = append(chunked, r.Resample(input[start:end])...)
	}

	if abs(len(chunked)-len(whole)) > 1 {
		t.Fatalf("chunked produced %d samples, whole produced %d", len(chunked), len(whole))
	}
	n := min(len(chunked), len(whole))
	for i := 0; i < n; i++ {
		if abs(chunked[i]-whole[i]) > 2 {
			t.Fatalf("sample %d: chunked %d, whole %d", i, chunked[i], whole[i])
		}
	}
}

func TestResampleEmpty(t *testing.T) {
	r := New(44100, 16000)
	if out := r.Resample(nil); len(out) != 0 {
		t.Errorf("expected no output, got %d samples", len(out))
	}
}

func TestReset(t *testing.T) {
	r := New(48000, 16000)
	first := r.Resample(ramp(480, 3))
	r.Reset()
	second := r.Resample(ramp(480, 3))

	if len(first) != len(second) {
		t.Fatalf("expected identical output after reset, got %d and %d samples", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("sample %d differs after reset: %d vs %d", i, first[i], second[i])
		}
	}
}

func TestDownmix(t *testing.T) {
	tests := []struct {
		name     string
		samples  []int
		channels int
		want     []int
	}{
		{"mono untouched", []int{1, 2, 3}, 1, []int{1, 2, 3}},
		{"stereo average", []int{1000, -1000, 300, 100}, 2, []int{0, 200}},
		{"partial frame dropped", []int{10, 20, 30}, 2, []int{15}},
		{"three channels", []int{3, 6, 9}, 3, []int{6}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Downmix(tt.samples, tt.channels)
			if len(got) != len(tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("expected %v, got %v", tt.want, got)
				}
			}
		})
	}
}
