// ABOUTME: Streaming linear resampler for mono integer PCM
// ABOUTME: Also folds interleaved multi-channel audio down to mono
package resample

// Resampler converts a mono sample stream between rates
type Resampler struct {
	inputRate  int
	outputRate int
	step       float64
	position   float64
	last       int
	primed     bool
}

// New creates a new resampler
func New(inputRate, outputRate int) *Resampler {
	return &Resampler{
		inputRate:  inputRate,
		outputRate: outputRate,
		step:       float64(inputRate) / float64(outputRate),
	}
}

// Passthrough reports whether input and output rates match
func (r *Resampler) Passthrough() bool {
	return r.inputRate == r.outputRate
}

// Resample converts the next chunk of input. The final input sample of each
// call is held back as the left neighbour for the following call.
func (r *Resampler) Resample(input []int) []int {
	if r.Passthrough() {
		return append([]int(nil), input...)
	}
	if len(input) == 0 {
		return nil
	}

	// x[0] is the held sample from the previous chunk once primed
	x := input
	if r.primed {
		x = make([]int, 0, len(input)+1)
		x = append(x, r.last)
		x = append(x, input...)
	}

	out := make([]int, 0, r.OutputSamplesNeeded(len(x)))
	for {
		idx := int(r.position)
		if idx+1 >= len(x) {
			break
		}
		frac := r.position - float64(idx)
		v := float64(x[idx])*(1.0-frac) + float64(x[idx+1])*frac
		out = append(out, int(v))
		r.position += r.step
	}

	r.position -= float64(len(x) - 1)
	r.last = x[len(x)-1]
	r.primed = true
	return out
}

// Reset resets the resampler state
func (r *Resampler) Reset() {
	r.position = 0
	r.last = 0
	r.primed = false
}

// OutputSamplesNeeded estimates how many samples n input samples produce
func (r *Resampler) OutputSamplesNeeded(n int) int {
	return int(float64(n)/r.step) + 1
}

// Downmix averages interleaved frames into a single channel.
// A trailing partial frame is dropped.
func Downmix(samples []int, channels int) []int {
	if channels <= 1 {
		return samples
	}
	out := make([]int, len(samples)/channels)
	for i := range out {
		sum := 0
		for ch := 0; ch < channels; ch++ {
			sum += samples[i*channels+ch]
		}
		out[i] = sum / channels
	}
	return out
}
