// ABOUTME: Audio resampling package using linear interpolation
// ABOUTME: Converts arbitrary PCM input to the receiver's mono wire rate
// Package resample provides sample rate conversion and channel downmixing.
//
// Uses linear interpolation and carries state across calls, so a stream can
// be converted in chunks without clicks at chunk boundaries.
//
// Example:
//
//	mono := resample.Downmix(interleaved, 2)
//	r := resample.New(44100, 16000)
//	out := r.Resample(mono)
package resample
