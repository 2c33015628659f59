// ABOUTME: Audio fundamentals package providing core types and utilities
// ABOUTME: Defines the stream Format and little-endian PCM helpers
// Package audio provides the PCM format description shared by the receiver,
// the output backends and the sender tool.
//
// The wire format is fixed: 16000 Hz, 16-bit signed little-endian, mono.
// Format exists so the size arithmetic (frames, bytes per second, buffer
// capacity) lives in one place:
//
//	format := audio.MicFormat
//	capacity := format.BytesFor(5 * time.Second) // 160000
//
// The helpers convert between raw s16le bytes and integer samples for the
// few places that need samples (WAV recording, test tones).
package audio
