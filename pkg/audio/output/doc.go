// ABOUTME: Audio output package for playing PCM streams
// ABOUTME: Provides Backend/Device interfaces, the RingBuffer and backends
// Package output provides pull-based audio playback.
//
// A Backend enumerates and opens output devices. An opened Device pulls PCM
// bytes from a Source on its own callback thread, so producers never wait on
// the sound card; the RingBuffer is the Source used by the receiver.
//
// Backends: malgo (miniaudio, the default), oto, portaudio (build with
// -tags portaudio) and null (discards audio at real-time pace).
//
// Example:
//
//	backend, err := output.New("malgo", logger)
//	ring := output.NewRingBuffer(audio.MicFormat.BytesFor(5*time.Second), audio.MicFormat.FrameSize())
//	dev, err := backend.Open(0, audio.MicFormat, ring)
//	ring.Write(pcm)
//	dev.Close()
package output
