// ABOUTME: Streaming receiver core
// ABOUTME: Accepts raw PCM over TCP and plays each connection on an output device
// Package receiver accepts raw PCM audio over TCP and plays it locally.
//
// The wire protocol is an unframed s16le mono 16 kHz byte stream; closing
// the connection ends the stream. Each accepted connection becomes an
// independent Session with its own PlaybackSink (ring buffer + device).
//
// Components:
//   - Server: listener, accept loop, session registry, Start/Stop
//   - Session: one connection pumped into one Sink
//   - Sink: ring buffer feeding a device from output.Backend
//   - StatusLog: the human-readable status stream consumed by UIs
//
// Example:
//
//	backend, _ := output.New("malgo", logger)
//	status := receiver.NewStatusLog(0)
//	srv := receiver.NewServer(receiver.Options{Backend: backend, Status: status})
//	err := srv.Start(ctx, receiver.Config{BindAddress: "0.0.0.0", Port: 5000})
package receiver
