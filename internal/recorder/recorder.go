// ABOUTME: Per-session WAV recording of received audio
// ABOUTME: Plugs into the receiver as a TapFunc writing one file per sender
package recorder

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"go.uber.org/zap"

	"github.com/micreceiver/micreceiver-go/pkg/audio"
	"github.com/micreceiver/micreceiver-go/pkg/receiver"
)

// Recorder creates WAV files in a directory
type Recorder struct {
	dir    string
	logger *zap.SugaredLogger
	now    func() time.Time
}

// New creates a recorder writing into dir, creating it if needed
func New(dir string, logger *zap.SugaredLogger) (*Recorder, error) {
	if dir == "" {
		return nil, fmt.Errorf("recording directory not set")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create recording directory: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Recorder{
		dir:    dir,
		logger: logger.Named("recorder"),
		now:    time.Now,
	}, nil
}

// Tap adapts the recorder to receiver.Options.Tap
func (r *Recorder) Tap() receiver.TapFunc {
	return func(info receiver.SessionInfo, format audio.Format) (io.WriteCloser, error) {
		w, err := r.Open(info, format)
		if err != nil {
			return nil, err
		}
		return w, nil
	}
}

// Open starts a recording for one session
func (r *Recorder) Open(info receiver.SessionInfo, format audio.Format) (*Writer, error) {
	if format.BitDepth != 16 {
		return nil, fmt.Errorf("recording supports 16-bit audio, got %d-bit", format.BitDepth)
	}

	path := filepath.Join(r.dir, r.fileName(info))
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create recording: %w", err)
	}

	r.logger.Infow("Recording session", "path", path, "remote", info.RemoteAddr)

	return &Writer{
		path:    path,
		file:    f,
		encoder: wav.NewEncoder(f, format.SampleRate, format.BitDepth, format.Channels, 1),
		format: &goaudio.Format{
			SampleRate:  format.SampleRate,
			NumChannels: format.Channels,
		},
		bytesPerSample: format.BytesPerSample(),
	}, nil
}

// fileName builds "<time>_<remote>_<id>.wav"
func (r *Recorder) fileName(info receiver.SessionInfo) string {
	started := info.Started
	if started.IsZero() {
		started = r.now()
	}

	remote := strings.NewReplacer(":", "-", "[", "", "]", "", "/", "-").Replace(info.RemoteAddr)
	if remote == "" {
		remote = "unknown"
	}

	id := info.ID
	if len(id) > 8 {
		id = id[:8]
	}

	return fmt.Sprintf("%s_%s_%s.wav", started.Format("20060102-150405"), remote, id)
}

// Writer encodes little-endian PCM bytes into a WAV file. Writes need not
// be sample aligned.
type Writer struct {
	path           string
	file           *os.File
	encoder        *wav.Encoder
	format         *goaudio.Format
	bytesPerSample int

	mu      sync.Mutex
	carry   []byte
	written bool
	closed  bool
}

// Path returns the file being written
func (w *Writer) Path() string {
	return w.path
}

// Write appends PCM bytes to the recording
func (w *Writer) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return 0, os.ErrClosed
	}

	data := p
	if len(w.carry) > 0 {
		data = append(w.carry, p...)
		w.carry = nil
	}

	whole := len(data) - len(data)%w.bytesPerSample
	if rem := data[whole:]; len(rem) > 0 {
		w.carry = append([]byte(nil), rem...)
	}
	if whole == 0 {
		return len(p), nil
	}

	if err := w.encode(audio.DecodeS16LE(data[:whole])); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (w *Writer) encode(samples []int) error {
	buf := &goaudio.IntBuffer{
		Format:         w.format,
		Data:           samples,
		SourceBitDepth: 16,
	}
	if err := w.encoder.Write(buf); err != nil {
		return fmt.Errorf("write recording: %w", err)
	}
	w.written = true
	return nil
}

// Close finalizes the WAV header and closes the file. A trailing partial
// sample is discarded.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	var encErr error
	if !w.written {
		// The encoder only emits its header on the first write
		encErr = w.encode(nil)
	}
	if encErr == nil {
		encErr = w.encoder.Close()
	}
	closeErr := w.file.Close()
	if encErr != nil {
		return fmt.Errorf("finalize recording: %w", encErr)
	}
	return closeErr
}
