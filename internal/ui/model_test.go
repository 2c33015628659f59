// ABOUTME: Tests for the status panel model
// ABOUTME: Covers status tail, snapshot refresh, keys and rendering
package ui

import (
	"fmt"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/micreceiver/micreceiver-go/pkg/receiver"
)

var testHeader = Header{
	Name:    "Studio",
	Addr:    "0.0.0.0:5000",
	Backend: "null",
	Device:  "Null output",
	Format:  "16000Hz/16bit/1ch",
}

func TestNewModelPollsSource(t *testing.T) {
	calls := 0
	source := func() Snapshot {
		calls++
		return Snapshot{State: receiver.StateListening}
	}

	m := NewModel(testHeader, source, nil)
	if calls != 1 {
		t.Errorf("expected one initial poll, got %d", calls)
	}
	if m.snapshot.State != receiver.StateListening {
		t.Errorf("expected listening, got %v", m.snapshot.State)
	}

	updated, cmd := m.Update(tickMsg(time.Now()))
	if calls != 2 {
		t.Errorf("expected tick to poll again, got %d calls", calls)
	}
	if cmd == nil {
		t.Error("expected tick to schedule another tick")
	}
	if _, ok := updated.(Model); !ok {
		t.Fatalf("unexpected model type %T", updated)
	}
}

func TestStatusTailIsBounded(t *testing.T) {
	m := NewModel(testHeader, nil, nil)

	var model tea.Model = m
	for i := 0; i < logLines+5; i++ {
		model, _ = model.Update(StatusMsg{Time: time.Now(), Message: fmt.Sprintf("event %d", i)})
	}

	got := model.(Model).log
	if len(got) != logLines {
		t.Fatalf("expected %d lines, got %d", logLines, len(got))
	}
	if got[0].Message != "event 5" {
		t.Errorf("expected oldest kept line \"event 5\", got %q", got[0].Message)
	}
	if got[len(got)-1].Message != fmt.Sprintf("event %d", logLines+4) {
		t.Errorf("unexpected newest line %q", got[len(got)-1].Message)
	}
}

func TestQuitKeySignals(t *testing.T) {
	tests := []struct {
		name string
		key  tea.KeyMsg
	}{
		{"q", tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}}},
		{"ctrl+c", tea.KeyMsg{Type: tea.KeyCtrlC}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			quit := make(chan struct{}, 1)
			m := NewModel(testHeader, nil, quit)

			updated, cmd := m.Update(tt.key)
			if cmd == nil {
				t.Error("expected quit command")
			}
			if !updated.(Model).quitting {
				t.Error("expected quitting state")
			}
			select {
			case <-quit:
			default:
				t.Error("expected quit signal")
			}

			// A second press must not block on the full channel
			updated.(Model).Update(tt.key)
		})
	}
}

func TestBufferToggle(t *testing.T) {
	m := NewModel(testHeader, nil, nil)
	updated, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'b'}})
	if !updated.(Model).showBuffers {
		t.Error("expected buffer details shown")
	}
}

func TestViewNoClients(t *testing.T) {
	m := NewModel(testHeader, func() Snapshot { return Snapshot{State: receiver.StateListening} }, nil)
	view := m.View()

	for _, want := range []string{"MicReceiver: Studio", "0.0.0.0:5000", "listening", "Null output (null)", "No clients connected", "(none yet)"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q:\n%s", want, view)
		}
	}
}

func TestViewSessions(t *testing.T) {
	source := func() Snapshot {
		return Snapshot{
			State: receiver.StateListening,
			Sessions: []receiver.SessionInfo{
				{
					RemoteAddr:    "192.168.1.20:50122",
					Started:       time.Now().Add(-3 * time.Second),
					BytesReceived: 96000,
					State:         receiver.SessionActive,
					Sink:          receiver.SinkStats{Capacity: 160000, Buffered: 8000, Dropped: 2048, Underruns: 3},
				},
			},
		}
	}

	m := NewModel(testHeader, source, nil)
	m.showBuffers = true
	m.appendStatus(receiver.Status{Time: time.Now(), Message: "Client connected from 192.168.1.20:50122"})
	view := m.View()

	for _, want := range []string{"Connected Clients (1)", "192.168.1.20:50122", "93.8 KiB", "active", "dropped 2.0 KiB", "8000/160000", "underruns 3", "Client connected from"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q:\n%s", want, view)
		}
	}
}

func TestViewQuitting(t *testing.T) {
	m := NewModel(testHeader, nil, nil)
	m.quitting = true
	if got := m.View(); !strings.Contains(got, "Stopping receiver") {
		t.Errorf("unexpected quitting view %q", got)
	}
}

func TestHelpers(t *testing.T) {
	if got := renderBar(5, 10, 10); got != "█████░░░░░" {
		t.Errorf("renderBar = %q", got)
	}
	if got := renderBar(1, 0, 4); got != "░░░░" {
		t.Errorf("renderBar with zero max = %q", got)
	}
	if got := truncate("abcdefghij", 6); got != "abc..." {
		t.Errorf("truncate = %q", got)
	}

	tests := []struct {
		n    uint64
		want string
	}{
		{512, "512 B"},
		{2048, "2.0 KiB"},
		{3 << 20, "3.0 MiB"},
	}
	for _, tt := range tests {
		if got := formatBytes(tt.n); got != tt.want {
			t.Errorf("formatBytes(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}
}

func TestTUIOnStatusNeverBlocks(t *testing.T) {
	tui := New(testHeader, nil, tea.WithoutRenderer(), tea.WithInput(nil))

	done := make(chan struct{})
	go func() {
		for i := 0; i < 500; i++ {
			tui.OnStatus(receiver.Status{Message: "flood"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("OnStatus blocked without a running program")
	}
}
