// ABOUTME: TUI initialization and control
// ABOUTME: Wraps the bubbletea program and feeds it status notifications
package ui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/micreceiver/micreceiver-go/pkg/receiver"
)

// TUI runs the status panel
type TUI struct {
	program  *tea.Program
	updates  chan tea.Msg
	quitChan chan struct{}
	done     chan struct{}
}

// New creates a panel. It implements receiver.StatusSink.
func New(header Header, source SnapshotFunc, opts ...tea.ProgramOption) *TUI {
	t := &TUI{
		updates:  make(chan tea.Msg, 64),
		quitChan: make(chan struct{}, 1),
		done:     make(chan struct{}),
	}

	if len(opts) == 0 {
		opts = []tea.ProgramOption{tea.WithAltScreen()}
	}
	t.program = tea.NewProgram(NewModel(header, source, t.quitChan), opts...)
	return t
}

// Run blocks until the panel exits
func (t *TUI) Run() error {
	go func() {
		for {
			select {
			case msg := <-t.updates:
				t.program.Send(msg)
			case <-t.done:
				return
			}
		}
	}()

	_, err := t.program.Run()
	close(t.done)
	return err
}

// OnStatus forwards a status notification to the panel without blocking
func (t *TUI) OnStatus(s receiver.Status) {
	select {
	case t.updates <- StatusMsg(s):
	default:
		// Don't block if channel is full
	}
}

// Stop quits the panel
func (t *TUI) Stop() {
	t.program.Quit()
}

// QuitChan signals when the user asked to quit
func (t *TUI) QuitChan() <-chan struct{} {
	return t.quitChan
}
