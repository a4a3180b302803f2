// Package ui renders the camera server's live status in the terminal.
package ui

import (
	"fmt"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Status holds server state for the TUI.
type Status struct {
	Name     string
	Port     int
	Backend  string
	Device   string
	Streams  []StreamRow
	Limit    int
	Viewers  int
	Acquired uint64
	Released uint64
	Lent     uint64
}

// StreamRow is one open stream.
type StreamRow struct {
	ID       string
	Remote   string
	FPS      int
	AvgFPS   float64
	AvgMS    float64
	Sent     uint64
	Dups     uint64
	Faults   uint64
	Failures uint64
}

type tickMsg time.Time
type statusMsg Status

var (
	titleStyle        = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205")).MarginBottom(1)
	headerStyle       = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	valueStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("250"))
	streamHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("220"))
	warnStyle         = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
)

type model struct {
	status    Status
	startTime time.Time
	quitting  bool
	quitChan  chan struct{}
}

func (m model) Init() tea.Cmd {
	return tickEvery()
}

func tickEvery() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "q" || msg.String() == "ctrl+c" {
			m.quitting = true
			select {
			case m.quitChan <- struct{}{}:
			default:
			}
			return m, tea.Quit
		}

	case tickMsg:
		return m, tickEvery()

	case statusMsg:
		m.status = Status(msg)
		return m, nil
	}

	return m, nil
}

func (m model) View() string {
	if m.quitting {
		return "Shutting down camera server...\n"
	}

	var b strings.Builder

	b.WriteString(titleStyle.Render("camstream"))
	b.WriteString("\n\n")

	field := func(name, value string) {
		b.WriteString(headerStyle.Render(name + ": "))
		b.WriteString(valueStyle.Render(value))
		b.WriteString("\n")
	}
	field("Server", m.status.Name)
	field("Port", fmt.Sprintf("%d", m.status.Port))
	field("Camera", fmt.Sprintf("%s %s", m.status.Backend, m.status.Device))
	field("Uptime", time.Since(m.startTime).Round(time.Second).String())
	field("Frames", fmt.Sprintf("%d acquired, %d released, %d lent", m.status.Acquired, m.status.Released, m.status.Lent))
	field("Telemetry viewers", fmt.Sprintf("%d", m.status.Viewers))
	b.WriteString("\n")

	b.WriteString(streamHeaderStyle.Render(fmt.Sprintf("Streams (%d/%d)", len(m.status.Streams), m.status.Limit)))
	b.WriteString("\n\n")

	if len(m.status.Streams) == 0 {
		b.WriteString(valueStyle.Render("  No viewers connected"))
		b.WriteString("\n")
	} else {
		for _, s := range m.status.Streams {
			b.WriteString(fmt.Sprintf("  • %s ", shortID(s.ID)))
			b.WriteString(valueStyle.Render(fmt.Sprintf("%s  %d fps requested, %.1f fps (%.1f ms avg)  sent %d  dups %d",
				s.Remote, s.FPS, s.AvgFPS, s.AvgMS, s.Sent, s.Dups)))
			if s.Faults > 0 || s.Failures > 0 {
				b.WriteString(warnStyle.Render(fmt.Sprintf("  faults %d  failures %d", s.Faults, s.Failures)))
			}
			b.WriteString("\n")
		}
	}

	b.WriteString("\n")
	b.WriteString(lipgloss.NewStyle().Faint(true).Render("Press 'q' or Ctrl+C to quit"))

	return b.String()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// TUI manages the status display.
type TUI struct {
	program  *tea.Program
	updates  chan Status
	quitChan chan struct{}

	mu      sync.Mutex
	stopped bool
}

// New creates a TUI.
func New() *TUI {
	return &TUI{
		updates:  make(chan Status, 10),
		quitChan: make(chan struct{}, 1),
	}
}

// Start runs the TUI until the user quits or Stop is called.
func (t *TUI) Start(initial Status) error {
	m := model{
		status:    initial,
		startTime: time.Now(),
		quitChan:  t.quitChan,
	}

	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return nil
	}
	t.program = tea.NewProgram(m, tea.WithAltScreen())
	program := t.program
	t.mu.Unlock()

	go func() {
		for status := range t.updates {
			program.Send(statusMsg(status))
		}
	}()

	_, err := program.Run()
	return err
}

// Update sends a status update without blocking.
func (t *TUI) Update(status Status) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}
	select {
	case t.updates <- status:
	default:
	}
}

// Stop quits the TUI. Safe to call more than once.
func (t *TUI) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}
	t.stopped = true
	if t.program != nil {
		t.program.Quit()
	}
	close(t.updates)
}

// QuitChan signals when the user asked to quit.
func (t *TUI) QuitChan() <-chan struct{} {
	return t.quitChan
}
