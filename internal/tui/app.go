package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/tuhiproject/tuhi/internal/client"
)

// Run starts the TUI application over an established daemon
// connection.
func Run(c *client.Client) error {
	events, err := c.Subscribe()
	if err != nil {
		return err
	}
	m := NewModel(c, events)
	p := tea.NewProgram(m, tea.WithAltScreen())
	_, err = p.Run()
	return err
}
