package tui

import (
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/godbus/dbus/v5"

	"github.com/tuhiproject/tuhi/internal/client"
)

// Model is the main Bubbletea model for the TUI.
type Model struct {
	client *client.Client
	events <-chan client.Event

	// State
	cursor  int
	width   int
	height  int
	devices []client.Device

	searching    bool
	unregistered map[dbus.ObjectPath]bool
	syncing      map[dbus.ObjectPath]bool

	statusMsg string
	errorMsg  string

	// Components
	keys    KeyMap
	help    help.Model
	spinner spinner.Model
	styles  Styles
}

// NewModel builds the model over an established daemon connection.
func NewModel(c *client.Client, events <-chan client.Event) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	return Model{
		client:       c,
		events:       events,
		unregistered: make(map[dbus.ObjectPath]bool),
		syncing:      make(map[dbus.ObjectPath]bool),
		keys:         DefaultKeyMap(),
		help:         help.New(),
		spinner:      sp,
		styles:       DefaultStyles(),
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.loadDevices(), m.waitEvent(), m.spinner.Tick)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case devicesMsg:
		if msg.err != nil {
			m.errorMsg = msg.err.Error()
			return m, nil
		}
		m.devices = msg.devices
		m.searching = msg.searching
		if m.cursor >= len(m.devices) {
			m.cursor = max(0, len(m.devices)-1)
		}
		return m, nil

	case eventMsg:
		return m.handleEvent(msg)

	case actionMsg:
		if msg.err != nil {
			m.errorMsg = msg.err.Error()
		} else if msg.status != "" {
			m.statusMsg = msg.status
			m.errorMsg = ""
		}
		return m, m.loadDevices()

	case fetchedMsg:
		if msg.err != nil {
			m.errorMsg = msg.err.Error()
		} else {
			m.statusMsg = fmt.Sprintf("saved %d drawing(s) to %s", msg.count, msg.dir)
			m.errorMsg = ""
		}
		return m, nil
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
		return m, nil

	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
		return m, nil

	case key.Matches(msg, m.keys.Down):
		if m.cursor < len(m.devices)-1 {
			m.cursor++
		}
		return m, nil

	case key.Matches(msg, m.keys.Refresh):
		return m, m.loadDevices()

	case key.Matches(msg, m.keys.Search):
		return m, m.toggleSearch()

	case key.Matches(msg, m.keys.Register):
		if dev, ok := m.selected(); ok && m.unregistered[dev.Path] {
			m.statusMsg = "pairing " + dev.Name
			return m, m.register(dev.Path)
		}
		return m, nil

	case key.Matches(msg, m.keys.Listen):
		if dev, ok := m.selected(); ok && !m.unregistered[dev.Path] {
			return m, m.toggleListen(dev)
		}
		return m, nil

	case key.Matches(msg, m.keys.Fetch):
		if dev, ok := m.selected(); ok && len(dev.DrawingsAvailable) > 0 {
			m.statusMsg = "fetching drawings"
			return m, m.fetch(dev)
		}
		return m, nil
	}
	return m, nil
}

func (m Model) handleEvent(msg eventMsg) (tea.Model, tea.Cmd) {
	if !msg.ok {
		m.errorMsg = "daemon connection lost"
		return m, tea.Quit
	}
	next := m.waitEvent()
	switch msg.event.Kind {
	case client.EventUnregisteredDevice:
		m.unregistered[msg.event.Device] = true
		m.statusMsg = "found " + client.AddressOf(msg.event.Device)
	case client.EventSearchStopped:
		m.searching = false
	case client.EventButtonPressRequired:
		m.statusMsg = "press the button on " + client.AddressOf(msg.event.Device)
	case client.EventSyncState:
		m.syncing[msg.event.Device] = msg.event.Status != 0
	case client.EventListeningStopped:
		if msg.event.Status != 0 {
			m.errorMsg = fmt.Sprintf("listening on %s stopped (%d)", client.AddressOf(msg.event.Device), msg.event.Status)
		}
	case client.EventLiveStopped:
		if msg.event.Status != 0 {
			m.errorMsg = fmt.Sprintf("live mode on %s stopped (%d)", client.AddressOf(msg.event.Device), msg.event.Status)
		}
	}
	return m, tea.Batch(next, m.loadDevices())
}

func (m Model) selected() (client.Device, bool) {
	if m.cursor < 0 || m.cursor >= len(m.devices) {
		return client.Device{}, false
	}
	return m.devices[m.cursor], true
}

// --- Custom messages for async operations ---

// devicesMsg delivers the full device snapshot from async load.
type devicesMsg struct {
	devices   []client.Device
	searching bool
	err       error
}

// eventMsg delivers one daemon signal.
type eventMsg struct {
	event client.Event
	ok    bool
}

// actionMsg reports the outcome of a fire-and-forget bus call.
type actionMsg struct {
	status string
	err    error
}

// fetchedMsg reports drawings written to disk.
type fetchedMsg struct {
	count int
	dir   string
	err   error
}

// --- Commands ---

func (m Model) loadDevices() tea.Cmd {
	c := m.client
	return func() tea.Msg {
		devices, err := c.Devices()
		if err != nil {
			return devicesMsg{err: err}
		}
		searching, err := c.Searching()
		if err != nil {
			return devicesMsg{err: err}
		}
		return devicesMsg{devices: devices, searching: searching}
	}
}

func (m Model) waitEvent() tea.Cmd {
	events := m.events
	return func() tea.Msg {
		ev, ok := <-events
		return eventMsg{event: ev, ok: ok}
	}
}

func (m Model) toggleSearch() tea.Cmd {
	c := m.client
	if m.searching {
		return func() tea.Msg {
			return actionMsg{status: "search stopped", err: c.StopSearch()}
		}
	}
	return func() tea.Msg {
		return actionMsg{status: "searching for devices in registration mode", err: c.StartSearch()}
	}
}

func (m Model) register(path dbus.ObjectPath) tea.Cmd {
	c := m.client
	return func() tea.Msg {
		if err := c.Register(path); err != nil {
			return actionMsg{err: err}
		}
		return actionMsg{status: "registered " + client.AddressOf(path)}
	}
}

func (m Model) toggleListen(dev client.Device) tea.Cmd {
	c := m.client
	if dev.Listening {
		return func() tea.Msg {
			return actionMsg{status: "stopped listening to " + dev.Name, err: c.StopListening(dev.Path)}
		}
	}
	return func() tea.Msg {
		return actionMsg{status: "listening to " + dev.Name, err: c.StartListening(dev.Path)}
	}
}

func (m Model) fetch(dev client.Device) tea.Cmd {
	c := m.client
	return func() tea.Msg {
		dir, err := os.Getwd()
		if err != nil {
			return fetchedMsg{err: err}
		}
		count := 0
		for _, ts := range dev.DrawingsAvailable {
			data, err := c.GetJSONData(dev.Path, 1, ts)
			if err != nil {
				return fetchedMsg{err: err}
			}
			name := fmt.Sprintf("%s-%s.json", dev.Address, time.Unix(int64(ts), 0).Format("2006-01-02-15-04-05"))
			if err := os.WriteFile(name, []byte(data), 0o600); err != nil {
				return fetchedMsg{err: err}
			}
			count++
		}
		return fetchedMsg{count: count, dir: dir}
	}
}
