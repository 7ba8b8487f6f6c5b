package tui

import (
	"fmt"
	"strings"

	"github.com/tuhiproject/tuhi/internal/client"
)

func (m Model) View() string {
	var b strings.Builder

	b.WriteString(m.styles.Title.Render("kete"))
	b.WriteString("\n")

	if len(m.devices) == 0 {
		b.WriteString(m.styles.Muted.Render("No devices. Hold the tablet button until its LED blinks blue, then press s."))
		b.WriteString("\n")
	}
	for i, dev := range m.devices {
		b.WriteString(m.renderDevice(i, dev))
		b.WriteString("\n")
	}

	b.WriteString(m.renderStatusBar())

	if m.errorMsg != "" {
		b.WriteString("\n")
		b.WriteString(m.styles.Error.Render(m.errorMsg))
	} else if m.statusMsg != "" {
		b.WriteString("\n")
		b.WriteString(m.styles.Subtitle.Render(m.statusMsg))
	}

	b.WriteString("\n")
	b.WriteString(m.styles.Help.Render(m.help.View(m.keys)))

	return m.styles.App.Render(b.String())
}

func (m Model) renderDevice(i int, dev client.Device) string {
	cursor := "  "
	style := m.styles.Row
	if i == m.cursor {
		cursor = "> "
		style = m.styles.RowSelected
	}

	name := dev.Name
	if name == "" {
		name = dev.Address
	}
	line := fmt.Sprintf("%s%-24s %s", cursor, name, m.styles.Muted.Render(dev.Address))

	var tags []string
	if m.unregistered[dev.Path] {
		tags = append(tags, m.styles.Warning.Render("unregistered"))
	} else {
		tags = append(tags, m.renderBattery(dev))
		if n := len(dev.DrawingsAvailable); n > 0 {
			tags = append(tags, fmt.Sprintf("%d drawing(s)", n))
		}
		if m.syncing[dev.Path] {
			tags = append(tags, m.spinner.View()+m.styles.Active.Render("syncing"))
		} else if dev.Listening {
			tags = append(tags, m.styles.Active.Render("listening"))
		}
		if dev.Live {
			tags = append(tags, m.styles.Active.Render("live"))
		}
	}

	return style.Render(line) + "  " + strings.Join(tags, "  ")
}

func (m Model) renderBattery(dev client.Device) string {
	if dev.BatteryState == client.BatteryUnknown {
		return m.styles.Muted.Render("battery ?")
	}
	text := fmt.Sprintf("%d%%", dev.BatteryPercent)
	if dev.BatteryState == client.BatteryCharging {
		text += "+"
	}
	if dev.BatteryPercent <= 20 && dev.BatteryState != client.BatteryCharging {
		return m.styles.BatteryLow.Render(text)
	}
	return m.styles.Battery.Render(text)
}

func (m Model) renderStatusBar() string {
	var b strings.Builder
	b.WriteString(m.styles.StatusKey.Render("devices"))
	b.WriteString(m.styles.StatusValue.Render(fmt.Sprintf("%d", len(m.devices))))
	b.WriteString(m.styles.StatusKey.Render("search"))
	if m.searching {
		b.WriteString(m.styles.StatusValue.Render(m.spinner.View() + "on"))
	} else {
		b.WriteString(m.styles.StatusValue.Render("off"))
	}
	return m.styles.StatusBar.Width(max(m.width-4, 0)).Render(b.String())
}
