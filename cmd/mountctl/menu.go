package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/unklstewy/rotse-mount/pkg/coordinates"
	"github.com/unklstewy/rotse-mount/pkg/mount"
	"github.com/unklstewy/rotse-mount/pkg/pointing"
)

// commandTimeout bounds one menu action, including all resends.
const commandTimeout = 30 * time.Second

type menuItem int

const (
	itemGoto menuItem = iota
	itemHalt
	itemHome
	itemReload
	itemNudge
	itemExit
)

var menuLabels = []string{
	itemGoto:   "Goto RA/Dec",
	itemHalt:   "Halt",
	itemHome:   "Home",
	itemReload: "Reload pointing model",
	itemNudge:  "Nudge setpoint",
	itemExit:   "Exit",
}

type inputMode int

const (
	inputNone inputMode = iota
	inputRA
	inputDec
	inputNudge
)

// ModelLoader rebuilds the pointing model from the current configuration.
type ModelLoader func(ctx context.Context) (pointing.Model, error)

// actionMsg reports the end of a menu action.
type actionMsg struct {
	label string
	sol   *pointing.Solution
	err   error
}

type tickMsg time.Time

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

type menu struct {
	ctx        context.Context
	controller *mount.Controller
	reload     ModelLoader
	site       coordinates.Site

	selected  int
	mode      inputMode
	buffer    string
	raDeg     float64
	busy      bool
	status    string
	err       error
	last      *pointing.Solution
	clockTime time.Time
}

func newMenu(ctx context.Context, controller *mount.Controller, site coordinates.Site, reload ModelLoader) menu {
	return menu{
		ctx:        ctx,
		controller: controller,
		reload:     reload,
		site:       site,
		clockTime:  time.Now(),
	}
}

func (m menu) Init() tea.Cmd {
	return tick()
}

func (m menu) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tickMsg:
		m.clockTime = time.Time(msg)
		return m, tick()

	case actionMsg:
		m.busy = false
		m.err = msg.err
		if msg.err == nil {
			m.status = msg.label + ": done"
			if msg.sol != nil {
				m.last = msg.sol
			}
		} else {
			m.status = ""
		}
		return m, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		if m.busy {
			return m, nil
		}
		if m.mode != inputNone {
			return m.updateInput(msg)
		}
		return m.updateMenu(msg)
	}
	return m, nil
}

func (m menu) updateMenu(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "up", "k":
		if m.selected > 0 {
			m.selected--
		}
	case "down", "j":
		if m.selected < len(menuLabels)-1 {
			m.selected++
		}
	case "1", "2", "3", "4", "5", "6":
		m.selected = int(msg.String()[0] - '1')
		return m.activate()
	case "enter":
		return m.activate()
	case "q", "esc":
		return m, tea.Quit
	}
	return m, nil
}

func (m menu) activate() (tea.Model, tea.Cmd) {
	m.err = nil
	m.status = ""
	switch menuItem(m.selected) {
	case itemGoto:
		m.mode = inputRA
		m.buffer = ""
		return m, nil
	case itemHalt:
		m.busy = true
		return m, m.run("Halt", func(ctx context.Context) (*pointing.Solution, error) {
			return nil, m.controller.Halt(ctx)
		})
	case itemHome:
		m.busy = true
		return m, m.run("Home", func(ctx context.Context) (*pointing.Solution, error) {
			return nil, m.controller.Home(ctx)
		})
	case itemReload:
		m.busy = true
		return m, m.run("Reload", func(ctx context.Context) (*pointing.Solution, error) {
			model, err := m.reload(ctx)
			if err != nil {
				return nil, err
			}
			m.controller.SwapModel(model)
			return nil, nil
		})
	case itemNudge:
		m.mode = inputNudge
		m.buffer = ""
		return m, nil
	case itemExit:
		return m, tea.Quit
	}
	return m, nil
}

func (m menu) updateInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.mode = inputNone
		m.buffer = ""
		return m, nil
	case tea.KeyBackspace:
		if len(m.buffer) > 0 {
			m.buffer = m.buffer[:len(m.buffer)-1]
		}
		return m, nil
	case tea.KeyEnter:
		return m.submitInput()
	case tea.KeySpace:
		m.buffer += " "
		return m, nil
	case tea.KeyRunes:
		m.buffer += string(msg.Runes)
		return m, nil
	}
	return m, nil
}

func (m menu) submitInput() (tea.Model, tea.Cmd) {
	input := strings.TrimSpace(m.buffer)
	m.buffer = ""

	switch m.mode {
	case inputRA:
		ra, err := coordinates.ParseRA(input)
		if err != nil {
			m.err = err
			m.mode = inputNone
			return m, nil
		}
		m.raDeg = ra
		m.mode = inputDec
		return m, nil

	case inputDec:
		dec, err := coordinates.ParseDec(input)
		m.mode = inputNone
		if err != nil {
			m.err = err
			return m, nil
		}
		ra := m.raDeg
		m.busy = true
		label := fmt.Sprintf("Goto %s %s", coordinates.FormatRA(ra), coordinates.FormatDec(dec))
		return m, m.run(label, func(ctx context.Context) (*pointing.Solution, error) {
			sol, err := m.controller.Goto(ctx, ra, dec)
			if err != nil {
				return nil, err
			}
			return &sol, nil
		})

	case inputNudge:
		m.mode = inputNone
		dHA, dDec, err := parseOffsets(input)
		if err != nil {
			m.err = err
			return m, nil
		}
		var base pointing.Solution
		if m.last != nil {
			base = *m.last
		}
		m.busy = true
		label := fmt.Sprintf("Nudge %+.4f° %+.4f°", dHA, dDec)
		return m, m.run(label, func(ctx context.Context) (*pointing.Solution, error) {
			target, err := m.controller.Nudge(ctx, dHA, dDec)
			if err != nil {
				return nil, err
			}
			base.Encoder = target
			return &base, nil
		})
	}
	return m, nil
}

// parseOffsets reads "dHA dDec" in decimal degrees.
func parseOffsets(input string) (float64, float64, error) {
	fields := strings.Fields(input)
	if len(fields) != 2 {
		return 0, 0, fmt.Errorf("%w: expected two offsets, got %q", coordinates.ErrInvalidInput, input)
	}
	var out [2]float64
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return 0, 0, fmt.Errorf("%w: offset %q: %v", coordinates.ErrInvalidInput, f, err)
		}
		out[i] = v
	}
	return out[0], out[1], nil
}

// run executes fn off the UI goroutine and reports through an actionMsg.
func (m menu) run(label string, fn func(ctx context.Context) (*pointing.Solution, error)) tea.Cmd {
	parent := m.ctx
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(parent, commandTimeout)
		defer cancel()
		sol, err := fn(ctx)
		return actionMsg{label: label, sol: sol, err: err}
	}
}

func (m menu) View() string {
	var s strings.Builder

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("86")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)
	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	helpStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("241"))

	s.WriteString(titleStyle.Render("ROTSE MOUNT CONTROL"))
	s.WriteString("\n\n")

	// Site and clock
	lst := coordinates.LocalSiderealTime(m.site.Longitude, m.clockTime)
	s.WriteString(headerStyle.Render("Site"))
	s.WriteString(fmt.Sprintf("  %s  lat %.6f  lon %.6f\n", m.site.Name, m.site.Latitude, m.site.Longitude))
	s.WriteString(headerStyle.Render("Time"))
	s.WriteString(fmt.Sprintf("  %s UTC  LST %s\n", m.clockTime.UTC().Format("2006-01-02 15:04:05"),
		coordinates.FormatRA(lst*coordinates.DegreesPerHour)))
	sun := coordinates.CalculateSunPosition(m.clockTime)
	sunState := "down"
	if sun.IsSunAboveHorizon(m.site) {
		sunState = "UP"
	}
	s.WriteString(headerStyle.Render("Sun"))
	s.WriteString(fmt.Sprintf("   alt %.1f° (%s)\n", sun.Altitude(m.site), sunState))

	kind := "none"
	if model := m.controller.Model(); model != nil {
		kind = string(model.Kind())
	}
	s.WriteString(headerStyle.Render("Model"))
	s.WriteString("  " + kind + "\n")
	s.WriteString(m.renderTarget())
	s.WriteString("\n")

	if m.mode != inputNone {
		promptStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true)
		inputStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("226"))
		prompt := "Right ascension (hh:mm:ss.s or decimal hours):"
		switch m.mode {
		case inputDec:
			prompt = fmt.Sprintf("Declination for RA %s (±dd:mm:ss or decimal degrees):", coordinates.FormatRA(m.raDeg))
		case inputNudge:
			prompt = "Offset in degrees (dHA dDec):"
		}
		s.WriteString(promptStyle.Render(prompt))
		s.WriteString("\n")
		s.WriteString(inputStyle.Render("> " + m.buffer + "_"))
		s.WriteString("\n\n")
		s.WriteString(helpStyle.Render("ENTER: Submit  ESC: Cancel"))
		return s.String()
	}

	for i, label := range menuLabels {
		line := fmt.Sprintf("  %d. %s", i+1, label)
		if i == m.selected {
			line = lipgloss.NewStyle().
				Background(lipgloss.Color("237")).
				Foreground(lipgloss.Color("46")).
				Bold(true).
				Render("> " + line[2:])
		}
		s.WriteString(line)
		s.WriteString("\n")
	}
	s.WriteString("\n")

	switch {
	case m.busy:
		s.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color("226")).Render("Working..."))
	case m.err != nil:
		s.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Render(fmt.Sprintf("Error: %v", m.err)))
	case m.status != "":
		s.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color("46")).Render(m.status))
	}
	s.WriteString("\n\n")
	s.WriteString(helpStyle.Render("↑/↓: Select  ENTER: Run  1-6: Shortcut  Q: Quit"))
	return s.String()
}

// renderTarget shows the last setpoint and, for the matrix model, the sky
// position it maps back to.
func (m menu) renderTarget() string {
	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	if m.last == nil {
		return headerStyle.Render("Target") + "  none\n"
	}
	line := fmt.Sprintf("  HA %+.4f°  Dec %.4f°  ->  encoder %s",
		m.last.Position.SignedHourAngle(), m.last.Position.Declination, m.last.Encoder)
	if mm, ok := m.controller.Model().(*pointing.MatrixModel); ok {
		if back, err := mm.FromEncoder(m.last.Encoder); err == nil {
			line += fmt.Sprintf("  (mount at HA %+.4f° Dec %.4f°)", back.SignedHourAngle(), back.Declination)
		}
	}
	return headerStyle.Render("Target") + line + "\n"
}
