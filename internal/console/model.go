package console

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"
)

const maxLogLines = 1000

type inputMode int

const (
	inputNone inputMode = iota
	inputGoto
	inputLoad
	inputName
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	connectedDot  = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Render("●")
	waitingDot    = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Render("●")
	statusStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	sentStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	noteStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	lastInfoStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("13")).Bold(true)
	errStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

type model struct {
	addr string
	conn io.Writer

	vp         viewport.Model
	input      textinput.Model
	mode       inputMode
	logs       []string
	wrap       bool
	autoscroll bool
	help       bool
	lastSent   string
	lastInfo   string
	errText    string
	height     int
}

func newModel(addr string) model {
	return model{
		addr:       addr,
		vp:         viewport.New(0, 0),
		autoscroll: true,
	}
}

func (m model) Init() tea.Cmd { return nil }

func (m *model) send(frame string) {
	if err := sendFrame(m.conn, frame); err != nil {
		m.errText = err.Error()
		return
	}
	m.errText = ""
	m.lastSent = frame
	m.appendLog(sentStyle.Render("-> " + frame))
}

func (m *model) appendLog(line string) {
	m.logs = append(m.logs, line)
	if len(m.logs) > maxLogLines {
		m.logs = m.logs[len(m.logs)-maxLogLines:]
	}
	m.refreshViewport()
}

func (m *model) refreshViewport() {
	var lines []string
	for _, l := range m.logs {
		if m.wrap && m.vp.Width > 0 {
			lines = append(lines, wordwrap.String(l, m.vp.Width))
		} else {
			lines = append(lines, l)
		}
	}
	m.vp.SetContent(strings.Join(lines, "\n"))
	if m.autoscroll {
		m.vp.GotoBottom()
	}
}

func (m *model) updateViewportHeight() {
	h := m.height - lipgloss.Height(m.headerView()) - lipgloss.Height(m.footerView()) - 2
	if h < 0 {
		h = 0
	}
	m.vp.Height = h
}

func (m *model) openInput(mode inputMode, placeholder string) {
	m.input = textinput.New()
	m.input.Placeholder = placeholder
	m.input.Focus()
	m.mode = mode
}

// submitInput parses the dialog value and sends the matching frame.
func (m *model) submitInput() {
	val := strings.TrimSpace(m.input.Value())
	switch m.mode {
	case inputGoto:
		year, err := strconv.Atoi(val)
		if err != nil {
			m.errText = "goto needs a year number"
			break
		}
		m.send(gotoFrame(year))
	case inputLoad:
		parts := strings.SplitN(val, ",", 2)
		if len(parts) != 2 {
			m.errText = "load needs year,name"
			break
		}
		year, err := strconv.Atoi(strings.TrimSpace(parts[0]))
		if err != nil {
			m.errText = "load needs year,name"
			break
		}
		m.send(loadFrame(year, strings.TrimSpace(parts[1])))
	case inputName:
		if val == "" {
			m.errText = "name needs a basename"
			break
		}
		m.send(nameFrame(val))
	}
	m.mode = inputNone
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.vp.Width = msg.Width
		m.height = msg.Height
		m.updateViewportHeight()
		m.refreshViewport()
	case connMsg:
		m.conn = msg.conn
		m.errText = ""
		m.appendLog(statusStyle.Render("simulation connected"))
	case disconnectMsg:
		m.conn = nil
		m.appendLog(statusStyle.Render("simulation disconnected"))
	case noteMsg:
		line := msg.line
		if strings.HasPrefix(line, "info:last:") {
			m.lastInfo = strings.TrimPrefix(line, "info:last:")
			m.appendLog(lastInfoStyle.Render("<- " + line))
		} else {
			m.appendLog(noteStyle.Render("<- " + line))
		}
	case errMsg:
		m.errText = msg.err.Error()
	case tea.KeyMsg:
		if m.mode != inputNone {
			switch msg.Type {
			case tea.KeyEnter:
				m.submitInput()
			case tea.KeyEsc:
				m.mode = inputNone
			default:
				var cmd tea.Cmd
				m.input, cmd = m.input.Update(msg)
				return m, cmd
			}
			return m, nil
		}
		if m.help {
			switch msg.String() {
			case "?", "h", "esc":
				m.help = false
			}
			return m, nil
		}
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "p":
			m.send(playFrame())
		case " ":
			m.send(pauseFrame())
		case "f", "right":
			m.send(stepfFrame())
		case "b", "left":
			m.send(stepbFrame())
		case "s":
			m.send(stopFrame())
		case "y":
			m.send(syncFrame())
		case "g":
			m.openInput(inputGoto, "year number")
		case "l":
			m.openInput(inputLoad, "year,raster")
		case "n":
			m.openInput(inputName, "basename")
		case "w":
			m.wrap = !m.wrap
			m.refreshViewport()
		case "a":
			m.autoscroll = !m.autoscroll
			if m.autoscroll {
				m.vp.GotoBottom()
			}
		case "h", "?":
			m.help = true
		case "j", "down":
			m.vp.LineDown(1)
		case "k", "up":
			m.vp.LineUp(1)
		case "pgdown":
			m.vp.LineDown(10)
		case "pgup":
			m.vp.LineUp(10)
		}
		return m, nil
	}
	return m, nil
}

func (m model) headerView() string {
	dot := waitingDot
	state := "waiting for simulation on " + m.addr
	if m.conn != nil {
		dot = connectedDot
		state = "connected"
	}
	head := fmt.Sprintf("%s %s %s", titleStyle.Render("spreadsim steer"), dot, statusStyle.Render(state))
	if m.lastInfo != "" {
		head += " " + lastInfoStyle.Render("last="+m.lastInfo)
	}
	return head
}

func (m model) footerView() string {
	if m.mode != inputNone {
		label := map[inputMode]string{
			inputGoto: "Go to (year number)",
			inputLoad: "Load treatment (year,raster)",
			inputName: "Series basename",
		}[m.mode]
		return fmt.Sprintf("%s - Enter to send, Esc to cancel: %s", label, m.input.View())
	}
	line := "p play  space pause  f/b step  g goto  l load  n name  y sync  s stop  h help  q quit"
	if m.lastSent != "" {
		line += statusStyle.Render("  [sent " + m.lastSent + "]")
	}
	if m.errText != "" {
		line += " " + errStyle.Render(m.errText)
	}
	return line
}

func (m model) helpView() string {
	lines := []string{
		"Key Bindings:",
		" p      play to the end date",
		" space  pause at the current date",
		" f / →  step forward one year",
		" b / ←  step back one year",
		" g      go to a year number",
		" l      load a treatment raster (year,raster)",
		" n      change the output series basename",
		" y      synchronize all runs to run 0",
		" s      stop the simulation",
		" w      toggle line wrap",
		" a      toggle auto-scroll",
		" j/k    scroll when auto-scroll is off",
		" q      quit the console",
	}
	return strings.Join(lines, "\n")
}

func (m model) View() string {
	if m.help {
		return m.helpView()
	}
	divider := strings.Repeat("─", m.vp.Width)
	return strings.Join([]string{
		m.headerView(),
		divider,
		m.vp.View(),
		divider,
		m.footerView(),
	}, "\n")
}
