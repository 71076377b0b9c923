package cli

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/randalmurphal/orc/internal/events"
)

// wireEvent mirrors the ad hoc frame broadcast.Handler.forwardEvents sends
// over the socket ({"type":"event","event":<EventType>,"task_id":...,
// "data":...,"time":...}) — a shape distinct from broadcast.Message, which
// only governs client-to-server control frames (subscribe/gate_decision).
type wireEvent struct {
	Type   string          `json:"type"`
	Event  events.EventType `json:"event"`
	TaskID string          `json:"task_id"`
	Data   json.RawMessage `json:"data"`
	Time   time.Time       `json:"time"`
}

func newWatchCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Live dashboard of task/stage/gate events",
		Long: `Connects to the websocket endpoint served by orc serve and renders
incoming events as a scrolling feed, most recent first.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr == "" {
				cfg := loadConfig()
				addr = fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
			}
			p := tea.NewProgram(newWatchModel(addr))
			_, err := p.Run()
			return err
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "orc serve address (defaults to config's server.host:port)")
	return cmd
}

type watchEventMsg events.Event

type watchErrMsg struct{ err error }

type watchConnectedMsg struct{ conn *websocket.Conn }

// watchModel is a bubbletea program streaming events.Event frames off the
// broadcast.Handler websocket. Event lines share one dim lipgloss style;
// only the connection status line is coloured (the teacher's wizard package establishes the same
// tea.Model + lipgloss.Style shape for internal/wizard's setup screens).
type watchModel struct {
	addr    string
	conn    *websocket.Conn
	events  []events.Event
	err     error
	width   int
	height  int
	styleOK lipgloss.Style
	styleErr lipgloss.Style
	styleDim lipgloss.Style
}

func newWatchModel(addr string) watchModel {
	return watchModel{
		addr:     addr,
		styleOK:  lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		styleErr: lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		styleDim: lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
	}
}

func (m watchModel) Init() tea.Cmd {
	return m.connect
}

func (m watchModel) connect() tea.Msg {
	u := url.URL{Scheme: "ws", Host: m.addr, Path: "/ws"}
	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return watchErrMsg{err}
	}
	return watchConnectedMsg{conn}
}

func readNext(conn *websocket.Conn) tea.Cmd {
	return func() tea.Msg {
		var msg wireEvent
		if err := conn.ReadJSON(&msg); err != nil {
			return watchErrMsg{err}
		}
		if msg.Type != "event" {
			return readNext(conn)()
		}
		ev := events.Event{Type: msg.Event, TaskID: msg.TaskID, Time: msg.Time}
		if len(msg.Data) > 0 {
			_ = json.Unmarshal(msg.Data, &ev.Data)
		}
		return watchEventMsg(ev)
	}
}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		return m, nil
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			if m.conn != nil {
				_ = m.conn.Close()
			}
			return m, tea.Quit
		}
		return m, nil
	case watchConnectedMsg:
		m.conn = msg.conn
		m.err = nil
		return m, readNext(m.conn)
	case watchErrMsg:
		m.err = msg.err
		return m, tea.Tick(2*time.Second, func(time.Time) tea.Msg { return m.connect() })
	case watchEventMsg:
		ev := events.Event(msg)
		m.events = append([]events.Event{ev}, m.events...)
		if len(m.events) > 200 {
			m.events = m.events[:200]
		}
		return m, readNext(m.conn)
	}
	return m, nil
}

func (m watchModel) View() string {
	var b strings.Builder
	b.WriteString(lipgloss.NewStyle().Bold(true).Render("orc watch"))
	b.WriteString("  ")
	if m.err != nil {
		b.WriteString(m.styleErr.Render(fmt.Sprintf("disconnected: %v (retrying)", m.err)))
	} else if m.conn != nil {
		b.WriteString(m.styleOK.Render("connected " + m.addr))
	} else {
		b.WriteString(m.styleDim.Render("connecting..."))
	}
	b.WriteString("\n\n")

	max := len(m.events)
	if m.height > 4 && max > m.height-4 {
		max = m.height - 4
	}
	for _, ev := range m.events[:max] {
		line := fmt.Sprintf("%-20s task=%-10s %s", ev.Type, shortID(ev.TaskID), ev.Time.Format("15:04:05"))
		b.WriteString(m.styleDim.Render(line))
		b.WriteString("\n")
	}
	b.WriteString(m.styleDim.Render("\nq to quit"))
	return b.String()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
