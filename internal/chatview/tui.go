package chatview

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const (
	dotsInterval = 500 * time.Millisecond
	inputHeight  = 3
	minWidth     = 20
)

var (
	userBubble = lipgloss.NewStyle().
			Padding(0, 1).
			Foreground(lipgloss.Color("#FFFFFF")).
			Background(lipgloss.Color("#3B82F6"))
	assistantBubble = lipgloss.NewStyle().
			Padding(0, 1).
			Foreground(lipgloss.Color("#1F2937")).
			Background(lipgloss.Color("#E5E7EB"))
	linkStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#2563EB")).
			Underline(true)
	userLinkStyle = lipgloss.NewStyle().Underline(true)

	frameStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62"))
	buttonStyle = lipgloss.NewStyle().
			Padding(0, 2).
			Foreground(lipgloss.Color("#FFFFFF")).
			Background(lipgloss.Color("#3B82F6"))
	buttonBusyStyle = buttonStyle.Background(lipgloss.Color("#93C5FD"))
)

type replyMsg struct {
	reply Reply
	err   error
}

type dotsTickMsg struct {
	gen int
}

// Model is the Bubble Tea chat view over a Session.
type Model struct {
	session *Session
	relay   Relay
	ctx     context.Context

	input    textinput.Model
	viewport viewport.Model
	width    int
	height   int
	// gen identifies the current submission so stale dot ticks are dropped.
	gen int
}

func NewModel(ctx context.Context, s *Session, r Relay) Model {
	ti := textinput.New()
	ti.Placeholder = "Type your message..."
	ti.Prompt = "> "
	ti.Focus()

	m := Model{
		session:  s,
		relay:    r,
		ctx:      ctx,
		input:    ti,
		viewport: viewport.New(80, 20),
		width:    80,
		height:   20 + inputHeight,
	}
	m.refresh()
	return m
}

func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = max(msg.Width, minWidth)
		m.height = msg.Height
		m.viewport.Width = m.width
		m.viewport.Height = max(m.height-inputHeight-2, 1)
		m.input.Width = max(m.width-16, 1)
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			return m, m.submit()
		case tea.KeyPgUp, tea.KeyPgDown:
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
		if m.session.Loading {
			return m, nil
		}

	case replyMsg:
		m.session.Finish(msg.reply, msg.err)
		m.refresh()
		return m, m.input.Focus()

	case dotsTickMsg:
		if msg.gen != m.gen || !m.session.Loading {
			return m, nil
		}
		m.session.Tick()
		m.refresh()
		return m, m.tickDots()
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

// submit starts a relay call for the current input, or returns nil when
// the session refuses it.
func (m *Model) submit() tea.Cmd {
	m.session.Input = m.input.Value()
	req, ok := m.session.Begin()
	if !ok {
		return nil
	}
	m.input.SetValue(m.session.Input)
	m.input.Blur()
	m.gen++
	m.refresh()

	relay, ctx := m.relay, m.ctx
	send := func() tea.Msg {
		reply, err := relay.Send(ctx, req.Message, req.ThreadID)
		return replyMsg{reply: reply, err: err}
	}
	return tea.Batch(send, m.tickDots())
}

func (m Model) tickDots() tea.Cmd {
	gen := m.gen
	return tea.Tick(dotsInterval, func(time.Time) tea.Msg {
		return dotsTickMsg{gen: gen}
	})
}

// refresh re-renders the transcript and keeps the newest message in view.
func (m *Model) refresh() {
	m.viewport.SetContent(renderTranscript(m.session, m.width))
	m.viewport.GotoBottom()
}

func (m Model) View() string {
	label, style := "Send", buttonStyle
	if m.session.Loading {
		label, style = "Wait", buttonBusyStyle
	}
	button := style.Render(label)
	field := lipgloss.NewStyle().Width(max(m.width-lipgloss.Width(button)-4, 1)).Render(m.input.View())
	form := frameStyle.Width(max(m.width-2, 1)).Render(lipgloss.JoinHorizontal(lipgloss.Center, field, " ", button))
	return lipgloss.JoinVertical(lipgloss.Left, m.viewport.View(), form)
}

func renderTranscript(s *Session, width int) string {
	bubbleWidth := width * 8 / 10
	var rows []string
	for _, msg := range s.Messages {
		user := msg.IsUser()
		style := assistantBubble
		align := lipgloss.Left
		if user {
			style, align = userBubble, lipgloss.Right
		}
		body := renderSegments(ParseLinks(msg.Text()), user)
		// Short messages keep a snug bubble; long ones wrap at bubbleWidth.
		bubble := style.Width(min(lipgloss.Width(body)+2, bubbleWidth)).Render(body)
		rows = append(rows, lipgloss.PlaceHorizontal(width, align, bubble))
	}
	if s.Loading {
		bubble := assistantBubble.Render("Thinking" + s.Dots)
		rows = append(rows, lipgloss.PlaceHorizontal(width, lipgloss.Left, bubble))
	}
	return strings.Join(rows, "\n\n")
}

func renderSegments(segs []Segment, user bool) string {
	ls := linkStyle
	if user {
		ls = userLinkStyle
	}
	var b strings.Builder
	for _, s := range segs {
		if !s.IsLink() {
			b.WriteString(s.Text)
			continue
		}
		b.WriteString(hyperlink(s.URL, ls.Render(s.Text)))
	}
	return b.String()
}

// hyperlink wraps label in an OSC 8 terminal hyperlink.
func hyperlink(url, label string) string {
	return "\x1b]8;;" + url + "\x1b\\" + label + "\x1b]8;;\x1b\\"
}
