package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/a-h/caseassist/client"
	"github.com/a-h/caseassist/models"

	"github.com/charmbracelet/bubbles/cursor"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"
)

type ChatCommand struct {
	ServerURL  string `help:"The URL of the case assistant server." env:"CASEASSIST_URL" default:"http://localhost:3001"`
	Token      string `help:"The access token for the case assistant server." env:"CASEASSIST_TOKEN" default:""`
	CaseNumber string `help:"The case being discussed." env:"CASE_NUMBER" default:""`
	LogLevel   string `help:"The log level to use." env:"LOG_LEVEL" default:"info"`
}

// conversation is the state of the chat after each chunk is received.
type conversation struct {
	Messages []models.ChatMessage
	Sources  []models.FormattedSource
}

func (c ChatCommand) Run(ctx context.Context) (err error) {
	cc := client.New(c.ServerURL, c.Token)

	// The server doesn't store conversations, so the whole history is sent each time.
	req := models.ChatCompletionsPostRequest{
		Messages:   []models.ChatMessage{},
		CaseNumber: c.CaseNumber,
	}

	toLLM := make(chan models.ChatMessage)
	fromLLM := make(chan conversation)
	errors := make(chan error)
	defer close(toLLM)

	go func() {
		for toSend := range toLLM {
			history := append(req.Messages, toSend)
			req.Messages = history
			msgIndex := len(req.Messages)
			req.Messages = append(req.Messages, models.ChatMessage{
				Role:    models.ChatRoleAssistant,
				Content: "",
			})

			f := func(ctx context.Context, chunk models.StreamingChunk) error {
				req.Messages[msgIndex].Content = chunk.Content
				select {
				case fromLLM <- conversation{Messages: append([]models.ChatMessage(nil), req.Messages...), Sources: chunk.Sources}:
					return nil
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			if err := cc.ChatCompletions(ctx, models.ChatCompletionsPostRequest{
				Messages:   history,
				CaseNumber: req.CaseNumber,
			}, f); err != nil {
				if req.Messages[msgIndex].Content == "" {
					req.Messages = req.Messages[:msgIndex]
				}
				select {
				case errors <- err:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	p := tea.NewProgram(newModel(ctx, c.CaseNumber, toLLM, fromLLM, errors))
	if _, err = p.Run(); err != nil {
		return err
	}
	return nil
}

// Dracula color scheme.
var (
	Background  = lipgloss.Color("#282a36")
	CurrentLine = lipgloss.Color("#44475a")
	Foreground  = lipgloss.Color("#f8f8f2")
	Comment     = lipgloss.Color("#6272a4")
	Cyan        = lipgloss.Color("#8be9fd")
	Green       = lipgloss.Color("#50fa7b")
	Pink        = lipgloss.Color("#ff79c6")
	Purple      = lipgloss.Color("#bd93f9")
	Red         = lipgloss.Color("#ff5555")
)

var headerStyle = lipgloss.NewStyle().Background(CurrentLine).Foreground(Purple).Bold(true).Margin(1).Padding(1)

var (
	sourceStyle = lipgloss.NewStyle().MarginLeft(3).Foreground(Comment)
	errorStyle  = lipgloss.NewStyle().Margin(1).Foreground(Red)
)

type model struct {
	viewport   viewport.Model
	textarea   textarea.Model
	err        error
	ctx        context.Context
	caseNumber string

	// Chatbot interactions.
	toLLM   chan models.ChatMessage
	fromLLM chan conversation
	errors  chan error
	latest  conversation
}

func newModel(ctx context.Context, caseNumber string, toLLM chan models.ChatMessage, fromLLM chan conversation, errors chan error) model {
	ta := textarea.New()
	ta.Placeholder = "Ask about the case..."
	ta.Focus()

	ta.Prompt = "┃ "
	ta.CharLimit = 2000

	ta.SetHeight(3)

	// Remove cursor line styling
	ta.FocusedStyle.CursorLine = lipgloss.NewStyle()

	ta.ShowLineNumbers = false

	vp := viewport.New(80, 20)
	vp.SetContent(headerStyle.Render(title(caseNumber)))

	ta.KeyMap.InsertNewline.SetEnabled(false)

	return model{
		ctx:        ctx,
		caseNumber: caseNumber,
		textarea:   ta,
		viewport:   vp,
		err:        nil,
		fromLLM:    fromLLM,
		toLLM:      toLLM,
		errors:     errors,
	}
}

func title(caseNumber string) string {
	if caseNumber == "" {
		return "Case assistant"
	}
	return "Case assistant: " + caseNumber
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		textarea.Blink,
		m.subscribeToFromLLM(),
		m.subscribeToErrors(),
	)
}

func (m model) subscribeToFromLLM() tea.Cmd {
	return func() tea.Msg {
		select {
		case x := <-m.fromLLM:
			return x
		case <-m.ctx.Done():
			return nil
		}
	}
}

func (m model) subscribeToErrors() tea.Cmd {
	return func() tea.Msg {
		select {
		case x := <-m.errors:
			return x
		case <-m.ctx.Done():
			return nil
		}
	}
}

var roleToStyle = map[models.ChatRole]lipgloss.Style{
	models.ChatRoleSystem:    lipgloss.NewStyle().Padding(1).Margin(1).MarginBottom(0).MaxWidth(90).Background(Background).Foreground(Green),
	models.ChatRoleUser:      lipgloss.NewStyle().Padding(1).Margin(1).MarginBottom(0).Background(Background).Foreground(Pink),
	models.ChatRoleAssistant: lipgloss.NewStyle().Padding(1).Margin(1).MarginBottom(0).Background(Background).Foreground(Cyan),
}

var roleToIcon = map[models.ChatRole]string{
	models.ChatRoleSystem:    "🤖",
	models.ChatRoleUser:      "🧑‍⚖️",
	models.ChatRoleAssistant: "⚖️",
}

func formatMessage(msg models.ChatMessage) string {
	style, ok := roleToStyle[msg.Role]
	if !ok {
		return msg.Content
	}
	icon, ok := roleToIcon[msg.Role]
	if !ok {
		icon = "🤷"
	}
	wrapped := wordwrap.String(strings.TrimSpace(icon+" "+msg.Content), 80)
	return style.Render(wrapped)
}

func formatSources(sources []models.FormattedSource) string {
	if len(sources) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("Sources:")
	for i, s := range sources {
		sb.WriteString(fmt.Sprintf("\n%d. %s (%.2f)", i+1, s.Title, s.Score))
	}
	return sourceStyle.Render(sb.String())
}

func (m model) render() string {
	var sb strings.Builder
	sb.WriteString(headerStyle.Render(title(m.caseNumber)))
	sb.WriteString("\n")
	for _, cm := range m.latest.Messages {
		sb.WriteString(formatMessage(cm))
		sb.WriteString("\n")
	}
	if s := formatSources(m.latest.Sources); s != "" {
		sb.WriteString(s)
		sb.WriteString("\n")
	}
	if m.err != nil {
		sb.WriteString(errorStyle.Render(m.err.Error()))
		sb.WriteString("\n")
	}
	return sb.String()
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case error:
		m.err = msg
		m.viewport.SetContent(m.render())
		m.viewport.GotoBottom()
		return m, m.subscribeToErrors()
	case conversation:
		m.latest = msg
		m.err = nil
		m.viewport.SetContent(m.render())
		m.viewport.GotoBottom()
		return m, m.subscribeToFromLLM()
	case tea.WindowSizeMsg:
		m.viewport.Width = msg.Width
		m.viewport.Height = msg.Height - m.textarea.Height() - 3
		m.textarea.SetWidth(msg.Width)
		return m, nil
	case tea.KeyMsg:
		switch msg.String() {
		case "esc", "ctrl+c":
			return m, tea.Quit
		case "enter":
			v := m.textarea.Value()

			if v == "" {
				// Don't send empty messages.
				return m, nil
			}

			m.textarea.Reset()
			send := func() tea.Msg {
				m.toLLM <- models.ChatMessage{
					Role:    models.ChatRoleUser,
					Content: v,
				}
				return nil
			}
			return m, send
		default:
			// Send all other keypresses to the textarea.
			var cmd tea.Cmd
			m.textarea, cmd = m.textarea.Update(msg)
			return m, cmd
		}

	case cursor.BlinkMsg:
		// Textarea should also process cursor blinks.
		var cmd tea.Cmd
		m.textarea, cmd = m.textarea.Update(msg)
		return m, cmd

	default:
		return m, nil
	}
}

func (m model) View() string {
	return fmt.Sprintf("%s\n\n%s",
		m.viewport.View(),
		m.textarea.View(),
	) + "\n\n"
}
