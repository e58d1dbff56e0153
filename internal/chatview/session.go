package chatview

import (
	"context"
	"log/slog"
	"strings"

	"assistant-relay/internal/domain"
)

const maxDots = 3

// Reply is the relay endpoint's success body.
type Reply struct {
	// Messages arrive newest first.
	Messages []domain.Message `json:"messages"`
	ThreadID string           `json:"threadId"`
}

// Relay sends one user message to the relay endpoint.
type Relay interface {
	Send(ctx context.Context, message, threadID string) (Reply, error)
}

// Request is a submission taken from the session by Begin.
type Request struct {
	Message  string
	ThreadID string
}

// Session is the chat view state without any rendering.
type Session struct {
	// Messages are in chronological order.
	Messages []domain.Message
	Input    string
	// ThreadID is empty until the relay assigns one.
	ThreadID string
	Loading  bool
	Dots     string

	logger *slog.Logger
}

func NewSession(logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{logger: logger}
}

// Begin takes the current input as a submission. It reports false, leaving
// the session untouched, for blank input or while a request is in flight.
func (s *Session) Begin() (Request, bool) {
	if s.Loading || strings.TrimSpace(s.Input) == "" {
		return Request{}, false
	}
	text := s.Input
	s.Loading = true
	s.Dots = ""
	s.Input = ""
	s.Messages = append(s.Messages, domain.NewUserMessage(text))
	return Request{Message: text, ThreadID: s.ThreadID}, true
}

// Finish applies the outcome of the request started by Begin. A successful
// reply replaces the whole message list; a failure only gets logged and the
// optimistic user message stays.
func (s *Session) Finish(reply Reply, err error) {
	defer func() {
		s.Loading = false
		s.Dots = ""
	}()
	if err != nil {
		s.logger.Error("chat request failed", "thread_id", s.ThreadID, "err", err)
		return
	}
	if reply.ThreadID != "" && s.ThreadID == "" {
		s.ThreadID = reply.ThreadID
	} else if reply.ThreadID != "" && reply.ThreadID != s.ThreadID {
		s.logger.Warn("relay returned a different thread id", "have", s.ThreadID, "got", reply.ThreadID)
	}
	s.Messages = domain.Chronological(reply.Messages)
}

// Submit runs Begin, the relay call and Finish in one go.
func (s *Session) Submit(ctx context.Context, r Relay) bool {
	req, ok := s.Begin()
	if !ok {
		return false
	}
	reply, err := r.Send(ctx, req.Message, req.ThreadID)
	s.Finish(reply, err)
	return true
}

// Tick advances the thinking indicator: "", ".", "..", "...", "" and so on.
func (s *Session) Tick() {
	if !s.Loading {
		s.Dots = ""
		return
	}
	if len(s.Dots) >= maxDots {
		s.Dots = ""
		return
	}
	s.Dots += "."
}
