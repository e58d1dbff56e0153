package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	"assistant-relay/internal/domain"
)

const (
	defaultPollInterval = time.Second
	cancelRunTimeout    = 5 * time.Second
)

// Provider is the subset of the assistant API the relay consumes.
type Provider interface {
	CreateThread(ctx context.Context) (domain.Thread, error)
	AddMessage(ctx context.Context, threadID, text string) (domain.Message, error)
	CreateRun(ctx context.Context, threadID, assistantID string) (domain.Run, error)
	GetRun(ctx context.Context, threadID, runID string) (domain.Run, error)
	CancelRun(ctx context.Context, threadID, runID string) (domain.Run, error)
	ListMessages(ctx context.Context, threadID string) ([]domain.Message, error)
}

// Recorder receives relay measurements. See internal/metrics.
type Recorder interface {
	ThreadCreated()
	RunPolled(status domain.RunStatus)
	RelayFinished(code string, elapsed time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) ThreadCreated()                      {}
func (nopRecorder) RunPolled(domain.RunStatus)          {}
func (nopRecorder) RelayFinished(string, time.Duration) {}

// Config carries the relay settings that used to be read from the process
// environment on every request.
type Config struct {
	AssistantID  string
	PollInterval time.Duration
	// PollTimeout bounds the wait for a run; zero waits until ctx ends.
	PollTimeout time.Duration
}

type RelayInput struct {
	Message  string
	ThreadID string
}

type RelayOutput struct {
	// Messages are returned as listed by the provider, newest first.
	Messages []domain.Message
	ThreadID string
}

type RelayService struct {
	provider Provider
	cfg      Config
	recorder Recorder

	wait func(ctx context.Context, d time.Duration) error
	now  func() time.Time
}

type Option func(*RelayService)

func WithRecorder(r Recorder) Option {
	return func(s *RelayService) {
		if r != nil {
			s.recorder = r
		}
	}
}

func NewRelayService(p Provider, cfg Config, opts ...Option) (*RelayService, error) {
	if p == nil {
		return nil, errors.New("usecase: provider must not be nil")
	}
	cfg.AssistantID = strings.TrimSpace(cfg.AssistantID)
	if cfg.AssistantID == "" {
		return nil, errors.New("usecase: assistant id must not be empty")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.PollTimeout < 0 {
		cfg.PollTimeout = 0
	}
	s := &RelayService{
		provider: p,
		cfg:      cfg,
		recorder: nopRecorder{},
		wait:     sleepContext,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Relay appends the message to the thread (creating one when ThreadID is
// empty), runs the assistant, waits for the run to complete and returns the
// thread's full message list.
func (s *RelayService) Relay(ctx context.Context, in RelayInput) (out RelayOutput, err error) {
	start := s.now()
	defer func() {
		code := "OK"
		var ue *Error
		if errors.As(err, &ue) {
			code = string(ue.Code)
		}
		s.recorder.RelayFinished(code, s.now().Sub(start))
	}()

	if strings.TrimSpace(in.Message) == "" {
		return RelayOutput{}, newError(ErrorInvalidInput, "empty_message", nil)
	}

	threadID := strings.TrimSpace(in.ThreadID)
	if threadID == "" {
		th, err := s.provider.CreateThread(ctx)
		if err != nil {
			return RelayOutput{}, newError(ErrorUpstream, "create_thread_error", err)
		}
		threadID = th.ID
		s.recorder.ThreadCreated()
	}

	if _, err := s.provider.AddMessage(ctx, threadID, in.Message); err != nil {
		return RelayOutput{}, newError(ErrorUpstream, "add_message_error", err)
	}

	run, err := s.provider.CreateRun(ctx, threadID, s.cfg.AssistantID)
	if err != nil {
		return RelayOutput{}, newError(ErrorUpstream, "create_run_error", err)
	}

	if err := s.awaitRun(ctx, threadID, run.ID); err != nil {
		return RelayOutput{}, err
	}

	msgs, err := s.provider.ListMessages(ctx, threadID)
	if err != nil {
		return RelayOutput{}, newError(ErrorUpstream, "list_messages_error", err)
	}
	return RelayOutput{Messages: msgs, ThreadID: threadID}, nil
}

// awaitRun polls the run at a fixed interval until it completes, fails, or
// the poll timeout or ctx ends the wait.
func (s *RelayService) awaitRun(ctx context.Context, threadID, runID string) error {
	pollCtx := ctx
	if s.cfg.PollTimeout > 0 {
		var cancel context.CancelFunc
		pollCtx, cancel = context.WithTimeout(ctx, s.cfg.PollTimeout)
		defer cancel()
	}

	for first := true; ; first = false {
		if !first {
			if err := s.wait(pollCtx, s.cfg.PollInterval); err != nil {
				return s.abandonRun(ctx, threadID, runID, err)
			}
		}

		run, err := s.provider.GetRun(pollCtx, threadID, runID)
		if err != nil {
			if pollCtx.Err() != nil {
				return s.abandonRun(ctx, threadID, runID, err)
			}
			return newError(ErrorUpstream, "get_run_error", err)
		}
		s.recorder.RunPolled(run.Status)

		switch {
		case run.Status == domain.RunCompleted:
			return nil
		case run.Status == domain.RunRequiresAction:
			s.cancelRun(ctx, threadID, runID)
			return newError(ErrorRunRequiresAction, "run_requires_action", nil)
		case run.Status.Terminal():
			return newError(ErrorRunFailed, "run_"+string(run.Status), runFailure(run))
		}
	}
}

// abandonRun classifies a wait that ended before the run finished and asks
// the provider to stop the run.
func (s *RelayService) abandonRun(ctx context.Context, threadID, runID string, cause error) error {
	s.cancelRun(ctx, threadID, runID)
	if ctx.Err() != nil {
		return newError(ErrorInternal, "request_cancelled", ctx.Err())
	}
	return newError(ErrorRunTimeout, "run_poll_timeout", cause)
}

// cancelRun is best effort; the caller has already decided the outcome.
func (s *RelayService) cancelRun(ctx context.Context, threadID, runID string) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cancelRunTimeout)
	defer cancel()
	_, _ = s.provider.CancelRun(cctx, threadID, runID)
}

func runFailure(run domain.Run) error {
	if run.LastError == nil {
		return nil
	}
	return errors.New(run.LastError.Code + ": " + run.LastError.Message)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
