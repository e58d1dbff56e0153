package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"assistant-relay/internal/domain"
)

type mockProvider struct {
	mu sync.Mutex

	threadID   string
	statuses   []domain.RunStatus
	lastError  *domain.RunError
	messages   []domain.Message
	createErr  error
	addErr     error
	runErr     error
	getRunErr  error
	listErr    error
	blockOnGet bool

	calls         []string
	addedThread   string
	addedText     string
	runAssistant  string
	getRunCount   int
	cancelledRuns []string
}

func (m *mockProvider) record(call string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, call)
}

func (m *mockProvider) CreateThread(_ context.Context) (domain.Thread, error) {
	m.record("create_thread")
	if m.createErr != nil {
		return domain.Thread{}, m.createErr
	}
	return domain.Thread{ID: m.threadID}, nil
}

func (m *mockProvider) AddMessage(_ context.Context, threadID, text string) (domain.Message, error) {
	m.record("add_message")
	m.addedThread = threadID
	m.addedText = text
	return domain.NewUserMessage(text), m.addErr
}

func (m *mockProvider) CreateRun(_ context.Context, _, assistantID string) (domain.Run, error) {
	m.record("create_run")
	m.runAssistant = assistantID
	if m.runErr != nil {
		return domain.Run{}, m.runErr
	}
	return domain.Run{ID: "run_1", Status: domain.RunQueued}, nil
}

func (m *mockProvider) GetRun(ctx context.Context, _, runID string) (domain.Run, error) {
	m.record("get_run")
	if m.blockOnGet {
		<-ctx.Done()
		return domain.Run{}, ctx.Err()
	}
	if m.getRunErr != nil {
		return domain.Run{}, m.getRunErr
	}
	m.mu.Lock()
	idx := m.getRunCount
	m.getRunCount++
	m.mu.Unlock()
	if idx >= len(m.statuses) {
		idx = len(m.statuses) - 1
	}
	return domain.Run{ID: runID, Status: m.statuses[idx], LastError: m.lastError}, nil
}

func (m *mockProvider) CancelRun(_ context.Context, _, runID string) (domain.Run, error) {
	m.record("cancel_run")
	m.mu.Lock()
	m.cancelledRuns = append(m.cancelledRuns, runID)
	m.mu.Unlock()
	return domain.Run{ID: runID, Status: domain.RunCancelling}, nil
}

func (m *mockProvider) ListMessages(_ context.Context, _ string) ([]domain.Message, error) {
	m.record("list_messages")
	return m.messages, m.listErr
}

type recordingRecorder struct {
	threads int
	polled  []domain.RunStatus
	codes   []string
}

func (r *recordingRecorder) ThreadCreated()                          { r.threads++ }
func (r *recordingRecorder) RunPolled(s domain.RunStatus)            { r.polled = append(r.polled, s) }
func (r *recordingRecorder) RelayFinished(c string, _ time.Duration) { r.codes = append(r.codes, c) }

func completedProvider() *mockProvider {
	return &mockProvider{
		threadID: "t1",
		statuses: []domain.RunStatus{domain.RunCompleted},
		messages: []domain.Message{
			{ID: "m2", Role: domain.RoleAssistant, Content: []domain.ContentPart{{Type: "text", Text: &domain.TextContent{Value: "hi there"}}}},
			{ID: "m1", Role: domain.RoleUser, Content: []domain.ContentPart{{Type: "text", Text: &domain.TextContent{Value: "hello"}}}},
		},
	}
}

// newTestService replaces the poll sleep with a counter so tests never block.
func newTestService(t *testing.T, p Provider, cfg Config, opts ...Option) (*RelayService, *[]time.Duration) {
	t.Helper()
	if cfg.AssistantID == "" {
		cfg.AssistantID = "asst_1"
	}
	svc, err := NewRelayService(p, cfg, opts...)
	require.NoError(t, err)
	waits := &[]time.Duration{}
	svc.wait = func(ctx context.Context, d time.Duration) error {
		*waits = append(*waits, d)
		return ctx.Err()
	}
	return svc, waits
}

func expectRelayError(t *testing.T, err error, code ErrorCode, reason string) {
	t.Helper()
	var usecaseErr *Error
	require.ErrorAs(t, err, &usecaseErr)
	require.Equal(t, code, usecaseErr.Code)
	require.Equal(t, reason, usecaseErr.Reason)
}

func TestNewRelayService_Validates(t *testing.T) {
	_, err := NewRelayService(nil, Config{AssistantID: "asst_1"})
	require.Error(t, err)

	_, err = NewRelayService(completedProvider(), Config{AssistantID: "  "})
	require.Error(t, err)
	require.Contains(t, err.Error(), "assistant id")
}

func TestNewRelayService_Defaults(t *testing.T) {
	svc, err := NewRelayService(completedProvider(), Config{AssistantID: "asst_1", PollTimeout: -time.Second})
	require.NoError(t, err)
	require.Equal(t, time.Second, svc.cfg.PollInterval)
	require.Zero(t, svc.cfg.PollTimeout)
}

func TestRelay_NewThread(t *testing.T) {
	p := completedProvider()
	rec := &recordingRecorder{}
	svc, _ := newTestService(t, p, Config{}, WithRecorder(rec))

	out, err := svc.Relay(context.Background(), RelayInput{Message: "hello"})
	require.NoError(t, err)
	require.Equal(t, "t1", out.ThreadID)
	require.Equal(t, p.messages, out.Messages, "messages are returned verbatim, newest first")
	require.Equal(t, []string{"create_thread", "add_message", "create_run", "get_run", "list_messages"}, p.calls)
	require.Equal(t, "t1", p.addedThread)
	require.Equal(t, "hello", p.addedText)
	require.Equal(t, "asst_1", p.runAssistant)
	require.Equal(t, 1, rec.threads)
	require.Equal(t, []string{"OK"}, rec.codes)
}

func TestRelay_ReusesThread(t *testing.T) {
	p := completedProvider()
	svc, _ := newTestService(t, p, Config{})

	first, err := svc.Relay(context.Background(), RelayInput{Message: "hello"})
	require.NoError(t, err)
	require.Equal(t, "t1", first.ThreadID)

	p.calls = nil
	second, err := svc.Relay(context.Background(), RelayInput{Message: "again", ThreadID: first.ThreadID})
	require.NoError(t, err)
	require.Equal(t, "t1", second.ThreadID)
	require.NotContains(t, p.calls, "create_thread")
	require.Equal(t, "t1", p.addedThread)
}

func TestRelay_PollsUntilCompleted(t *testing.T) {
	p := completedProvider()
	p.statuses = []domain.RunStatus{domain.RunQueued, domain.RunInProgress, domain.RunCompleted}
	rec := &recordingRecorder{}
	svc, waits := newTestService(t, p, Config{PollInterval: 1500 * time.Millisecond}, WithRecorder(rec))

	out, err := svc.Relay(context.Background(), RelayInput{Message: "hello", ThreadID: "t1"})
	require.NoError(t, err)
	require.Len(t, out.Messages, 2)
	require.Equal(t, 3, p.getRunCount, "returns only after the third poll observes completed")
	require.Equal(t, []time.Duration{1500 * time.Millisecond, 1500 * time.Millisecond}, *waits)
	require.Equal(t, []domain.RunStatus{domain.RunQueued, domain.RunInProgress, domain.RunCompleted}, rec.polled)
	require.Equal(t, "list_messages", p.calls[len(p.calls)-1])
}

func TestRelay_CancellingKeepsWaiting(t *testing.T) {
	p := completedProvider()
	p.statuses = []domain.RunStatus{domain.RunCancelling, domain.RunCancelled}
	svc, _ := newTestService(t, p, Config{})

	_, err := svc.Relay(context.Background(), RelayInput{Message: "hello", ThreadID: "t1"})
	expectRelayError(t, err, ErrorRunFailed, "run_cancelled")
	require.Equal(t, 2, p.getRunCount)
}

func TestRelay_UnknownStatusKeepsWaiting(t *testing.T) {
	p := completedProvider()
	p.statuses = []domain.RunStatus{"pending_review", domain.RunQueued, domain.RunCompleted}
	svc, _ := newTestService(t, p, Config{})

	_, err := svc.Relay(context.Background(), RelayInput{Message: "hello", ThreadID: "t1"})
	require.NoError(t, err)
	require.Equal(t, 3, p.getRunCount)
}

func TestRelay_EmptyMessage(t *testing.T) {
	p := completedProvider()
	svc, _ := newTestService(t, p, Config{})

	_, err := svc.Relay(context.Background(), RelayInput{Message: " \t\n"})
	expectRelayError(t, err, ErrorInvalidInput, "empty_message")
	require.Empty(t, p.calls)
}

func TestRelay_StepFailures(t *testing.T) {
	boom := errors.New("boom")
	cases := []struct {
		name   string
		mutate func(*mockProvider)
		code   ErrorCode
		reason string
		last   string
	}{
		{name: "create thread", mutate: func(p *mockProvider) { p.createErr = boom }, code: ErrorUpstream, reason: "create_thread_error", last: "create_thread"},
		{name: "add message", mutate: func(p *mockProvider) { p.addErr = boom }, code: ErrorUpstream, reason: "add_message_error", last: "add_message"},
		{name: "create run", mutate: func(p *mockProvider) { p.runErr = boom }, code: ErrorUpstream, reason: "create_run_error", last: "create_run"},
		{name: "get run", mutate: func(p *mockProvider) { p.getRunErr = boom }, code: ErrorUpstream, reason: "get_run_error", last: "get_run"},
		{name: "list messages", mutate: func(p *mockProvider) { p.listErr = boom }, code: ErrorUpstream, reason: "list_messages_error", last: "list_messages"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := completedProvider()
			tc.mutate(p)
			svc, _ := newTestService(t, p, Config{})

			out, err := svc.Relay(context.Background(), RelayInput{Message: "hello"})
			expectRelayError(t, err, tc.code, tc.reason)
			require.ErrorIs(t, err, boom)
			require.Empty(t, out.Messages)
			require.Empty(t, out.ThreadID)
			require.Equal(t, tc.last, p.calls[len(p.calls)-1], "no call is made after the failing step")
		})
	}
}

func TestRelay_TerminalFailureStatuses(t *testing.T) {
	for _, status := range []domain.RunStatus{domain.RunFailed, domain.RunCancelled, domain.RunExpired, domain.RunIncomplete} {
		t.Run(string(status), func(t *testing.T) {
			p := completedProvider()
			p.statuses = []domain.RunStatus{domain.RunInProgress, status}
			p.lastError = &domain.RunError{Code: "server_error", Message: "boom"}
			svc, _ := newTestService(t, p, Config{})

			_, err := svc.Relay(context.Background(), RelayInput{Message: "hello", ThreadID: "t1"})
			expectRelayError(t, err, ErrorRunFailed, "run_"+string(status))
			require.ErrorContains(t, err, "server_error: boom")
			require.NotContains(t, p.calls, "list_messages")
			require.Empty(t, p.cancelledRuns)
		})
	}
}

func TestRelay_RequiresActionCancelsRun(t *testing.T) {
	p := completedProvider()
	p.statuses = []domain.RunStatus{domain.RunRequiresAction}
	svc, _ := newTestService(t, p, Config{})

	_, err := svc.Relay(context.Background(), RelayInput{Message: "hello", ThreadID: "t1"})
	expectRelayError(t, err, ErrorRunRequiresAction, "run_requires_action")
	require.Equal(t, []string{"run_1"}, p.cancelledRuns)
}

func TestRelay_PollTimeout(t *testing.T) {
	p := completedProvider()
	p.statuses = []domain.RunStatus{domain.RunInProgress}
	rec := &recordingRecorder{}
	svc, err := NewRelayService(p, Config{
		AssistantID:  "asst_1",
		PollInterval: 5 * time.Millisecond,
		PollTimeout:  40 * time.Millisecond,
	}, WithRecorder(rec))
	require.NoError(t, err)

	_, err = svc.Relay(context.Background(), RelayInput{Message: "hello", ThreadID: "t1"})
	expectRelayError(t, err, ErrorRunTimeout, "run_poll_timeout")
	require.Equal(t, []string{"run_1"}, p.cancelledRuns)
	require.Greater(t, p.getRunCount, 1)
	require.Equal(t, []string{string(ErrorRunTimeout)}, rec.codes)
}

func TestRelay_PollTimeoutDuringGetRun(t *testing.T) {
	p := completedProvider()
	p.blockOnGet = true
	svc, err := NewRelayService(p, Config{AssistantID: "asst_1", PollTimeout: 20 * time.Millisecond})
	require.NoError(t, err)

	_, err = svc.Relay(context.Background(), RelayInput{Message: "hello", ThreadID: "t1"})
	expectRelayError(t, err, ErrorRunTimeout, "run_poll_timeout")
	require.Equal(t, []string{"run_1"}, p.cancelledRuns)
}

func TestRelay_CallerCancellation(t *testing.T) {
	p := completedProvider()
	p.statuses = []domain.RunStatus{domain.RunInProgress}
	svc, err := NewRelayService(p, Config{AssistantID: "asst_1", PollInterval: time.Hour})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err = svc.Relay(ctx, RelayInput{Message: "hello", ThreadID: "t1"})
	expectRelayError(t, err, ErrorInternal, "request_cancelled")
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, []string{"run_1"}, p.cancelledRuns)
}

func TestSleepContext(t *testing.T) {
	require.NoError(t, sleepContext(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, sleepContext(ctx, time.Hour), context.Canceled)
}
