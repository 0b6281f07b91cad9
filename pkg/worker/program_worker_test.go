package worker

import (
    "context"
    "errors"
    "fmt"
    "testing"

    "github.com/goccy/go-json"
    "github.com/hibiken/asynq"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/feichai0017/plc-program-processor/internal/service/program"
    "github.com/feichai0017/plc-program-processor/pkg/logger"
    "github.com/feichai0017/plc-program-processor/pkg/queue"
)

type fakeCompleter struct {
    err    error
    jobs   []*program.RegistrationJob
    failed []string
}

func (c *fakeCompleter) CompleteRegistration(_ context.Context, job *program.RegistrationJob) error {
    c.jobs = append(c.jobs, job)
    return c.err
}

func (c *fakeCompleter) FailProgram(_ context.Context, programID string, _ error) {
    c.failed = append(c.failed, programID)
}

type statusRecorder struct {
    saved []queue.TaskStatus
}

func (r *statusRecorder) Enqueue(context.Context, *queue.Task) error { return nil }
func (r *statusRecorder) GetTaskStatus(context.Context, string) (*queue.TaskStatus, error) {
    return nil, queue.ErrTaskNotFound
}
func (r *statusRecorder) CancelTask(context.Context, string) error { return nil }
func (r *statusRecorder) SaveFinalStatus(_ context.Context, st *queue.TaskStatus) error {
    r.saved = append(r.saved, *st)
    return nil
}

func newTestWorker(c program.Completer, r queue.Queue) *ProgramWorker {
    return &ProgramWorker{
        BaseWorker: BaseWorker{mux: asynq.NewServeMux(), logger: logger.NewNop()},
        completer:  c,
        statuses:   r,
    }
}

func registerTask(t *testing.T, programID string) *asynq.Task {
    t.Helper()
    job, err := json.Marshal(&program.RegistrationJob{ProgramID: programID, Title: "Line 1", UserID: "u1"})
    require.NoError(t, err)
    payload, err := json.Marshal(&queue.Task{ID: programID, Type: queue.TaskTypeProgramRegister, Payload: job})
    require.NoError(t, err)
    return asynq.NewTask(queue.TaskTypeProgramRegister, payload)
}

func TestHandleProgramRegisterSuccess(t *testing.T) {
    c := &fakeCompleter{}
    r := &statusRecorder{}
    w := newTestWorker(c, r)

    require.NoError(t, w.handleProgramRegister(context.Background(), registerTask(t, "P1")))
    require.Len(t, c.jobs, 1)
    assert.Equal(t, "Line 1", c.jobs[0].Title)

    require.Len(t, r.saved, 2)
    assert.Equal(t, queue.StatusRunning, r.saved[0].Status)
    assert.Equal(t, queue.StatusCompleted, r.saved[1].Status)
}

func TestHandleProgramRegisterIndexingFailureSkipsRetry(t *testing.T) {
    c := &fakeCompleter{err: fmt.Errorf("%w: %w", program.ErrIndexingFailed, errors.New("timeout"))}
    r := &statusRecorder{}
    w := newTestWorker(c, r)

    err := w.handleProgramRegister(context.Background(), registerTask(t, "P1"))
    require.Error(t, err)
    assert.ErrorIs(t, err, asynq.SkipRetry)
    assert.Equal(t, queue.StatusFailed, r.saved[len(r.saved)-1].Status)
    assert.Empty(t, c.failed)
}

func TestHandleProgramRegisterDeletedProgramSkipsRetry(t *testing.T) {
    c := &fakeCompleter{err: fmt.Errorf("registration stopped: %w", program.ErrProgramNotFound)}
    w := newTestWorker(c, &statusRecorder{})

    err := w.handleProgramRegister(context.Background(), registerTask(t, "P1"))
    require.Error(t, err)
    assert.ErrorIs(t, err, asynq.SkipRetry)
    assert.Empty(t, c.failed)
}

func TestHandleProgramRegisterRetriesOtherErrors(t *testing.T) {
    c := &fakeCompleter{err: errors.New("database unavailable")}
    w := newTestWorker(c, &statusRecorder{})

    err := w.handleProgramRegister(context.Background(), registerTask(t, "P1"))
    require.Error(t, err)
    assert.NotErrorIs(t, err, asynq.SkipRetry)
    assert.Empty(t, c.failed)
}

func TestHandleProgramRegisterRejectsBadPayload(t *testing.T) {
    c := &fakeCompleter{}
    w := newTestWorker(c, &statusRecorder{})

    err := w.handleProgramRegister(context.Background(), asynq.NewTask(queue.TaskTypeProgramRegister, []byte("{")))
    assert.ErrorIs(t, err, asynq.SkipRetry)

    payload, _ := json.Marshal(&queue.Task{ID: "t1", Payload: json.RawMessage(`{"title":"x"}`)})
    err = w.handleProgramRegister(context.Background(), asynq.NewTask(queue.TaskTypeProgramRegister, payload))
    assert.ErrorIs(t, err, asynq.SkipRetry)
    assert.Empty(t, c.jobs)
}
