package program

import (
    "context"
    "errors"
    "sync"
    "testing"
    "time"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/feichai0017/plc-program-processor/pkg/logger"
    "github.com/feichai0017/plc-program-processor/pkg/queue"
)

type stubCompleter struct {
    mu      sync.Mutex
    release chan struct{}
    panicV  interface{}
    failed  map[string]error
}

func newStubCompleter() *stubCompleter {
    return &stubCompleter{failed: make(map[string]error)}
}

func (c *stubCompleter) CompleteRegistration(_ context.Context, job *RegistrationJob) error {
    if c.release != nil {
        <-c.release
    }
    if c.panicV != nil {
        panic(c.panicV)
    }
    return nil
}

func (c *stubCompleter) FailProgram(_ context.Context, programID string, cause error) {
    c.mu.Lock()
    defer c.mu.Unlock()
    c.failed[programID] = cause
}

func TestLocalDispatcherRecoversPanic(t *testing.T) {
    c := newStubCompleter()
    c.panicV = "nil map write"
    log := logger.NewTestLogger()
    d := NewLocalDispatcher(c, log)

    require.NoError(t, d.Dispatch(context.Background(), &RegistrationJob{ProgramID: "P1"}))
    d.Wait()

    require.Contains(t, c.failed, "P1")
    assert.Contains(t, c.failed["P1"].Error(), "nil map write")
    assert.True(t, log.Contains("ERROR", "Registration panicked"))
}

func TestLocalDispatcherTracksPending(t *testing.T) {
    c := newStubCompleter()
    c.release = make(chan struct{})
    d := NewLocalDispatcher(c, logger.NewNop())
    ctx := context.Background()

    require.NoError(t, d.Dispatch(ctx, &RegistrationJob{ProgramID: "P1"}))
    pending, err := d.Pending(ctx, "P1")
    require.NoError(t, err)
    assert.True(t, pending)

    assert.Error(t, d.Dispatch(ctx, &RegistrationJob{ProgramID: "P1"}))

    close(c.release)
    d.Wait()
    pending, err = d.Pending(ctx, "P1")
    require.NoError(t, err)
    assert.False(t, pending)
}

func TestLocalDispatcherOutlivesRequestContext(t *testing.T) {
    c := newStubCompleter()
    c.release = make(chan struct{})
    d := NewLocalDispatcher(c, logger.NewNop())

    ctx, cancel := context.WithCancel(context.Background())
    require.NoError(t, d.Dispatch(ctx, &RegistrationJob{ProgramID: "P1"}))
    cancel()
    close(c.release)
    d.Wait()
    assert.Empty(t, c.failed)
}

func TestLocalDispatcherShutdown(t *testing.T) {
    c := newStubCompleter()
    c.release = make(chan struct{})
    d := NewLocalDispatcher(c, logger.NewNop())
    require.NoError(t, d.Dispatch(context.Background(), &RegistrationJob{ProgramID: "P1"}))

    ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
    defer cancel()
    assert.Error(t, d.Shutdown(ctx))
    assert.ErrorIs(t, d.Dispatch(context.Background(), &RegistrationJob{ProgramID: "P2"}), ErrDispatcherStopped)

    close(c.release)
    assert.NoError(t, d.Shutdown(context.Background()))
}

type memQueue struct {
    tasks    map[string]*queue.Task
    statuses map[string]*queue.TaskStatus
    err      error
}

func newMemQueue() *memQueue {
    return &memQueue{tasks: map[string]*queue.Task{}, statuses: map[string]*queue.TaskStatus{}}
}

func (q *memQueue) Enqueue(_ context.Context, task *queue.Task) error {
    if q.err != nil {
        return q.err
    }
    q.tasks[task.ID] = task
    return nil
}

func (q *memQueue) GetTaskStatus(_ context.Context, id string) (*queue.TaskStatus, error) {
    st, ok := q.statuses[id]
    if !ok {
        return nil, queue.ErrTaskNotFound
    }
    return st, nil
}

func (q *memQueue) CancelTask(_ context.Context, id string) error {
    delete(q.tasks, id)
    return nil
}

func (q *memQueue) SaveFinalStatus(_ context.Context, st *queue.TaskStatus) error {
    q.statuses[st.TaskID] = st
    return nil
}

func TestQueueDispatcherRoundTrip(t *testing.T) {
    q := newMemQueue()
    d := NewQueueDispatcher(q, logger.NewNop())
    ctx := context.Background()

    job := &RegistrationJob{
        ProgramID: "P01_20240501100000",
        Title:     "Line 1",
        UserID:    "u1",
        LadderZip: JobFile{Name: "ladder.zip", Data: []byte{0x50, 0x4b, 0x03, 0x04}},
        Comment:   JobFile{Name: "comments.csv", Data: []byte("device,comment\n")},
    }
    require.NoError(t, d.Dispatch(ctx, job))

    task := q.tasks[job.ProgramID]
    require.NotNil(t, task)
    assert.Equal(t, queue.TaskTypeProgramRegister, task.Type)

    pending, err := d.Pending(ctx, job.ProgramID)
    require.NoError(t, err)
    assert.True(t, pending)

    decoded, err := DecodeJob(task)
    require.NoError(t, err)
    assert.Equal(t, job.Title, decoded.Title)
    assert.Equal(t, job.LadderZip.Data, decoded.LadderZip.Data)
    assert.Equal(t, job.Comment, decoded.Comment)

    q.statuses[job.ProgramID].Status = queue.StatusCompleted
    pending, err = d.Pending(ctx, job.ProgramID)
    require.NoError(t, err)
    assert.False(t, pending)

    pending, err = d.Pending(ctx, "unknown")
    require.NoError(t, err)
    assert.False(t, pending)
}

func TestQueueDispatcherEnqueueError(t *testing.T) {
    q := newMemQueue()
    q.err = errors.New("redis down")
    d := NewQueueDispatcher(q, logger.NewNop())

    err := d.Dispatch(context.Background(), &RegistrationJob{ProgramID: "P1"})
    assert.ErrorContains(t, err, "redis down")
}

func TestDecodeJobRejectsMissingProgram(t *testing.T) {
    _, err := DecodeJob(&queue.Task{ID: "t1", Payload: []byte(`{"title":"x"}`)})
    assert.Error(t, err)

    _, err = DecodeJob(&queue.Task{ID: "t2", Payload: []byte(`{`)})
    assert.Error(t, err)
}
