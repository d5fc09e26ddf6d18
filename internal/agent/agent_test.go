package agent_test

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"kanbansync/internal/agent"
	"kanbansync/internal/clock"
	"kanbansync/internal/model"
	"kanbansync/internal/offline"
	"kanbansync/internal/protocol"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var start = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

// fakeConn is an in-memory relay connection. Frames pushed with deliver
// are read by the agent; frames the agent writes land in sent.
type fakeConn struct {
	in     chan []byte
	sent   chan protocol.Envelope
	closed chan struct{}
	once   sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		in:     make(chan []byte, 16),
		sent:   make(chan protocol.Envelope, 64),
		closed: make(chan struct{}),
	}
}

func (c *fakeConn) ReadMessage() ([]byte, error) {
	select {
	case raw := <-c.in:
		return raw, nil
	case <-c.closed:
		return nil, io.EOF
	}
}

func (c *fakeConn) WriteMessage(data []byte) error {
	select {
	case <-c.closed:
		return io.ErrClosedPipe
	default:
	}
	env, err := protocol.Decode(data)
	if err != nil {
		return err
	}
	c.sent <- env
	return nil
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) deliver(t *testing.T, env protocol.Envelope) {
	raw, err := protocol.Encode(env)
	require.NoError(t, err)
	c.in <- raw
}

func (c *fakeConn) next(t *testing.T) protocol.Envelope {
	t.Helper()
	select {
	case env := <-c.sent:
		return env
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a frame from the agent")
		return protocol.Envelope{}
	}
}

// nextOf skips frames until one of type typ arrives.
func (c *fakeConn) nextOf(t *testing.T, typ protocol.MessageType) protocol.Envelope {
	t.Helper()
	for {
		if env := c.next(t); env.Type == typ {
			return env
		}
	}
}

func (c *fakeConn) assertQuiet(t *testing.T) {
	t.Helper()
	select {
	case env := <-c.sent:
		t.Fatalf("unexpected frame %s", env.Type)
	case <-time.After(50 * time.Millisecond):
	}
}

var errRefused = errors.New("connection refused")

// fakeDialer fails every dial unless a connection has been queued.
type fakeDialer struct {
	mu    sync.Mutex
	dials int
	conns []*fakeConn
}

func (d *fakeDialer) Dial(context.Context, string) (agent.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if len(d.conns) == 0 {
		return nil, errRefused
	}
	c := d.conns[0]
	d.conns = d.conns[1:]
	return c, nil
}

func (d *fakeDialer) queue(c *fakeConn) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.conns = append(d.conns, c)
}

func (d *fakeDialer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

type harness struct {
	agent  *agent.Agent
	clock  *clock.FakeClock
	dialer *fakeDialer
	store  *offline.Store
}

func quietLogger() *log.Logger {
	logger := log.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newHarness(t *testing.T, role protocol.ClientType, seed *model.Board, tweak func(*agent.Options)) *harness {
	t.Helper()
	store, err := offline.Open(":memory:", false, quietLogger())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	if seed != nil {
		require.NoError(t, store.SaveBoard(context.Background(), *seed))
	}

	h := &harness{clock: clock.Fake(start), dialer: &fakeDialer{}, store: store}
	opts := agent.Options{
		URL:                "ws://relay.test/ws",
		Role:               role,
		Dialer:             h.dialer,
		Local:              store,
		Clock:              h.clock,
		Logger:             quietLogger(),
		Backoff:            agent.Backoff{Base: 3 * time.Second, Max: 30 * time.Second},
		MaxAttempts:        5,
		SyncTimeout:        5 * time.Second,
		StaleTaskRetention: 72 * time.Hour,
	}
	if tweak != nil {
		tweak(&opts)
	}
	h.agent = agent.New(opts)
	t.Cleanup(h.agent.Stop)
	return h
}

// connected starts the agent against a queued connection and drains PING.
func (h *harness) connected(t *testing.T) *fakeConn {
	conn := newFakeConn()
	h.dialer.queue(conn)
	require.NoError(t, h.agent.Start(context.Background()))
	require.Equal(t, agent.StateConnected, h.agent.Status().State)
	require.Equal(t, protocol.TypePing, conn.next(t).Type)
	return conn
}

func TestReconnect_GoesOfflineAfterMaxAttempts(t *testing.T) {
	// Arrange
	h := newHarness(t, protocol.ClientBrowser, nil, nil)

	// Act
	require.NoError(t, h.agent.Start(context.Background()))

	// Assert
	status := h.agent.Status()
	assert.Equal(t, agent.StateReconnecting, status.State)
	assert.Equal(t, 1, status.Attempt)
	assert.Equal(t, "RECONNECTING(1/5)", status.Label())
	assert.Equal(t, 1, h.clock.Pending())

	h.clock.Advance(3 * time.Second)
	assert.Equal(t, 2, h.dialer.count())
	assert.Equal(t, 2, h.agent.Status().Attempt)

	h.clock.Advance(time.Hour)
	assert.Equal(t, agent.StateOffline, h.agent.Status().State)
	assert.Equal(t, 6, h.dialer.count(), "one initial dial and five reconnects")
	assert.Equal(t, 0, h.clock.Pending())

	h.clock.Advance(time.Hour)
	assert.Equal(t, 6, h.dialer.count())
}

func TestRetry_ResetsAttemptCounter(t *testing.T) {
	h := newHarness(t, protocol.ClientBrowser, nil, nil)
	require.NoError(t, h.agent.Start(context.Background()))
	h.clock.Advance(time.Hour)
	require.Equal(t, agent.StateOffline, h.agent.Status().State)

	conn := newFakeConn()
	h.dialer.queue(conn)
	h.agent.Retry()

	status := h.agent.Status()
	assert.Equal(t, agent.StateConnected, status.State)
	assert.Equal(t, 0, status.Attempt)
	assert.Equal(t, protocol.TypePing, conn.next(t).Type)
}

func TestRetry_CancelsScheduledReconnect(t *testing.T) {
	h := newHarness(t, protocol.ClientBrowser, nil, nil)
	require.NoError(t, h.agent.Start(context.Background()))
	require.Equal(t, 1, h.clock.Pending())

	h.dialer.queue(newFakeConn())
	h.agent.Retry()

	assert.Equal(t, agent.StateConnected, h.agent.Status().State)
	assert.Equal(t, 0, h.clock.Pending())
	h.clock.Advance(time.Minute)
	assert.Equal(t, 2, h.dialer.count())
}

func TestConnectionDrop_Reconnects(t *testing.T) {
	h := newHarness(t, protocol.ClientBrowser, nil, nil)
	conn := h.connected(t)

	conn.Close()

	require.Eventually(t, func() bool {
		return h.agent.Status().State == agent.StateReconnecting && h.clock.Pending() == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, h.agent.Status().Attempt)

	next := newFakeConn()
	h.dialer.queue(next)
	h.clock.Advance(3 * time.Second)

	assert.Equal(t, agent.StateConnected, h.agent.Status().State)
	assert.Equal(t, 0, h.agent.Status().Attempt)
	assert.Equal(t, protocol.TypePing, next.next(t).Type)
}

func TestMiniApp_SyncRequestTimesOut(t *testing.T) {
	// Arrange
	h := newHarness(t, protocol.ClientMiniApp, nil, nil)
	conn := h.connected(t)

	// Act
	req := conn.next(t)

	// Assert
	assert.Equal(t, protocol.TypeRequestSync, req.Type)
	assert.NotEmpty(t, req.CorrelationID)
	assert.True(t, h.agent.Status().Syncing)

	h.clock.Advance(4 * time.Second)
	assert.True(t, h.agent.Status().Syncing)
	h.clock.Advance(time.Second)
	assert.False(t, h.agent.Status().Syncing)
	assert.Equal(t, 0, h.clock.Pending())
}

func TestMiniApp_AppliesSnapshotAndConfirmsOnce(t *testing.T) {
	// Arrange
	local := model.Board{Columns: model.DefaultColumns(false), Labels: []string{"mine"}}
	local.AddTask(model.NewTask("Local only", "", "todo", model.PriorityLow, "", "", start))
	h := newHarness(t, protocol.ClientMiniApp, &local, nil)
	conn := h.connected(t)
	req := conn.nextOf(t, protocol.TypeRequestSync)

	remote := model.Board{Columns: model.DefaultColumns(true), Labels: model.DefaultLabels()}
	remote.AddTask(model.NewTask("From browser", "", "review", model.PriorityHigh, "Баг", "", start))
	env, err := protocol.New(protocol.TypeSyncData, protocol.SyncDataFrom(remote), start)
	require.NoError(t, err)
	env = env.WithCorrelation(req.CorrelationID)

	// Act
	conn.deliver(t, env)
	ack := conn.nextOf(t, protocol.TypeSyncConfirmed)
	conn.deliver(t, env)

	// Assert
	assert.Equal(t, req.CorrelationID, ack.CorrelationID)
	conn.assertQuiet(t)

	board := h.agent.Board()
	require.Len(t, board.Tasks, 1)
	assert.Equal(t, "From browser", board.Tasks[0].Title)
	assert.Len(t, board.Columns, 6)
	assert.False(t, h.agent.Status().Syncing)

	persisted, err := h.store.LoadBoard(context.Background())
	require.NoError(t, err)
	assert.Equal(t, board.Tasks[0].ID, persisted.Tasks[0].ID)
}

func TestSnapshotWithoutColumnsIsIgnored(t *testing.T) {
	h := newHarness(t, protocol.ClientMiniApp, nil, nil)
	conn := h.connected(t)
	conn.nextOf(t, protocol.TypeRequestSync)

	raw := []byte(`{"type":"SYNC_DATA","correlationId":"x","payload":{"tasks":[]},"timestamp":"2026-03-10T12:00:00Z"}`)
	conn.in <- raw

	conn.assertQuiet(t)
	assert.Len(t, h.agent.Board().Columns, 3)
}

func TestBrowser_AnswersSyncRequest(t *testing.T) {
	seed := model.Board{Columns: model.DefaultColumns(false), Labels: model.DefaultLabels()}
	seed.AddTask(model.NewTask("Write docs", "", "in-progress", model.PriorityMedium, "", "", start))
	h := newHarness(t, protocol.ClientBrowser, &seed, nil)
	conn := h.connected(t)

	env, err := protocol.New(protocol.TypeSyncRequested, nil, start)
	require.NoError(t, err)
	conn.deliver(t, env.WithCorrelation("corr-1"))

	reply := conn.nextOf(t, protocol.TypeSyncData)
	assert.Equal(t, "corr-1", reply.CorrelationID)
	var data protocol.SyncData
	require.NoError(t, reply.DecodePayload(&data))
	require.True(t, data.Complete())
	assert.Equal(t, seed.Tasks[0].ID, data.Tasks[0].ID)
}

func TestBrowser_SyncNowWaitsForConfirmation(t *testing.T) {
	h := newHarness(t, protocol.ClientBrowser, nil, nil)
	conn := h.connected(t)

	require.NoError(t, h.agent.SyncNow())
	pushed := conn.nextOf(t, protocol.TypeSyncData)
	require.True(t, h.agent.Status().Syncing)

	ack, err := protocol.New(protocol.TypeSyncConfirmed, nil, start)
	require.NoError(t, err)
	conn.deliver(t, ack.WithCorrelation(pushed.CorrelationID))

	require.Eventually(t, func() bool { return !h.agent.Status().Syncing }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, h.clock.Pending())
}

func TestSyncNow_NotConnected(t *testing.T) {
	h := newHarness(t, protocol.ClientMiniApp, nil, func(o *agent.Options) { o.MaxAttempts = 0 })
	require.NoError(t, h.agent.Start(context.Background()))
	require.Equal(t, agent.StateOffline, h.agent.Status().State)

	assert.ErrorIs(t, h.agent.SyncNow(), agent.ErrNotConnected)
	assert.False(t, h.agent.Status().Syncing)
}

func TestMutations_EmitEventsAndPersist(t *testing.T) {
	// Arrange
	h := newHarness(t, protocol.ClientBrowser, nil, nil)
	conn := h.connected(t)

	// Act
	parent, err := h.agent.CreateTask(agent.TaskDraft{Title: "Parent", Status: "todo", Priority: model.PriorityHigh})
	require.NoError(t, err)
	child, err := h.agent.CreateTask(agent.TaskDraft{Title: "Child", Status: "todo", ParentID: parent.ID})
	require.NoError(t, err)

	// Assert
	created := conn.next(t)
	assert.Equal(t, protocol.TypeTaskCreated, created.Type)
	var change protocol.TaskChange
	require.NoError(t, created.DecodePayload(&change))
	assert.Equal(t, parent.ID, change.TaskID)
	assert.Equal(t, model.PriorityMedium, child.Priority)
	conn.next(t)

	require.NoError(t, h.agent.MoveTask(parent.ID, "done", nil))
	moved := conn.next(t)
	require.Equal(t, protocol.TypeTaskMoved, moved.Type)
	require.NoError(t, moved.DecodePayload(&change))
	assert.Equal(t, "todo", change.FromStatus)
	assert.Equal(t, "done", change.ToStatus)
	task, _ := h.agent.Board().Task(parent.ID)
	require.NotNil(t, task.MovedToDoneAt)

	require.NoError(t, h.agent.DeleteTask(parent.ID))
	assert.Equal(t, protocol.TypeTaskDeleted, conn.next(t).Type)
	assert.Empty(t, h.agent.Board().Tasks, "subtasks go with their parent")

	persisted, err := h.store.LoadBoard(context.Background())
	require.NoError(t, err)
	assert.Empty(t, persisted.Tasks)
}

func TestMutations_Rejected(t *testing.T) {
	h := newHarness(t, protocol.ClientBrowser, nil, nil)
	conn := h.connected(t)
	parent, err := h.agent.CreateTask(agent.TaskDraft{Title: "Parent", Status: "todo"})
	require.NoError(t, err)
	child, err := h.agent.CreateTask(agent.TaskDraft{Title: "Child", Status: "todo", ParentID: parent.ID})
	require.NoError(t, err)
	conn.next(t)
	conn.next(t)

	_, err = h.agent.CreateTask(agent.TaskDraft{Title: "x", Status: "nowhere"})
	assert.ErrorIs(t, err, model.ErrColumnNotFound)
	assert.ErrorIs(t, h.agent.MoveTask(parent.ID, "todo", &child.ID), model.ErrParentCycle)
	assert.ErrorIs(t, h.agent.UpdateTask(model.Task{ID: "ghost", Status: "todo"}), model.ErrTaskNotFound)
	assert.ErrorIs(t, h.agent.DeleteLabel("ghost"), model.ErrLabelNotFound)
	assert.ErrorIs(t, h.agent.DeleteColumn("ghost"), model.ErrColumnNotFound)

	conn.assertQuiet(t)
	assert.Len(t, h.agent.Board().Tasks, 2)
}

func TestColumnMutations_EmitUnsolicitedSnapshot(t *testing.T) {
	h := newHarness(t, protocol.ClientBrowser, nil, nil)
	conn := h.connected(t)
	_, err := h.agent.CreateTask(agent.TaskDraft{Title: "Stuck", Status: "in-progress"})
	require.NoError(t, err)
	conn.next(t)

	col, err := h.agent.AddColumn("In Review")
	require.NoError(t, err)
	assert.Equal(t, "in-review", col.Status)
	snap := conn.next(t)
	assert.Equal(t, protocol.TypeSyncData, snap.Type)
	assert.Empty(t, snap.CorrelationID)

	require.NoError(t, h.agent.DeleteColumn("in-progress"))
	snap = conn.next(t)
	var data protocol.SyncData
	require.NoError(t, snap.DecodePayload(&data))
	assert.Len(t, data.Columns, 3)
	assert.Equal(t, "todo", data.Tasks[0].Status)

	_, err = h.agent.AddColumn("in review")
	assert.ErrorIs(t, err, model.ErrDuplicateStatus)
}

func TestMutationsWhileOffline_PersistWithoutEmitting(t *testing.T) {
	h := newHarness(t, protocol.ClientBrowser, nil, func(o *agent.Options) { o.MaxAttempts = 0 })
	require.NoError(t, h.agent.Start(context.Background()))
	require.Equal(t, agent.StateOffline, h.agent.Status().State)

	task, err := h.agent.CreateTask(agent.TaskDraft{Title: "Offline", Status: "todo"})
	require.NoError(t, err)
	require.NoError(t, h.agent.AddLabel("Ночь"))

	persisted, err := h.store.LoadBoard(context.Background())
	require.NoError(t, err)
	_, ok := persisted.Task(task.ID)
	assert.True(t, ok)
	assert.Contains(t, persisted.Labels, "Ночь")
}

func TestMiniApp_AppliesPeerTaskChanges(t *testing.T) {
	h := newHarness(t, protocol.ClientMiniApp, nil, nil)
	conn := h.connected(t)
	conn.nextOf(t, protocol.TypeRequestSync)

	task := model.NewTask("Peer task", "", "todo", model.PriorityLow, "", "", start)
	created, err := protocol.New(protocol.TypeTaskCreated, protocol.TaskChange{TaskID: task.ID, Task: &task}, start)
	require.NoError(t, err)

	conn.deliver(t, created)
	conn.deliver(t, created)
	require.Eventually(t, func() bool { return len(h.agent.Board().Tasks) == 1 }, time.Second, 5*time.Millisecond)

	ghost := model.NewTask("Ghost", "", "todo", model.PriorityLow, "", "", start)
	updated, err := protocol.New(protocol.TypeTaskUpdated, protocol.TaskChange{TaskID: ghost.ID, Task: &ghost}, start)
	require.NoError(t, err)
	conn.deliver(t, updated)

	moved, err := protocol.New(protocol.TypeTaskMoved, protocol.TaskChange{TaskID: task.ID, FromStatus: "todo", ToStatus: "done"}, start)
	require.NoError(t, err)
	conn.deliver(t, moved)
	require.Eventually(t, func() bool {
		got, ok := h.agent.Board().Task(task.ID)
		return ok && got.Status == "done"
	}, time.Second, 5*time.Millisecond)
	assert.Len(t, h.agent.Board().Tasks, 1)

	deleted, err := protocol.New(protocol.TypeTaskDeleted, protocol.TaskChange{TaskID: task.ID}, start)
	require.NoError(t, err)
	conn.deliver(t, deleted)
	require.Eventually(t, func() bool { return len(h.agent.Board().Tasks) == 0 }, time.Second, 5*time.Millisecond)
}

func TestBrowser_IgnoresPeerTaskChanges(t *testing.T) {
	h := newHarness(t, protocol.ClientBrowser, nil, nil)
	conn := h.connected(t)

	task := model.NewTask("Peer task", "", "todo", model.PriorityLow, "", "", start)
	created, err := protocol.New(protocol.TypeTaskCreated, protocol.TaskChange{TaskID: task.ID, Task: &task}, start)
	require.NoError(t, err)
	conn.deliver(t, created)
	// a status request afterwards proves the event was processed
	req, err := protocol.New(protocol.TypeRequestStatus, nil, start)
	require.NoError(t, err)
	conn.deliver(t, req.WithChat(1))
	conn.nextOf(t, protocol.TypeStatusResponse)

	assert.Empty(t, h.agent.Board().Tasks)
}

func TestStatusRequests(t *testing.T) {
	// Arrange
	seed := model.Board{Columns: model.DefaultColumns(false), Labels: model.DefaultLabels()}
	parent := model.NewTask("Parent", "", "todo", model.PriorityHigh, "Фича", "", start)
	seed.AddTask(parent)
	seed.AddTask(model.NewTask("Child", "", "todo", model.PriorityLow, "", parent.ID, start))
	h := newHarness(t, protocol.ClientBrowser, &seed, nil)
	conn := h.connected(t)

	// Act
	req, err := protocol.New(protocol.TypeRequestStatus, nil, start)
	require.NoError(t, err)
	conn.deliver(t, req.WithChat(-100).WithCorrelation("s-1"))
	resp := conn.nextOf(t, protocol.TypeStatusResponse)

	// Assert
	assert.Equal(t, int64(-100), resp.ChatID)
	assert.Equal(t, "s-1", resp.CorrelationID)
	var status protocol.StatusResponse
	require.NoError(t, resp.DecodePayload(&status))
	assert.Equal(t, 1, status.Columns[0].TaskCount)

	conn.in <- []byte(`{"type":"REQUEST_COLUMN_STATUS","chatId":7,"columnStatus":"todo","timestamp":1700000000}`)
	detail := conn.nextOf(t, protocol.TypeColumnStatusResponse)
	assert.Equal(t, int64(7), detail.ChatID)
	var col protocol.ColumnStatusResponse
	require.NoError(t, detail.DecodePayload(&col))
	require.Len(t, col.Column.Tasks, 1)
	assert.Equal(t, "Parent", col.Column.Tasks[0].Title)
}

func TestUnknownAndMalformedFramesAreIgnored(t *testing.T) {
	h := newHarness(t, protocol.ClientBrowser, nil, nil)
	conn := h.connected(t)

	conn.in <- []byte(`not json`)
	conn.in <- []byte(`{"type":"TASK_ARCHIVED","timestamp":"2026-03-10T12:00:00Z"}`)

	conn.assertQuiet(t)
	assert.Equal(t, agent.StateConnected, h.agent.Status().State)
}

func TestConnectionEstablished_RecordsIdentity(t *testing.T) {
	h := newHarness(t, protocol.ClientMiniApp, nil, nil)
	conn := h.connected(t)

	env, err := protocol.New(protocol.TypeConnectionEstablished, protocol.ConnectionEstablished{
		ClientID: "client-1", ClientType: protocol.ClientMiniApp,
	}, start)
	require.NoError(t, err)
	conn.deliver(t, env)

	require.Eventually(t, func() bool { return h.agent.Status().ClientID == "client-1" }, time.Second, 5*time.Millisecond)
	assert.Equal(t, protocol.ClientMiniApp, h.agent.Status().ClientType)
}

func TestSweep_RemovesStaleDoneTasks(t *testing.T) {
	// Arrange
	seed := model.Board{Columns: model.DefaultColumns(false)}
	old := model.NewTask("Old", "", "done", model.PriorityLow, "", "", start.Add(-96*time.Hour))
	recent := model.NewTask("Recent", "", "done", model.PriorityLow, "", "", start.Add(-48*time.Hour))
	open := model.NewTask("Open", "", "todo", model.PriorityLow, "", "", start.Add(-96*time.Hour))
	seed.AddTask(old)
	seed.AddTask(recent)
	seed.AddTask(open)
	h := newHarness(t, protocol.ClientBrowser, &seed, func(o *agent.Options) {
		o.SweepInterval = 5 * time.Minute
	})

	// Act
	h.connected(t)

	// Assert
	board := h.agent.Board()
	assert.Len(t, board.Tasks, 2)
	_, ok := board.Task(old.ID)
	assert.False(t, ok)

	h.clock.Advance(25 * time.Hour)
	board = h.agent.Board()
	assert.Len(t, board.Tasks, 1)
	_, ok = board.Task(open.ID)
	assert.True(t, ok)
}

func TestRenderer_ReceivesViews(t *testing.T) {
	var mu sync.Mutex
	var views []agent.View
	h := newHarness(t, protocol.ClientBrowser, nil, func(o *agent.Options) {
		o.OnChange = func(v agent.View) {
			mu.Lock()
			defer mu.Unlock()
			views = append(views, v)
		}
	})

	h.connected(t)
	_, err := h.agent.CreateTask(agent.TaskDraft{Title: "Shown", Status: "todo"})
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, views)
	last := views[len(views)-1]
	assert.Equal(t, agent.StateConnected, last.Status.State)
	assert.Len(t, last.Board.Tasks, 1)
}

func TestSweep_ReplicasDisagreeUntilNextResync(t *testing.T) {
	// Arrange: both replicas hold the same done task, finished two days ago
	seed := model.Board{Columns: model.DefaultColumns(false)}
	finished := model.NewTask("Finished", "", "done", model.PriorityLow, "", "", start.Add(-48*time.Hour))
	seed.AddTask(finished)

	browser := newHarness(t, protocol.ClientBrowser, &seed, func(o *agent.Options) {
		o.SweepInterval = 5 * time.Minute
	})
	miniApp := newHarness(t, protocol.ClientMiniApp, &seed, nil)
	browserConn := browser.connected(t)
	miniAppConn := miniApp.connected(t)
	miniAppConn.nextOf(t, protocol.TypeRequestSync)

	// Act: only the browser's clock passes the retention window
	browser.clock.Advance(25 * time.Hour)

	// Assert: the replicas now disagree
	_, ok := browser.agent.Board().Task(finished.ID)
	assert.False(t, ok)
	_, ok = miniApp.agent.Board().Task(finished.ID)
	assert.True(t, ok, "the sweep is not broadcast to peers")
	browserConn.assertQuiet(t)

	// Act: the next full resync carries the swept board across
	require.NoError(t, browser.agent.SyncNow())
	snapshot := browserConn.nextOf(t, protocol.TypeSyncData)
	miniAppConn.deliver(t, snapshot)

	// Assert
	confirm := miniAppConn.nextOf(t, protocol.TypeSyncConfirmed)
	assert.Equal(t, snapshot.CorrelationID, confirm.CorrelationID)
	_, ok = miniApp.agent.Board().Task(finished.ID)
	assert.False(t, ok)
	persisted, err := miniApp.store.LoadBoard(context.Background())
	require.NoError(t, err)
	assert.Empty(t, persisted.Tasks)
}
