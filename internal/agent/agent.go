// Package agent is the client side of board synchronization. An Agent owns
// the local board, persists every change offline first, keeps one relay
// connection alive with bounded reconnects, and exchanges task events and
// full snapshots with its peers.
package agent

import (
	"context"
	"errors"
	"sync"
	"time"

	"kanbansync/internal/clock"
	"kanbansync/internal/model"
	"kanbansync/internal/protocol"
	"kanbansync/internal/repository"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

var (
	ErrNotConnected   = errors.New("not connected to relay")
	ErrAlreadyStarted = errors.New("agent already started")
)

const (
	defaultSyncTimeout = 5 * time.Second
	confirmedMemory    = 128
)

// LocalStore is the offline replica. Writes must be durable on return.
type LocalStore interface {
	LoadBoard(ctx context.Context) (model.Board, error)
	SaveBoard(ctx context.Context, b model.Board) error
}

type Options struct {
	URL    string
	Role   protocol.ClientType
	Dialer Dialer
	Local  LocalStore
	// Remote is optional; nil disables the cloud document replica.
	Remote repository.DocumentStore
	Clock  clock.Clock
	Logger log.FieldLogger

	Backoff     Backoff
	MaxAttempts int
	SyncTimeout time.Duration

	StaleTaskRetention time.Duration
	// SweepInterval of zero runs the stale sweep only at start.
	SweepInterval time.Duration

	// ApplyPeerChanges applies TASK_* events from peers. Always on for the
	// Mini App role.
	ApplyPeerChanges bool
	// Authoritative answers SYNC_REQUESTED with a snapshot. Always on for
	// the browser role.
	Authoritative bool

	// OnChange receives a fresh view after every state or board change.
	OnChange func(View)
}

type Agent struct {
	url           string
	role          protocol.ClientType
	dialer        Dialer
	local         LocalStore
	remote        repository.DocumentStore
	clock         clock.Clock
	logger        log.FieldLogger
	backoff       Backoff
	maxAttempts   int
	syncTimeout   time.Duration
	retention     time.Duration
	sweepInterval time.Duration
	applyPeer     bool
	authoritative bool
	onChange      func(View)

	mu         sync.Mutex
	board      model.Board
	state      State
	attempt    int
	gen        uint64
	conn       Conn
	reconnect  *clock.Timer
	sweepTimer *clock.Timer
	pending    map[string]*clock.Timer
	confirmed  map[string]bool
	confirmLog []string
	clientID   string
	assigned   protocol.ClientType
	started    bool
	stopped    bool
	ctx        context.Context
	cancel     context.CancelFunc

	writerID  string
	remoteQ   chan remoteSave
	remoteRev repository.Revision
	queuedSeq uint64
	savedSeq  uint64
}

func New(opts Options) *Agent {
	a := &Agent{
		url:           opts.URL,
		role:          opts.Role,
		dialer:        opts.Dialer,
		local:         opts.Local,
		remote:        opts.Remote,
		clock:         opts.Clock,
		logger:        opts.Logger,
		backoff:       opts.Backoff,
		maxAttempts:   opts.MaxAttempts,
		syncTimeout:   opts.SyncTimeout,
		retention:     opts.StaleTaskRetention,
		sweepInterval: opts.SweepInterval,
		applyPeer:     opts.ApplyPeerChanges || opts.Role == protocol.ClientMiniApp,
		authoritative: opts.Authoritative || opts.Role == protocol.ClientBrowser,
		onChange:      opts.OnChange,
		pending:       map[string]*clock.Timer{},
		confirmed:     map[string]bool{},
		writerID:      uuid.NewString(),
		ctx:           context.Background(),
	}
	if a.role == "" {
		a.role = protocol.ClientBrowser
		a.authoritative = true
	}
	if a.dialer == nil {
		a.dialer = WebsocketDialer{ClientType: a.role}
	}
	if a.clock == nil {
		a.clock = clock.Real()
	}
	if a.backoff.Clock == nil {
		a.backoff.Clock = a.clock
	}
	if a.logger == nil {
		a.logger = log.StandardLogger()
	}
	if a.syncTimeout <= 0 {
		a.syncTimeout = defaultSyncTimeout
	}
	if a.remote != nil {
		a.remoteQ = make(chan remoteSave, 1)
	}
	a.logger = a.logger.WithField("role", a.role)
	return a
}

// Start loads the board, runs the stale sweep and makes the first
// connection attempt. It returns once that attempt has finished; later
// reconnects run on clock timers until ctx is cancelled or Stop is called.
func (a *Agent) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.started {
		a.mu.Unlock()
		return ErrAlreadyStarted
	}
	a.started = true
	a.ctx, a.cancel = context.WithCancel(ctx)
	a.mu.Unlock()

	board, seed, err := a.loadInitial(ctx)
	if err != nil {
		return err
	}

	a.mu.Lock()
	a.board = board
	removed := a.board.SweepStale(a.clock.Now(), a.retention)
	if len(removed) > 0 {
		a.logger.WithField("removed", len(removed)).Info("🧹 Removed stale done tasks")
	}
	if len(removed) > 0 || seed {
		a.persistLocked(true)
	}
	a.mu.Unlock()

	if a.remote != nil {
		go a.remoteWriter(a.ctx)
		go a.subscribe(a.ctx)
	}
	go func() {
		<-a.ctx.Done()
		a.Stop()
	}()

	a.scheduleSweep()
	a.render()
	a.connect()
	return nil
}

// loadInitial prefers the remote document, falling back to the offline
// store. seed reports that the remote store has no board yet and should be
// given the local one.
func (a *Agent) loadInitial(ctx context.Context) (board model.Board, seed bool, err error) {
	local, err := a.local.LoadBoard(ctx)
	if err != nil {
		return model.Board{}, false, err
	}
	if a.remote == nil {
		return local, false, nil
	}

	snap, err := a.remote.Load(ctx)
	if err != nil || len(snap.Columns) == 0 {
		if err != nil && !errors.Is(err, repository.ErrDocumentNotFound) {
			a.logger.WithError(err).Warn("⚠️  Using offline store as fallback")
			return local, false, nil
		}
		return local, true, nil
	}
	a.mu.Lock()
	a.remoteRev = snap.Revision
	a.mu.Unlock()

	remote := snap.Board
	if remote.Labels == nil {
		remote.Labels = local.Labels
	}
	if err := a.local.SaveBoard(ctx, remote); err != nil {
		a.logger.WithError(err).Error("❌ Failed to persist board offline")
	}
	a.logger.WithFields(log.Fields{"tasks": len(remote.Tasks), "stamp": snap.Revision.Stamp}).Info("✅ Board loaded from document store")
	return remote, false, nil
}

// Stop closes the connection and cancels every timer. The agent cannot be
// restarted.
func (a *Agent) Stop() {
	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		return
	}
	a.stopped = true
	a.gen++
	a.reconnect.Stop()
	a.reconnect = nil
	a.sweepTimer.Stop()
	a.sweepTimer = nil
	for corr, t := range a.pending {
		t.Stop()
		delete(a.pending, corr)
	}
	if a.conn != nil {
		a.conn.Close()
		a.conn = nil
	}
	a.state = StateDisconnected
	cancel := a.cancel
	a.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	a.render()
}

// Retry starts a fresh connection attempt from any state, with the
// attempt counter reset and any scheduled reconnect cancelled.
func (a *Agent) Retry() {
	a.mu.Lock()
	if !a.started || a.stopped {
		a.mu.Unlock()
		return
	}
	a.attempt = 0
	a.reconnect.Stop()
	a.reconnect = nil
	a.mu.Unlock()

	a.logger.Info("🔁 Manual reconnect")
	a.connect()
}

// SyncNow starts a full resync: the authoritative side pushes its
// snapshot, other roles ask for one.
func (a *Agent) SyncNow() error {
	if a.authoritative {
		return a.pushSnapshot()
	}
	return a.requestSync()
}

// Board returns a copy of the current board.
func (a *Agent) Board() model.Board {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.board.Clone()
}

func (a *Agent) Status() Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.statusLocked()
}

func (a *Agent) View() View {
	a.mu.Lock()
	defer a.mu.Unlock()
	return View{Board: a.board.Clone(), Status: a.statusLocked()}
}

func (a *Agent) statusLocked() Status {
	return Status{
		State:       a.state,
		Attempt:     a.attempt,
		MaxAttempts: a.maxAttempts,
		Syncing:     len(a.pending) > 0,
		ClientID:    a.clientID,
		ClientType:  a.assigned,
	}
}

func (a *Agent) render() {
	if a.onChange == nil {
		return
	}
	a.onChange(a.View())
}

// persistLocked writes the board to the offline store and, when toRemote
// is set, queues it for the document store.
func (a *Agent) persistLocked(toRemote bool) {
	snapshot := a.board.Clone()
	if err := a.local.SaveBoard(a.ctx, snapshot); err != nil {
		a.logger.WithError(err).Error("❌ Failed to persist board offline")
	}
	if toRemote {
		a.queueRemote(snapshot)
	}
}

func (a *Agent) send(env protocol.Envelope) error {
	a.mu.Lock()
	conn := a.conn
	connected := a.state == StateConnected
	a.mu.Unlock()
	if !connected || conn == nil {
		return ErrNotConnected
	}

	if env.Timestamp.IsZero() {
		env.Timestamp = a.clock.Now()
	}
	raw, err := protocol.Encode(env)
	if err != nil {
		return err
	}
	return conn.WriteMessage(raw)
}

// emit sends env if connected. Events raised while offline are dropped.
func (a *Agent) emit(env protocol.Envelope) {
	if err := a.send(env); err != nil {
		a.logger.WithError(err).WithField("type", env.Type).Debug("📭 Event not sent")
		return
	}
	a.logger.WithField("type", env.Type).Debug("📤 Sent")
}

func (a *Agent) emitNew(t protocol.MessageType, payload any) {
	env, err := protocol.New(t, payload, a.clock.Now())
	if err != nil {
		a.logger.WithError(err).Error("❌ Failed to build envelope")
		return
	}
	a.emit(env)
}
