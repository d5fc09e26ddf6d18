package agent

import (
	"context"
	"time"

	"kanbansync/internal/model"
	"kanbansync/internal/repository"

	log "github.com/sirupsen/logrus"
)

const remoteRetryDelay = 5 * time.Second

// remoteSave is one board waiting for the document store. seq orders the
// saves queued by this agent.
type remoteSave struct {
	board model.Board
	seq   uint64
}

// queueRemote replaces any unsent board with b. Callers hold a.mu.
func (a *Agent) queueRemote(b model.Board) {
	if a.remoteQ == nil {
		return
	}
	a.queuedSeq++
	a.offerRemote(remoteSave{board: b, seq: a.queuedSeq})
}

func (a *Agent) offerRemote(s remoteSave) {
	select {
	case <-a.remoteQ:
	default:
	}
	a.remoteQ <- s
}

// remoteWriter saves the latest queued board; intermediate boards queued
// while a save is in flight are skipped. A failed save is retried unless a
// newer board has been queued in the meantime.
func (a *Agent) remoteWriter(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case s := <-a.remoteQ:
			rev, err := a.remote.Save(ctx, s.board, a.writerID)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				a.logger.WithError(err).Warn("⚠️  Failed to save board to document store")
				a.clock.AfterFunc(remoteRetryDelay, func() { a.retryRemote(s) })
				continue
			}
			a.mu.Lock()
			if rev.Newer(a.remoteRev) {
				a.remoteRev = rev
			}
			if s.seq > a.savedSeq {
				a.savedSeq = s.seq
			}
			a.mu.Unlock()
		}
	}
}

func (a *Agent) retryRemote(s remoteSave) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stopped || s.seq != a.queuedSeq || s.seq <= a.savedSeq {
		return
	}
	a.offerRemote(s)
}

func (a *Agent) subscribe(ctx context.Context) {
	if err := a.remote.Subscribe(ctx, a.applyRemote); err != nil && ctx.Err() == nil {
		a.logger.WithError(err).Error("❌ Document store subscription ended")
	}
}

// applyRemote overwrites tasks and columns with a document written by
// another device. Echoes of our own saves, revisions we have already seen
// and changes that arrive while local edits are still unsaved are skipped:
// the pending save supersedes them.
func (a *Agent) applyRemote(snap repository.Snapshot) {
	if len(snap.Columns) == 0 {
		return
	}
	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		return
	}
	if snap.Revision.Writer == a.writerID || !snap.Revision.Newer(a.remoteRev) {
		a.mu.Unlock()
		return
	}
	a.remoteRev = snap.Revision
	if a.savedSeq < a.queuedSeq {
		a.mu.Unlock()
		a.logger.WithField("stamp", snap.Revision.Stamp).Debug("Remote change superseded by unsaved local edits")
		return
	}
	next := snap.Board.Clone()
	if snap.Labels == nil {
		next.Labels = a.board.Labels
	}
	a.board = next
	a.persistLocked(false)
	a.mu.Unlock()

	a.logger.WithFields(log.Fields{"tasks": len(next.Tasks), "stamp": snap.Revision.Stamp}).Debug("🔄 Board updated from document store")
	a.render()
}
