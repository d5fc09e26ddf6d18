package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"kanbansync/internal/model"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

const (
	changesChannel      = documentRoot + "changes"
	notificationChatKey = documentRoot + "notificationChatId"
	resubscribeDelay    = time.Second
	maxSaveRetries      = 10
)

// RedisStore keeps the board as one JSON string key, numbers writes with
// a revision counter and announces them on a pub/sub channel.
type RedisStore struct {
	rc     *redis.Client
	logger log.FieldLogger
}

func NewRedisStore(rc *redis.Client, logger log.FieldLogger) *RedisStore {
	return &RedisStore{rc: rc, logger: logger}
}

// Save bumps the revision and writes the board in one optimistic
// transaction, retrying when another writer got there first.
func (s *RedisStore) Save(ctx context.Context, b model.Board, writer string) (Revision, error) {
	var rev Revision
	txf := func(tx *redis.Tx) error {
		last, err := tx.Get(ctx, revisionDoc).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		rev = Revision{Writer: writer, Stamp: last + 1}
		data, err := sonic.ConfigStd.Marshal(Snapshot{Board: normalize(b), Revision: rev})
		if err != nil {
			return fmt.Errorf("encode board: %w", err)
		}
		notice, err := sonic.ConfigStd.Marshal(rev)
		if err != nil {
			return fmt.Errorf("encode revision: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, boardDoc, data, 0)
			pipe.Set(ctx, revisionDoc, rev.Stamp, 0)
			pipe.Publish(ctx, changesChannel, notice)
			return nil
		})
		return err
	}

	for i := 0; i < maxSaveRetries; i++ {
		err := s.rc.Watch(ctx, txf, revisionDoc)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return Revision{}, fmt.Errorf("redis save board: %w", err)
		}
		return rev, nil
	}
	return Revision{}, fmt.Errorf("redis save board: %w", redis.TxFailedErr)
}

func (s *RedisStore) Load(ctx context.Context) (Snapshot, error) {
	data, err := s.rc.Get(ctx, boardDoc).Bytes()
	if errors.Is(err, redis.Nil) {
		return Snapshot{}, ErrDocumentNotFound
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("redis load board: %w", err)
	}
	var snap Snapshot
	if err := sonic.ConfigStd.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("decode board: %w", err)
	}
	return snap, nil
}

// Subscribe blocks, resubscribing when the pub/sub channel closes.
func (s *RedisStore) Subscribe(ctx context.Context, onChange func(Snapshot)) error {
	for {
		sub := s.rc.Subscribe(ctx, changesChannel)
		ch := sub.Channel()
	recv:
		for {
			select {
			case <-ctx.Done():
				sub.Close()
				return nil
			case msg, ok := <-ch:
				if !ok {
					break recv
				}
				var notice Revision
				if err := sonic.ConfigStd.UnmarshalFromString(msg.Payload, &notice); err != nil {
					s.logger.WithError(err).Warn("⚠️  Unreadable change notice")
					continue
				}
				snap, err := s.Load(ctx)
				if err != nil {
					s.logger.WithError(err).WithField("stamp", notice.Stamp).Warn("⚠️  Remote change without a readable board")
					continue
				}
				onChange(snap)
			}
		}
		sub.Close()
		if ctx.Err() != nil {
			return nil
		}
		s.logger.Error("❌ pubsub channel closed, reconnecting")
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(resubscribeDelay):
		}
	}
}

// SaveNotificationTarget persists the relay's notification chat.
func (s *RedisStore) SaveNotificationTarget(ctx context.Context, chatID int64) error {
	return s.rc.Set(ctx, notificationChatKey, strconv.FormatInt(chatID, 10), 0).Err()
}

func (s *RedisStore) LoadNotificationTarget(ctx context.Context) (int64, error) {
	id, err := s.rc.Get(ctx, notificationChatKey).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, ErrDocumentNotFound
	}
	return id, err
}
