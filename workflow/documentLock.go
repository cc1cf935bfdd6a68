package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/conrover/DocFlow/config"
	"gorm.io/gorm"
)

// Per-document serialization. Processing, approval and reprocessing of the
// same document must not interleave; documents of different users (or even
// different documents of the same user) proceed in parallel.
//
// Redis is the primary lock provider. When Redis is unavailable the MySQL
// advisory lock is used instead. GET_LOCK is connection-scoped, so the
// fallback must run on the same *gorm.DB session that does the transaction.

const documentLockTTL = 30 * time.Second

type documentLock struct {
	redis *redislock.Lock
	tx    *gorm.DB
	name  string
}

func acquireDocumentLock(ctx context.Context, tx *gorm.DB, documentId string) (*documentLock, error) {
	name := fmt.Sprintf("document:%s", documentId)

	if locker := config.GetRedisLock(); locker != nil {
		lock, err := locker.Obtain(ctx, name, documentLockTTL, &redislock.Options{
			RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(200*time.Millisecond), 50),
		})
		if err == nil {
			return &documentLock{redis: lock}, nil
		}
		if err != redislock.ErrNotObtained {
			// Redis down; fall through to the MySQL advisory lock.
		} else {
			return nil, fmt.Errorf("could not acquire lock for document_id=%s", documentId)
		}
	}

	var ok int
	if err := tx.Raw("SELECT GET_LOCK(?, 30)", name).Scan(&ok).Error; err != nil {
		return nil, err
	}
	if ok != 1 {
		return nil, fmt.Errorf("could not acquire lock for document_id=%s", documentId)
	}
	return &documentLock{tx: tx, name: name}, nil
}

func (l *documentLock) release(ctx context.Context) {
	if l == nil {
		return
	}
	if l.redis != nil {
		_ = l.redis.Release(ctx)
		return
	}
	if l.tx != nil {
		var _ok int
		_ = l.tx.Raw("SELECT RELEASE_LOCK(?)", l.name).Scan(&_ok).Error
	}
}
