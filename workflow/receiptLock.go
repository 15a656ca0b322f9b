package workflow

import (
	"context"
	"fmt"

	"bitbucket.org/mmdatafocus/rfid_backend/utils"
	"gorm.io/gorm"
)

// lockWaitSeconds bounds how long a scan queues behind another scan of the same key.
const lockWaitSeconds = 30

// AcquireReceiptLock serializes ledger mutation per purchase order across instances
// using MySQL advisory locks.
// NOTE: GET_LOCK is connection-scoped, so conn must be the pinned connection that
// will run the scan transaction, and the lock must be released after commit/rollback.
func AcquireReceiptLock(conn *gorm.DB, poNumber string) error {
	return acquireUserLock(conn, utils.LockName("receipt", poNumber), "purchase order "+poNumber)
}

func ReleaseReceiptLock(conn *gorm.DB, poNumber string) {
	releaseUserLock(conn, utils.LockName("receipt", poNumber))
}

// AcquirePresenceLock serializes the read-decide-write of one tag's presence state.
// Always take it after the receipt lock when both are needed.
func AcquirePresenceLock(conn *gorm.DB, tagCode string) error {
	return acquireUserLock(conn, utils.LockName("presence", tagCode), "tag "+tagCode)
}

func ReleasePresenceLock(conn *gorm.DB, tagCode string) {
	releaseUserLock(conn, utils.LockName("presence", tagCode))
}

func acquireUserLock(conn *gorm.DB, lockName, what string) error {
	var ok *int
	if err := conn.Raw("SELECT GET_LOCK(?, ?)", lockName, lockWaitSeconds).Scan(&ok).Error; err != nil {
		return err
	}
	if ok == nil || *ok != 1 {
		return fmt.Errorf("could not acquire lock for %s: %w", what, utils.ErrConflict)
	}
	return nil
}

// releaseUserLock ignores request cancellation: a lock left behind would stay
// held by the pooled connection after it is returned.
func releaseUserLock(conn *gorm.DB, lockName string) {
	ctx := conn.Statement.Context
	if ctx == nil {
		ctx = context.Background()
	}
	var _ok *int
	_ = conn.WithContext(context.WithoutCancel(ctx)).Raw("SELECT RELEASE_LOCK(?)", lockName).Scan(&_ok).Error
}

// withPinnedConn runs fc on a single pooled connection so the advisory locks
// and the transaction that depends on them share one MySQL session.
func withPinnedConn(ctx context.Context, db *gorm.DB, fc func(conn *gorm.DB) error) error {
	return db.WithContext(ctx).Connection(func(conn *gorm.DB) error {
		return fc(conn.Session(&gorm.Session{NewDB: true}))
	})
}
