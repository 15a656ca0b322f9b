package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/rfid_backend/models"
	"bitbucket.org/mmdatafocus/rfid_backend/utils"
	"github.com/cenkalti/backoff/v4"
	mysqlDriver "github.com/go-sql-driver/mysql"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	mysqlErrDuplicateKey    = 1062
	mysqlErrLockWaitTimeout = 1205
	mysqlErrDeadlock        = 1213
)

func mysqlErrNumber(err error) uint16 {
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number
	}
	return 0
}

func isDuplicateKeyErr(err error) bool {
	return mysqlErrNumber(err) == mysqlErrDuplicateKey
}

func isDeadlockErr(err error) bool {
	return mysqlErrNumber(err) == mysqlErrDeadlock
}

// retryOnDeadlock runs fn again once when MySQL picked it as a deadlock
// victim. The deadlock has already rolled back the transaction, so fn must
// cover the whole unit of work. A deadlock on the second try is ErrConflict.
func retryOnDeadlock(ctx context.Context, fn func() error) error {
	op := func() error {
		err := fn()
		if err == nil || isDeadlockErr(err) {
			return err
		}
		return backoff.Permanent(err)
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(50*time.Millisecond), 1), ctx)
	err := backoff.Retry(op, policy)
	if err != nil && isDeadlockErr(err) && !errors.Is(err, utils.ErrConflict) {
		return fmt.Errorf("%w: %w", utils.ErrConflict, err)
	}
	return err
}

// RecordIfNew inserts the (tag, item, purchase order) triple. The unique index
// decides races: exactly one concurrent caller gets isNew=true. Later callers
// refresh the bookkeeping quantity (last write wins) and get isNew=false.
//
// A lock wait timeout on the insert only rolls back the statement, so it is
// retried once here. A deadlock has already rolled back the whole transaction;
// it is returned as ErrConflict with the driver error kept in the chain so
// retryOnDeadlock can rerun the scan.
func RecordIfNew(tx *gorm.DB, tagCode, itemNumber, poNumber string, quantity decimal.Decimal) (bool, error) {
	var isNew bool
	op := func() error {
		rec := models.IdempotencyRecord{
			TagCode:             tagCode,
			ItemNumber:          itemNumber,
			PurchaseOrderNumber: poNumber,
			Quantity:            quantity,
		}
		err := tx.Create(&rec).Error
		if err == nil {
			isNew = true
			return nil
		}
		if isDuplicateKeyErr(err) {
			isNew = false
			return backoff.Permanent(refreshIdempotencyQuantity(tx, tagCode, itemNumber, poNumber, quantity))
		}
		if mysqlErrNumber(err) == mysqlErrLockWaitTimeout {
			return fmt.Errorf("idempotency insert for tag %q: %w", tagCode, utils.ErrConflict)
		}
		if mysqlErrNumber(err) == mysqlErrDeadlock {
			return backoff.Permanent(fmt.Errorf("idempotency insert for tag %q: %w: %w", tagCode, utils.ErrConflict, err))
		}
		return backoff.Permanent(err)
	}
	policy := backoff.WithMaxRetries(backoff.NewConstantBackOff(50*time.Millisecond), 1)
	if err := backoff.Retry(op, policy); err != nil {
		return false, err
	}
	return isNew, nil
}

func refreshIdempotencyQuantity(tx *gorm.DB, tagCode, itemNumber, poNumber string, quantity decimal.Decimal) error {
	return tx.Model(&models.IdempotencyRecord{}).
		Where("tag_code = ? AND item_number = ? AND purchase_order_number = ?", tagCode, itemNumber, poNumber).
		Update("quantity", quantity).Error
}
