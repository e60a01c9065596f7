package workflow

import (
	"fmt"

	"gorm.io/gorm"
)

// AcquireOrderPostingLock serializes reconciliation per gateway order across instances using MySQL advisory locks.
// NOTE: GET_LOCK is connection-scoped, so this must be called on the same *gorm.DB that will do the posting transaction.
func AcquireOrderPostingLock(tx *gorm.DB, gatewayOrderId string) error {
	lockName := fmt.Sprintf("order:%s", gatewayOrderId)
	var ok int
	if err := tx.Raw("SELECT GET_LOCK(?, 30)", lockName).Scan(&ok).Error; err != nil {
		return err
	}
	if ok != 1 {
		return fmt.Errorf("could not acquire posting lock for gateway_order_id=%s", gatewayOrderId)
	}
	return nil
}

func ReleaseOrderPostingLock(tx *gorm.DB, gatewayOrderId string) {
	lockName := fmt.Sprintf("order:%s", gatewayOrderId)
	var _ok int
	_ = tx.Raw("SELECT RELEASE_LOCK(?)", lockName).Scan(&_ok).Error
}
