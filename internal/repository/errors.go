package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"rifas/internal/model"

	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
)

// MySQL 锁相关错误码
const (
	mysqlErrLockWaitTimeout = 1205
	mysqlErrDeadlock        = 1213
	mysqlErrLockNowait      = 3572
	mysqlErrDupEntry        = 1062
)

// TranslateError 把锁等待超时、死锁等数据库错误统一转换为可重试的 model.ErrBusy
func TranslateError(err error) error {
	if err == nil || errors.Is(err, model.ErrBusy) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", model.ErrBusy, err)
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case mysqlErrLockWaitTimeout, mysqlErrDeadlock, mysqlErrLockNowait:
			return fmt.Errorf("%w: %w", model.ErrBusy, err)
		}
	}

	// sqlite（测试环境）
	msg := err.Error()
	if strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY") {
		return fmt.Errorf("%w: %w", model.ErrBusy, err)
	}
	return err
}

// isDuplicateKey 唯一索引冲突（MySQL 1062，sqlite UNIQUE constraint）
func isDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == mysqlErrDupEntry
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
