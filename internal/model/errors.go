package model

import (
	"errors"
	"fmt"
)

// ============================================================================
// 领域错误
// ============================================================================
//
// 调用方用 errors.Is 判断类别；具体失败原因通过 fmt.Errorf("%w: ...") 附加，
// 购票端需要区分“预订已过期”和“金额超过余额”来决定重新预订还是调整金额。
// 只有 ErrBusy 可以重试。

var (
	ErrNotFound           = errors.New("not found")
	ErrNotAvailable       = errors.New("ticket not available")
	ErrReservationInvalid = errors.New("reservation invalid")
	ErrConflict           = errors.New("state conflict")
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrAlreadySettled     = errors.New("sale already settled")
	ErrNoTickets          = errors.New("no tickets")
	ErrBusy               = errors.New("resource busy, retry later")
	ErrInvalidInput       = errors.New("invalid input")
)

// ErrRaffleNotActive 抽奖不在 ACTIVE 状态，属于状态冲突
var ErrRaffleNotActive = fmt.Errorf("%w: raffle not active", ErrConflict)

// IsRetryable 是否为可重试错误（锁等待超时、死锁）
func IsRetryable(err error) bool {
	return errors.Is(err, ErrBusy)
}
