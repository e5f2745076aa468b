package identity

import (
	"errors"
	"fmt"
)

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrUnauthorizedCaller = fmt.Errorf("caller is not in the allow-list: %w", ErrUnauthorized)
)

// Фиксированный набор доверенных вызывающих одной привилегированной операции
type AllowList struct {
	name    string
	members map[Identity]struct{}
}

func newAllowList(name string, members ...Identity) AllowList {
	m := make(map[Identity]struct{}, len(members))
	for _, id := range members {
		m[id] = struct{}{}
	}
	return AllowList{name: name, members: m}
}

// списки задаются в коде, во время работы не меняются
var (
	PointsWriters    = newAllowList("points_writers", ServiceMarketplace, ServiceVirtualPlot)
	VoucherRedeemers = newAllowList("voucher_redeemers", ServiceSessionLedger)
	SessionRecorders = newAllowList("session_recorders", ServiceGameEngine)
	Depositors       = newAllowList("depositors", ServiceCashier)
)

func (a AllowList) Name() string {
	return a.name
}

func (a AllowList) Contains(caller Identity) bool {
	if caller.IsNil() {
		return false
	}
	_, ok := a.members[caller]
	return ok
}

func VerifyCaller(caller Identity, list AllowList) bool {
	return list.Contains(caller)
}

// ErrUnauthorizedCaller для вызывающего вне списка
func (a AllowList) Verify(caller Identity) error {
	if !a.Contains(caller) {
		return fmt.Errorf("%s: caller %s: %w", a.name, caller, ErrUnauthorizedCaller)
	}
	return nil
}
