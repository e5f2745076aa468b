package interfaces

import (
	"context"

	"github.com/glkeru/amperequest/internal/identity"
)

// Record хранится в виде JSON под детерминированным идентификатором
type Record interface {
	Kind() string
}

// Единица работы над хранилищем: либо применяются все изменения, либо ни одного
type Tx interface {
	// Create атомарно создает запись, ErrAlreadyExists если она уже есть
	Create(ctx context.Context, id identity.Identity, rec Record) error
	Get(ctx context.Context, id identity.Identity, rec Record) error
	Put(ctx context.Context, id identity.Identity, rec Record) error
	// OnCommit вызывается только после успешного коммита
	OnCommit(fn func())
	// OnRollback вызывается, если единица работы не применилась: ошибка операции
	// или неудачный коммит. Компенсация действий вне хранилища
	OnRollback(fn func())
}

type RecordStore interface {
	Atomic(ctx context.Context, fn func(tx Tx) error) error
	Read(ctx context.Context, id identity.Identity, rec Record) error
	Scan(ctx context.Context, kind string, fn func(id identity.Identity, payload []byte) error) error
	Close()
}

// Привилегированные операции с баллами (вызываются доверенными сервисами)
type PointsLedger interface {
	CreditPointsTx(ctx context.Context, tx Tx, user identity.Identity, amount uint64, caller identity.Identity) error
	DebitPointsTx(ctx context.Context, tx Tx, user identity.Identity, amount uint64, caller identity.Identity) error
}

type VoucherRegistry interface {
	MarkVoucherRedeemedTx(ctx context.Context, tx Tx, voucher identity.Identity, caller identity.Identity) error
}

type SessionRecorder interface {
	RecordSessionTx(ctx context.Context, tx Tx, plot identity.Identity, payer identity.Identity, revenue uint64, authority identity.Identity) error
}
