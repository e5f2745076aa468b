package interfaces

//go:generate mockgen -source=external.go -destination=mock_external.go -package=interfaces

import (
	"context"

	"github.com/glkeru/amperequest/internal/identity"
	model "github.com/glkeru/amperequest/internal/models"
)

// Перевод денег между участниками, все или ничего
type Transferer interface {
	Transfer(ctx context.Context, tx Tx, from, to identity.Identity, amount uint64) error
}

type CacheStorage interface {
	GetBalance(ctx context.Context, user string) (balance model.Balance, err error)
	SetBalance(ctx context.Context, user string, balance model.Balance) error
	InvalidateBalance(ctx context.Context, user string) error
}

type Publisher interface {
	Publish(ctx context.Context, events ...model.Event) error
}

type JournalStorage interface {
	SaveEvent(ctx context.Context, event model.Event) error
	GetEvents(ctx context.Context, subject string, limit int64) ([]model.Event, error)
}
