package models

import (
	"github.com/glkeru/amperequest/internal/identity"
)

// Показания счетчика зарядной станции (Kafka)
type MeterReading struct {
	Owner    identity.Identity `json:"owner"`
	Session  identity.Identity `json:"session"`
	EnergyWh uint64            `json:"energy_wh"`
	Final    bool              `json:"final"` // последнее показание, сессия завершается
}

// Запрос на погашение ваучера (RabbitMQ)
type RedeemRequest struct {
	User    identity.Identity `json:"user"`
	Voucher identity.Identity `json:"voucher"`
}

// Ответ в очередь подтверждений
type RedeemConfirm struct {
	Voucher identity.Identity `json:"voucher"`
	User    identity.Identity `json:"user"`
	Success bool              `json:"success"`
	Points  uint64            `json:"points,omitempty"`
	Error   string            `json:"error,omitempty"`
}

// Запрос виртуальной сессии для игрового движка (NATS)
type VirtualSessionRequest struct {
	Payer   identity.Identity `json:"payer"`
	Plot    identity.Identity `json:"plot"`
	Revenue uint64            `json:"revenue"`
}
