package models

import (
	"github.com/glkeru/amperequest/internal/identity"
)

// типы записей в хранилище
const (
	KindUserAccount     = "user_account"
	KindChargingSession = "charging_session"
	KindMarketplace     = "marketplace"
	KindListing         = "points_listing"
	KindVoucher         = "points_voucher"
	KindRedemption      = "voucher_redemption"
	KindPlot            = "virtual_plot"
	KindGameEngine      = "game_engine"
	KindValueBalance    = "value_balance"
)

// Счет баллов пользователя
type UserAccount struct {
	Authority       identity.Identity `json:"authority"`
	TotalPoints     uint64            `json:"total_points"`     // всего начислено
	AvailablePoints uint64            `json:"available_points"` // доступно к списанию
	TotalEnergyKWh  uint64            `json:"total_energy_kwh"`
	TotalSessions   uint64            `json:"total_sessions"`
}

func (UserAccount) Kind() string { return KindUserAccount }

// Сессия зарядки
type ChargingSession struct {
	Owner          identity.Identity `json:"owner"`
	ChargerCode    string            `json:"charger_code"`
	ChargerPowerKW uint32            `json:"charger_power_kw"`
	PricePerKWh    uint64            `json:"price_per_kwh"`
	StartTime      int64             `json:"start_time"`
	EndTime        int64             `json:"end_time,omitempty"`
	Nonce          uint32            `json:"nonce"`
	EnergyWh       uint64            `json:"energy_wh"`
	PointsEarned   uint64            `json:"points_earned"`
	Active         bool              `json:"active"`
}

func (ChargingSession) Kind() string { return KindChargingSession }

// Маркетплейс (один на систему)
type Marketplace struct {
	Authority       identity.Identity `json:"authority"`
	TotalPointsSold uint64            `json:"total_points_sold"`
	TotalRevenue    uint64            `json:"total_revenue"`
	PricePerPoint   uint64            `json:"price_per_point"`
}

func (Marketplace) Kind() string { return KindMarketplace }

// Предложение продавца, баллы не резервируются
type PointsListing struct {
	Issuer        identity.Identity `json:"issuer"`
	Seller        identity.Identity `json:"seller"`
	PointsAmount  uint64            `json:"points_amount"`
	PricePerPoint uint64            `json:"price_per_point"`
	Active        bool              `json:"active"`
	CreatedAt     int64             `json:"created_at"`
}

func (PointsListing) Kind() string { return KindListing }

// Ваучер на баллы
type PointsVoucher struct {
	Issuer       identity.Identity `json:"issuer"`
	Buyer        identity.Identity `json:"buyer"`
	PointsAmount uint64            `json:"points_amount"`
	Redeemed     bool              `json:"redeemed"`
	CreatedAt    int64             `json:"created_at"`
}

func (PointsVoucher) Kind() string { return KindVoucher }

// Факт погашения ваучера, не более одного на ваучер
type VoucherRedemption struct {
	Voucher      identity.Identity `json:"voucher"`
	User         identity.Identity `json:"user"`
	PointsAmount uint64            `json:"points_amount"`
	RedeemedAt   int64             `json:"redeemed_at"`
}

func (VoucherRedemption) Kind() string { return KindRedemption }

// Виртуальный участок
type VirtualPlot struct {
	Owner          identity.Identity `json:"owner"`
	PlotID         uint32            `json:"plot_id"`
	Latitude       int32             `json:"latitude"`  // градусы * 1_000_000
	Longitude      int32             `json:"longitude"` // градусы * 1_000_000
	PurchasePrice  uint64            `json:"purchase_price"`
	ChargerPowerKW uint32            `json:"charger_power_kw"`
	TotalRevenue   uint64            `json:"total_revenue"`
	TotalSessions  uint64            `json:"total_sessions"`
	Operational    bool              `json:"operational"`
}

func (VirtualPlot) Kind() string { return KindPlot }

type GameEngineAuthority struct {
	Authority identity.Identity `json:"authority"`
	CreatedAt int64             `json:"created_at"`
}

func (GameEngineAuthority) Kind() string { return KindGameEngine }

// Денежный баланс участника
type ValueBalance struct {
	Owner  identity.Identity `json:"owner"`
	Amount uint64            `json:"amount"`
}

func (ValueBalance) Kind() string { return KindValueBalance }

// Баланс баллов (кэш)
type Balance struct {
	Total     uint64 `json:"total"`
	Available uint64 `json:"available"`
}

// Сводная статистика сети
type NetworkStats struct {
	TotalSessions     uint64 `json:"total_sessions"`
	ActiveSessions    uint64 `json:"active_sessions"`
	CompletedSessions uint64 `json:"completed_sessions"`
	TotalEnergyWh     uint64 `json:"total_energy_wh"`
	TotalPoints       uint64 `json:"total_points"`
	UniqueUsers       uint64 `json:"unique_users"`
	ActiveListings    uint64 `json:"active_listings"`
	TotalPlots        uint64 `json:"total_plots"`
	PlotsWithChargers uint64 `json:"plots_with_chargers"`
	TotalPlotRevenue  uint64 `json:"total_plot_revenue"`
	HealthScore       uint64 `json:"health_score"`
}
