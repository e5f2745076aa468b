package models

import (
	"time"
)

// типы событий
const (
	EventUserInitialized     = "user_initialized"
	EventSessionStarted      = "session_started"
	EventSessionUpdated      = "session_updated"
	EventSessionEnded        = "session_ended"
	EventPointsCredited      = "points_credited"
	EventPointsDebited       = "points_debited"
	EventVoucherIssued       = "voucher_issued"
	EventVoucherRedeemed     = "voucher_redeemed"
	EventListingCreated      = "listing_created"
	EventListingCancelled    = "listing_cancelled"
	EventListingSold         = "listing_sold"
	EventPlotPurchased       = "plot_purchased"
	EventChargerInstalled    = "charger_installed"
	EventChargerUpgraded     = "charger_upgraded"
	EventPlotSessionRecorded = "plot_session_recorded"
	EventRevenueWithdrawn    = "revenue_withdrawn"
)

// Событие журнала, публикуется после коммита
type Event struct {
	ID      string    `bson:"id" json:"id"`
	Type    string    `bson:"type" json:"type"`
	Subject string    `bson:"subject" json:"subject"` // запись, к которой относится событие
	Actor   string    `bson:"actor,omitempty" json:"actor,omitempty"`
	Amount  uint64    `bson:"amount" json:"amount"`
	At      time.Time `bson:"at" json:"at"`
}
