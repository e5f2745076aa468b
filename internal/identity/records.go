package identity

// пространства имен записей
const (
	NamespaceService     = "service"
	NamespaceUser        = "user"
	NamespaceSession     = "session"
	NamespaceMarketplace = "marketplace"
	NamespaceListing     = "listing"
	NamespaceVoucher     = "voucher"
	NamespaceRedemption  = "redemption"
	NamespacePlot        = "plot"
	NamespaceTreasury    = "treasury"
	NamespaceGameEngine  = "game_engine"
	NamespaceBalance     = "balance"
)

// доверенные сервисы
var (
	ServiceSessionLedger = Derive(NamespaceService, SeedString("charging_session"))
	ServiceMarketplace   = Derive(NamespaceService, SeedString("points_marketplace"))
	ServiceVirtualPlot   = Derive(NamespaceService, SeedString("virtual_plot"))
	ServiceGameEngine    = Derive(NamespaceService, SeedString("game_engine"))
	// касса: зачисляет подтвержденные пополнения
	ServiceCashier       = Derive(NamespaceService, SeedString("cashier"))
)

func UserAccount(authority Identity) Identity {
	return Derive(NamespaceUser, SeedID(authority))
}

func Session(owner Identity, timestamp int64, nonce uint32) Identity {
	return Derive(NamespaceSession, SeedID(owner), SeedInt64(timestamp), SeedUint32(nonce))
}

func Marketplace() Identity {
	return Derive(NamespaceMarketplace)
}

func Listing(seller Identity, timestamp int64) Identity {
	return Derive(NamespaceListing, SeedID(seller), SeedInt64(timestamp))
}

func Voucher(buyer Identity, timestamp int64) Identity {
	return Derive(NamespaceVoucher, SeedID(buyer), SeedInt64(timestamp))
}

func Redemption(voucher Identity) Identity {
	return Derive(NamespaceRedemption, SeedID(voucher))
}

func Plot(plotID uint32) Identity {
	return Derive(NamespacePlot, SeedUint32(plotID))
}

func Treasury() Identity {
	return Derive(NamespaceTreasury)
}

func GameEngine() Identity {
	return Derive(NamespaceGameEngine)
}

// денежный баланс владельца
func Balance(owner Identity) Identity {
	return Derive(NamespaceBalance, SeedID(owner))
}
