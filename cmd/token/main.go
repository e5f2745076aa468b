// Выпуск токена вызывающего: для пользователя или доверенного сервиса
//
//	token --user <identity>
//	token --wallet <name>
//	token --service marketplace|virtual_plot|session_ledger|game_engine|cashier
package main

import (
	"fmt"
	"os"

	"github.com/glkeru/amperequest/internal/auth"
	"github.com/glkeru/amperequest/internal/config"
	"github.com/glkeru/amperequest/internal/identity"
	flag "github.com/spf13/pflag"
)

var services = map[string]identity.Identity{
	"session_ledger": identity.ServiceSessionLedger,
	"marketplace":    identity.ServiceMarketplace,
	"virtual_plot":   identity.ServiceVirtualPlot,
	"game_engine":    identity.ServiceGameEngine,
	"cashier":        identity.ServiceCashier,
}

func main() {
	user := flag.String("user", "", "user identity")
	service := flag.String("service", "", "trusted service name")
	wallet := flag.String("wallet", "", "derive user identity from a wallet name")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fail(err)
	}
	tokens, err := auth.NewTokens(cfg.Token.Secret, cfg.Token.TTL)
	if err != nil {
		fail(err)
	}

	var caller identity.Identity
	switch {
	case *user != "":
		if caller, err = identity.Parse(*user); err != nil {
			fail(err)
		}
	case *wallet != "":
		caller = identity.Derive("wallet", identity.SeedString(*wallet))
	case *service != "":
		var ok bool
		if caller, ok = services[*service]; !ok {
			fail(fmt.Errorf("unknown service %q", *service))
		}
	default:
		flag.Usage()
		os.Exit(2)
	}

	token, err := tokens.Issue(caller)
	if err != nil {
		fail(err)
	}
	fmt.Printf("identity: %s\ntoken: %s\n", caller, token)
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
