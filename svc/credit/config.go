package credit

import (
	"fmt"

	"github.com/coachkit/creditledger/svc/ledger"
)

// Config holds the grant amounts.
type Config struct {
	FreeGrant  int64 `env:"CREDITS_FREE_GRANT" envDefault:"250"`
	ProGrant   int64 `env:"CREDITS_PRO_GRANT" envDefault:"5000"`
	ProRenewal int64 `env:"CREDITS_PRO_RENEWAL" envDefault:"5000"`
}

// Grant is what a tier receives on initialization or upgrade, and on each
// renewal. A zero Renewal means the tier has no recurring grant.
type Grant struct {
	Initial int64 `yaml:"initial"`
	Renewal int64 `yaml:"renewal"`
}

// Grants maps every tier to its grant.
type Grants map[ledger.Tier]Grant

// DefaultGrants are the stock amounts.
func DefaultGrants() Grants {
	return Config{FreeGrant: 250, ProGrant: 5000, ProRenewal: 5000}.Grants()
}

func (c Config) Grants() Grants {
	return Grants{
		ledger.TierFree: {Initial: c.FreeGrant},
		ledger.TierPro:  {Initial: c.ProGrant, Renewal: c.ProRenewal},
	}
}

// Validate requires a grant for every tier and no negative amounts.
func (g Grants) Validate() error {
	for _, tier := range []ledger.Tier{ledger.TierFree, ledger.TierPro} {
		grant, ok := g[tier]
		if !ok {
			return fmt.Errorf("%w: missing tier %q", ErrInvalidGrants, tier)
		}
		if grant.Initial < 0 || grant.Renewal < 0 {
			return fmt.Errorf("%w: negative amount for tier %q", ErrInvalidGrants, tier)
		}
	}
	return nil
}
