package subscription

// Config selects where subscription projections are stored.
type Config struct {
	Backend string `env:"SUBSCRIPTION_BACKEND" envDefault:"memory"` // memory or postgres
}
