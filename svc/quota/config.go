package quota

// Config selects where plans come from and when the sweep runs.
type Config struct {
	Backend       string `env:"QUOTA_BACKEND" envDefault:"memory"` // memory, redis or postgres
	PlansFile     string `env:"QUOTA_PLANS_FILE"`
	SweepSchedule string `env:"QUOTA_SWEEP_SCHEDULE" envDefault:"0 0 1 * *"`
	SweepEnabled  bool   `env:"QUOTA_SWEEP_ENABLED" envDefault:"true"`
}

// Source returns a YAMLSource when PlansFile is set, otherwise the default plans.
func (c Config) Source() Source {
	if c.PlansFile != "" {
		return NewYAMLSource(c.PlansFile)
	}
	return NewMemorySource(DefaultPlans())
}
