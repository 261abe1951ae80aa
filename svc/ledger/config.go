package ledger

import "time"

// Config selects the ledger backend and its resilience limits.
type Config struct {
	Backend    string        `env:"LEDGER_BACKEND" envDefault:"memory"` // memory, postgres or mongo
	HistoryCap int           `env:"LEDGER_HISTORY_CAP" envDefault:"100"`
	MaxRetries int           `env:"LEDGER_MAX_RETRIES" envDefault:"5"`
	OpTimeout  time.Duration `env:"LEDGER_OP_TIMEOUT" envDefault:"5s"`
}

const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendMongo    = "mongo"
)
