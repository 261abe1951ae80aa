package billing

import "time"

// Config selects the webhook providers and dedup behaviour. An empty
// provider list disables the webhook endpoint.
type Config struct {
	Providers           []string      `env:"BILLING_PROVIDER" envDefault:"stripe" envSeparator:","`
	StripeWebhookSecret string        `env:"STRIPE_WEBHOOK_SECRET"`
	PaddleWebhookSecret string        `env:"PADDLE_WEBHOOK_SECRET"`
	DedupBackend        string        `env:"BILLING_DEDUP_BACKEND" envDefault:"memory"`
	DedupTTL            time.Duration `env:"BILLING_DEDUP_TTL" envDefault:"720h"`
	ClaimLease          time.Duration `env:"BILLING_CLAIM_LEASE" envDefault:"5m"`
	MaxBodyBytes        int64         `env:"BILLING_MAX_BODY_BYTES" envDefault:"1048576"`
}

// S3ArchiveConfig configures the optional raw event archive. An empty Bucket
// disables archiving.
type S3ArchiveConfig struct {
	Bucket         string `env:"BILLING_ARCHIVE_BUCKET"`
	Region         string `env:"BILLING_ARCHIVE_REGION" envDefault:"us-east-1"`
	Prefix         string `env:"BILLING_ARCHIVE_PREFIX" envDefault:"billing-events"`
	Endpoint       string `env:"BILLING_ARCHIVE_ENDPOINT"`
	AccessKeyID    string `env:"BILLING_ARCHIVE_ACCESS_KEY_ID"`
	SecretKey      string `env:"BILLING_ARCHIVE_SECRET_KEY"`
	ForcePathStyle bool   `env:"BILLING_ARCHIVE_FORCE_PATH_STYLE"`
}

// Enabled reports whether a bucket is configured.
func (c S3ArchiveConfig) Enabled() bool {
	return c.Bucket != ""
}
