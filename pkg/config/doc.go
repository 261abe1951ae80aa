// Package config loads environment-driven configuration structs.
//
// Structs declare their variables with caarlos0/env tags; a .env file in the
// working directory is read once through godotenv before the first parse.
//
//	type Config struct {
//		FreeGrant int64 `env:"CREDITS_FREE_GRANT" envDefault:"250"`
//	}
//
//	var cfg Config
//	if err := config.Load(&cfg); err != nil {
//		return err
//	}
//
// Load caches the parsed value per type; Parse always reads the environment.
package config
