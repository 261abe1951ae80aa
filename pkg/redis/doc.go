// Package redis connects to Redis with go-redis/v9 for the quota counter and
// billing dedup stores.
//
// Connect parses REDIS_URL, pings the server and retries at a fixed interval
// until ConnectTimeout elapses. Healthcheck wraps a ping for readiness probes.
package redis
