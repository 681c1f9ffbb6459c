package config

import "time"

const defaultPort = 8080

const defaultAuthSecret = "dev-secret-change-me"

var defaultGateway = Gateway{
	Timeout:     3 * time.Second,
	MaxAttempts: 4,
	BaseDelay:   150 * time.Millisecond,
	MaxDelay:    2 * time.Second,
}

var defaultDB = DB{
	Host: "127.0.0.1",
	Port: "5432",
	User: "myuser",
	Pass: "mypassword",
	Name: "dispatch",
}

var defaultKafka = Kafka{
	GroupID:     "dispatch-intake",
	IntakeTopic: "order-submissions",
	EventsTopic: "order-events",
}

var defaultDispatch = Dispatch{
	OfferTTL:    25 * time.Second,
	BatchSize:   1,
	MaxRadiusKm: 30,
	SweepSpec:   "@every 10s",
	SweepLimit:  100,
}

var defaultRateLimit = RateLimit{
	Enabled:    true,
	Rate:       20,
	Burst:      40,
	TTL:        5 * time.Minute,
	MaxBuckets: 100_000,
}

var defaultLocation = Location{
	TTL:              10 * time.Minute,
	UpdatesPerSecond: 1,
	Burst:            3,
}

// DefaultPort returns the default port.
func DefaultPort() int {
	return defaultPort
}

// DefaultGateway returns the default outbound gateway settings.
func DefaultGateway() Gateway {
	return defaultGateway
}

// DefaultDB returns the default database settings.
func DefaultDB() DB {
	return defaultDB
}

// DefaultDispatch returns the default assignment engine settings.
func DefaultDispatch() Dispatch {
	return defaultDispatch
}

// DefaultLocation returns the default location settings.
func DefaultLocation() Location {
	return defaultLocation
}

// DefaultRateLimit returns the default HTTP rate limit settings.
func DefaultRateLimit() RateLimit {
	return defaultRateLimit
}
