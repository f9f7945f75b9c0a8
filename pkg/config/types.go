package config

import "time"

type SinkType string

const (
	SinkTypeStore SinkType = "store"
	SinkTypeQueue SinkType = "queue"
)

// DuplicatePolicy decides what happens when tracking is requested for a vehicle that is already tracked
type DuplicatePolicy string

const (
	// Every request gets its own independent session
	DuplicatePolicySpawn DuplicatePolicy = "spawn"
	// Requests for an already tracked vehicle are dropped
	DuplicatePolicyIgnore DuplicatePolicy = "ignore"
	// Running sessions for the vehicle are cancelled and a new one started
	DuplicatePolicyReplace DuplicatePolicy = "replace"
)

type Config struct {
	Tracking TrackingConfig `yaml:"tracking"`
	Queue    QueueConfig    `yaml:"queue"`
	Query    QueryConfig    `yaml:"query"`
	Feed     FeedConfig     `yaml:"feed"`
}

type TrackingConfig struct {
	SessionDuration     time.Duration   `yaml:"session_duration" validate:"gt=0"`
	SubscribeTimeout    time.Duration   `yaml:"subscribe_timeout" validate:"gt=0"`
	WriteTimeout        time.Duration   `yaml:"write_timeout" validate:"gt=0"`
	MaxConcurrentWrites int             `yaml:"max_concurrent_writes" validate:"gte=1"`
	WriteBuffer         int             `yaml:"write_buffer" validate:"gte=1"`
	Sink                SinkType        `yaml:"sink" validate:"oneof=store queue"`
	DuplicatePolicy     DuplicatePolicy `yaml:"duplicate_policy" validate:"oneof=spawn ignore replace"`
}

type QueueConfig struct {
	Retention         time.Duration `yaml:"retention" validate:"gt=0"`
	VisibilityTimeout time.Duration `yaml:"visibility_timeout" validate:"gt=0"`
}

type QueryConfig struct {
	Window      time.Duration `yaml:"window" validate:"gt=0"`
	MaxMessages int           `yaml:"max_messages" validate:"gte=1"`
	CacheTTL    time.Duration `yaml:"cache_ttl" validate:"gte=0"`
}

type FeedConfig struct {
	BrokerURL string `yaml:"broker_url" validate:"required"`
	ClientID  string `yaml:"client_id" validate:"required"`
	QoS       byte   `yaml:"qos" validate:"lte=2"`
}
