package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
	"github.com/travigo/livetrack/pkg/util"
	"gopkg.in/yaml.v3"
)

func Default() Config {
	hostname, _ := os.Hostname()

	return Config{
		Tracking: TrackingConfig{
			SessionDuration:     10 * time.Minute,
			SubscribeTimeout:    30 * time.Second,
			WriteTimeout:        10 * time.Second,
			MaxConcurrentWrites: 8,
			WriteBuffer:         256,
			Sink:                SinkTypeStore,
			DuplicatePolicy:     DuplicatePolicySpawn,
		},
		Queue: QueueConfig{
			Retention:         120 * time.Second,
			VisibilityTimeout: 120 * time.Second,
		},
		Query: QueryConfig{
			Window:      120 * time.Second,
			MaxMessages: 10,
		},
		Feed: FeedConfig{
			BrokerURL: "ssl://mqtt.hsl.fi:8883",
			ClientID:  fmt.Sprintf("livetrack-%s-%d", hostname, os.Getpid()),
		},
	}
}

// Load builds the configuration from defaults, then the optional YAML file at path,
// then LIVETRACK_* environment variables, and validates the result
func Load(path string) (Config, error) {
	config := Default()
	env := util.GetEnvironmentVariables()

	if path == "" {
		path = env["LIVETRACK_CONFIG_FILE"]
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return config, err
		}

		if err := yaml.Unmarshal(data, &config); err != nil {
			return config, fmt.Errorf("parsing %s: %w", path, err)
		}
	}

	if err := applyEnvironment(&config, env); err != nil {
		return config, err
	}

	if err := validator.New().Struct(config); err != nil {
		return config, err
	}

	log.Debug().
		Dur("sessionduration", config.Tracking.SessionDuration).
		Str("sink", string(config.Tracking.Sink)).
		Str("duplicatepolicy", string(config.Tracking.DuplicatePolicy)).
		Str("broker", config.Feed.BrokerURL).
		Msg("Loaded configuration")

	return config, nil
}

func applyEnvironment(config *Config, env map[string]string) error {
	durations := map[string]*time.Duration{
		"LIVETRACK_SESSION_DURATION":         &config.Tracking.SessionDuration,
		"LIVETRACK_SUBSCRIBE_TIMEOUT":        &config.Tracking.SubscribeTimeout,
		"LIVETRACK_WRITE_TIMEOUT":            &config.Tracking.WriteTimeout,
		"LIVETRACK_QUEUE_RETENTION":          &config.Queue.Retention,
		"LIVETRACK_QUEUE_VISIBILITY_TIMEOUT": &config.Queue.VisibilityTimeout,
		"LIVETRACK_QUERY_WINDOW":             &config.Query.Window,
		"LIVETRACK_QUERY_CACHE_TTL":          &config.Query.CacheTTL,
	}
	for name, target := range durations {
		if val := env[name]; val != "" {
			parsed, err := time.ParseDuration(val)
			if err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			*target = parsed
		}
	}

	integers := map[string]*int{
		"LIVETRACK_MAX_CONCURRENT_WRITES": &config.Tracking.MaxConcurrentWrites,
		"LIVETRACK_WRITE_BUFFER":          &config.Tracking.WriteBuffer,
		"LIVETRACK_QUERY_MAX_MESSAGES":    &config.Query.MaxMessages,
	}
	for name, target := range integers {
		if val := env[name]; val != "" {
			parsed, err := strconv.Atoi(val)
			if err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			*target = parsed
		}
	}

	if val := env["LIVETRACK_SINK"]; val != "" {
		config.Tracking.Sink = SinkType(val)
	}
	if val := env["LIVETRACK_DUPLICATE_POLICY"]; val != "" {
		config.Tracking.DuplicatePolicy = DuplicatePolicy(val)
	}
	if val := env["LIVETRACK_MQTT_BROKER"]; val != "" {
		config.Feed.BrokerURL = val
	}
	if val := env["LIVETRACK_MQTT_CLIENT_ID"]; val != "" {
		config.Feed.ClientID = val
	}

	return nil
}
