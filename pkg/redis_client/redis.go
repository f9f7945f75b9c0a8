package redis_client

import (
	"context"
	"strconv"

	"github.com/adjust/rmq/v5"
	"github.com/redis/go-redis/v9"
	"github.com/travigo/livetrack/pkg/util"
)

var Client *redis.Client
var QueueConnection rmq.Connection

const defaultConnectionAddress = "localhost:6379"
const defaultDatabase = 0

const queueConnectionTag = "livetrack"

// Connect sets up the process wide redis client and rmq connection
func Connect() error {
	env := util.GetEnvironmentVariables()

	address := util.GetEnvironmentVariable(env, "LIVETRACK_REDIS_ADDRESS", defaultConnectionAddress)
	password := env["LIVETRACK_REDIS_PASSWORD"]
	database := defaultDatabase

	if env["LIVETRACK_REDIS_DATABASE"] != "" {
		if n, err := strconv.Atoi(env["LIVETRACK_REDIS_DATABASE"]); err == nil {
			database = n
		} else {
			return err
		}
	}

	Client = redis.NewClient(&redis.Options{
		Addr:     address,
		Password: password,
		DB:       database,
	})

	statusCmd := Client.Ping(context.Background())
	err := statusCmd.Err()
	if err != nil {
		return err
	}

	QueueConnection, err = rmq.OpenConnectionWithRedisClient(queueConnectionTag, Client, nil)
	if err != nil {
		return err
	}

	return nil
}
