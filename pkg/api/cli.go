package api

import (
	"github.com/eko/gocache/lib/v4/cache"
	redisstore "github.com/eko/gocache/store/redis/v4"
	"github.com/travigo/livetrack/pkg/config"
	"github.com/travigo/livetrack/pkg/database"
	"github.com/travigo/livetrack/pkg/positions"
	"github.com/travigo/livetrack/pkg/redis_client"
	"github.com/travigo/livetrack/pkg/tracking"
	"github.com/travigo/livetrack/pkg/trajectory"
	"github.com/urfave/cli/v2"
)

func RegisterCLI() *cli.Command {
	return &cli.Command{
		Name:  "web-api",
		Usage: "Provides the tracking request and vehicle status API",
		Subcommands: []*cli.Command{
			{
				Name:  "run",
				Usage: "run web api server",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "listen",
						Value: ":8080",
						Usage: "listen target for the web server",
					},
				},
				Action: func(c *cli.Context) error {
					cfg, err := config.Load(c.String("config"))
					if err != nil {
						return err
					}

					if err := redis_client.Connect(); err != nil {
						return err
					}

					service := &trajectory.Service{
						Mode:        cfg.Tracking.Sink,
						Queue:       positions.NewRedisQueue(redis_client.Client),
						MaxMessages: cfg.Query.MaxMessages,
						CacheTTL:    cfg.Query.CacheTTL,
					}

					if cfg.Tracking.Sink == config.SinkTypeStore {
						if err := database.Connect(); err != nil {
							return err
						}

						service.Store = positions.NewMongoStore(database.GetCollection(positions.CollectionName))
					}

					if cfg.Query.CacheTTL > 0 {
						service.Cache = cache.New[string](redisstore.NewRedis(redis_client.Client))
					}

					publisher, err := tracking.NewQueuePublisher(redis_client.QueueConnection)
					if err != nil {
						return err
					}

					return SetupServer(c.String("listen"), publisher, service, cfg.Query.Window)
				},
			},
		},
	}
}
