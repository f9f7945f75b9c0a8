package tracking

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kr/pretty"
	"github.com/rs/zerolog/log"
	"github.com/travigo/livetrack/pkg/config"
	"github.com/travigo/livetrack/pkg/consumer"
	"github.com/travigo/livetrack/pkg/ctdf"
	"github.com/travigo/livetrack/pkg/database"
	"github.com/travigo/livetrack/pkg/elastic_client"
	"github.com/travigo/livetrack/pkg/hfp"
	"github.com/travigo/livetrack/pkg/positions"
	"github.com/travigo/livetrack/pkg/redis_client"
	"github.com/travigo/livetrack/pkg/trajectory"
	"github.com/urfave/cli/v2"
)

var vehicleFlags = []cli.Flag{
	&cli.StringFlag{
		Name:     "transport-mode",
		Usage:    "Transport mode of the vehicle, eg. bus",
		Required: true,
	},
	&cli.StringFlag{
		Name:     "operator-id",
		Usage:    "Operator ID of the vehicle",
		Required: true,
	},
	&cli.StringFlag{
		Name:     "vehicle-number",
		Usage:    "Vehicle number within the operator",
		Required: true,
	},
}

func vehicleFromFlags(c *cli.Context) ctdf.VehicleIdentity {
	return ctdf.VehicleIdentity{
		TransportMode: c.String("transport-mode"),
		OperatorID:    c.String("operator-id"),
		VehicleNumber: c.String("vehicle-number"),
	}
}

func RegisterCLI() *cli.Command {
	return &cli.Command{
		Name:  "tracker",
		Usage: "Tracks vehicles from the live position feed on request",
		Subcommands: []*cli.Command{
			{
				Name:  "run",
				Usage: "run an instance of the tracker consuming tracking requests",
				Action: func(c *cli.Context) error {
					cfg, err := config.Load(c.String("config"))
					if err != nil {
						return err
					}

					if err := elastic_client.Connect(false); err != nil {
						return err
					}
					if err := redis_client.Connect(); err != nil {
						return err
					}

					sinkFactory, err := sinkFactoryFromConfig(cfg)
					if err != nil {
						return err
					}

					feed, err := connectFeed(cfg)
					if err != nil {
						return err
					}

					manager := NewManagerFromConfig(feed, sinkFactory, cfg.Tracking)

					redisConsumer := consumer.RedisConsumer{
						Connection:      redis_client.QueueConnection,
						QueueName:       QueueName,
						NumberConsumers: 5,
						BatchSize:       20,
						Timeout:         2 * time.Second,
						Consumer:        NewTriggerConsumer(manager),
					}
					if err := redisConsumer.Setup(); err != nil {
						return err
					}

					consumer.StartStatsServer(redis_client.QueueConnection, QueueName, healthChecks(cfg))

					signals := make(chan os.Signal, 1)
					signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
					defer signal.Stop(signals)

					<-signals // wait for signal
					go func() {
						<-signals // hard exit on second signal (in case shutdown gets stuck)
						os.Exit(1)
					}()

					<-redis_client.QueueConnection.StopAllConsuming() // wait for all Consume() calls to finish

					log.Info().Int("sessions", manager.ActiveCount()).Msg("Stopping running tracking sessions")
					manager.Shutdown()
					feed.Close()
					elastic_client.WaitUntilQueueEmpty()

					return nil
				},
			},
			{
				Name:  "cleaner",
				Usage: "run the queue cleaner for the tracking queue",
				Action: func(c *cli.Context) error {
					if err := redis_client.Connect(); err != nil {
						return err
					}

					go consumer.StartCleaner(redis_client.QueueConnection)

					signals := make(chan os.Signal, 1)
					signal.Notify(signals, syscall.SIGINT)
					defer signal.Stop(signals)

					<-signals // wait for signal
					go func() {
						<-signals // hard exit on second signal (in case shutdown gets stuck)
						os.Exit(1)
					}()

					<-redis_client.QueueConnection.StopAllConsuming() // wait for all Consume() calls to finish

					return nil
				},
			},
			{
				Name:  "test-trigger",
				Usage: "publish a tracking event for a vehicle onto the notification bus",
				Flags: append([]cli.Flag{
					&cli.BoolFlag{
						Name:  "cancel",
						Usage: "Publish a cancellation instead of a request",
					},
				}, vehicleFlags...),
				Action: func(c *cli.Context) error {
					if err := redis_client.Connect(); err != nil {
						return err
					}

					vehicle := vehicleFromFlags(c)
					if err := vehicle.Validate(); err != nil {
						return err
					}

					eventType := ctdf.EventTypeTrackingRequested
					if c.Bool("cancel") {
						eventType = ctdf.EventTypeTrackingCancelled
					}

					publisher, err := NewQueuePublisher(redis_client.QueueConnection)
					if err != nil {
						return err
					}

					if err := publisher.Publish(c.Context, eventType, vehicle); err != nil {
						return err
					}

					pretty.Println(eventType, vehicle)

					return nil
				},
			},
			{
				Name:  "track",
				Usage: "track a single vehicle in the foreground and print its trajectory",
				Flags: append([]cli.Flag{
					&cli.DurationFlag{
						Name:  "duration",
						Usage: "How long to track for, defaults to the configured session duration",
					},
				}, vehicleFlags...),
				Action: func(c *cli.Context) error {
					cfg, err := config.Load(c.String("config"))
					if err != nil {
						return err
					}
					if c.IsSet("duration") {
						cfg.Tracking.SessionDuration = c.Duration("duration")
					}

					if err := redis_client.Connect(); err != nil {
						return err
					}

					sinkFactory, err := sinkFactoryFromConfig(cfg)
					if err != nil {
						return err
					}

					feed, err := connectFeed(cfg)
					if err != nil {
						return err
					}
					defer feed.Close()

					vehicle := vehicleFromFlags(c)
					if err := vehicle.Validate(); err != nil {
						return err
					}

					ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT)
					defer stop()

					session := NewSession(vehicle, feed, sinkFactory(vehicle), SessionOptions{
						Duration:            cfg.Tracking.SessionDuration,
						WriteTimeout:        cfg.Tracking.WriteTimeout,
						MaxConcurrentWrites: cfg.Tracking.MaxConcurrentWrites,
						WriteBuffer:         cfg.Tracking.WriteBuffer,
					})
					result := session.Run(ctx)
					pretty.Println(result, session.Stats())

					if result.Err != nil {
						return result.Err
					}

					service := &trajectory.Service{
						Mode:        cfg.Tracking.Sink,
						Queue:       positions.NewRedisQueue(redis_client.Client),
						MaxMessages: cfg.Query.MaxMessages,
					}
					if cfg.Tracking.Sink == config.SinkTypeStore {
						service.Store = positions.NewMongoStore(database.GetCollection(positions.CollectionName))
					}

					path, err := service.Query(context.Background(), vehicle, cfg.Query.Window)
					if err != nil {
						return err
					}

					pretty.Println(path)

					return nil
				},
			},
		},
	}
}

func connectFeed(cfg config.Config) (*hfp.Client, error) {
	feed, err := hfp.Connect(cfg.Feed.BrokerURL, cfg.Feed.ClientID)
	if err != nil {
		return nil, fmt.Errorf("connecting to feed broker: %w", err)
	}

	feed.QoS = cfg.Feed.QoS
	feed.SubscribeTimeout = cfg.Tracking.SubscribeTimeout

	return feed, nil
}

// sinkFactoryFromConfig expects redis_client to be connected and connects the database when needed
func sinkFactoryFromConfig(cfg config.Config) (SinkFactory, error) {
	switch cfg.Tracking.Sink {
	case config.SinkTypeStore:
		if err := database.Connect(); err != nil {
			return nil, err
		}

		return NewStoreSinkFactory(positions.NewMongoStore(database.GetCollection(positions.CollectionName))), nil
	case config.SinkTypeQueue:
		return NewQueueSinkFactory(positions.NewRedisQueue(redis_client.Client), positions.QueueAttributes{
			Retention:         cfg.Queue.Retention,
			VisibilityTimeout: cfg.Queue.VisibilityTimeout,
		}), nil
	default:
		return nil, errors.New("unknown sink type " + string(cfg.Tracking.Sink))
	}
}

func healthChecks(cfg config.Config) map[string]consumer.HealthCheck {
	checks := map[string]consumer.HealthCheck{
		"redis": func(ctx context.Context) error {
			return redis_client.Client.Ping(ctx).Err()
		},
	}

	if cfg.Tracking.Sink == config.SinkTypeStore {
		checks["mongo"] = func(ctx context.Context) error {
			return database.MongoGlobalInstance.Client.Ping(ctx, nil)
		}
	}

	return checks
}
