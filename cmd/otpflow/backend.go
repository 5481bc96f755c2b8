package main

import (
	"context"
	"fmt"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/MrEthical07/otpflow"
	"github.com/MrEthical07/otpflow/authsvc"
)

// backend is the Redis client, directory and auth service behind a command.
type backend struct {
	svc      *authsvc.Service
	dir      authsvc.Directory
	cleanups []func()
}

func (b *backend) Close() {
	for i := len(b.cleanups) - 1; i >= 0; i-- {
		b.cleanups[i]()
	}
}

func newBackend(ctx context.Context, cfg otpflow.Config, logger *logrus.Logger) (*backend, error) {
	b := &backend{}

	addr := cfg.Redis.Addr
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			return nil, fmt.Errorf("start miniredis: %w", err)
		}
		b.cleanups = append(b.cleanups, mr.Close)
		addr = mr.Addr()
		logger.WithField("addr", addr).Warn("no redis address configured, using in-process miniredis")
	}
	rdb := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    []string{addr},
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	b.cleanups = append(b.cleanups, func() { _ = rdb.Close() })
	if err := rdb.Ping(ctx).Err(); err != nil {
		b.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	switch cfg.Directory.Driver {
	case "postgres":
		dir, err := authsvc.OpenSQLDirectory(ctx, "postgres", cfg.Directory.DSN)
		if err != nil {
			b.Close()
			return nil, err
		}
		b.cleanups = append(b.cleanups, func() { _ = dir.Close() })
		b.dir = dir
	default:
		b.dir = authsvc.NewMemoryDirectory()
	}

	var sender authsvc.Sender = authsvc.LogSender{Logger: logger}
	if cfg.Delivery.NSQAddr != "" {
		producer, err := authsvc.NewNSQProducer(cfg.Delivery.NSQAddr)
		if err != nil {
			b.Close()
			return nil, err
		}
		b.cleanups = append(b.cleanups, producer.Stop)
		sender = authsvc.NewNSQSender(producer, cfg.Delivery.OTPTopic, cfg.Delivery.ResetTopic)
	}

	svc, err := authsvc.New(authsvc.Options{
		Config:    cfg,
		Redis:     rdb,
		Directory: b.dir,
		Sender:    sender,
		Logger:    logger,
	})
	if err != nil {
		b.Close()
		return nil, err
	}
	b.svc = svc

	if err := authsvc.SeedFixture(ctx, b.dir, svc, cfg.Fixture); err != nil {
		b.Close()
		return nil, fmt.Errorf("seed fixture account: %w", err)
	}
	if cfg.Fixture.Enabled {
		logger.WithFields(logrus.Fields{
			"email": cfg.Fixture.Email,
			"role":  cfg.Fixture.Role,
		}).Info("fixture account ready")
	}
	return b, nil
}
