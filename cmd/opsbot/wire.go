package main

import (
	"context"
	"fmt"
	"time"

	"github.com/ashureev/opsbot/internal/config"
	"github.com/ashureev/opsbot/internal/remote"
	"github.com/ashureev/opsbot/internal/store"
)

const dialTimeout = 10 * time.Second

func openStore(ctx context.Context, cfg *config.Config) (*store.SQLStore, error) {
	db := cfg.Database
	repo, err := store.Open(ctx, store.Config{
		Driver:   db.Driver,
		Path:     db.Path,
		Host:     db.Host,
		Port:     db.Port,
		User:     db.User,
		Password: db.Password,
		Database: db.Database,
	})
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return repo, nil
}

func (a *app) openExecutor(ctx context.Context) (*remote.Executor, error) {
	rc := a.cfg.Remote
	var (
		session remote.Session
		err     error
	)
	switch rc.Backend {
	case "docker":
		session, err = remote.NewDockerSession(ctx, rc.Container, a.logger)
	default:
		session, err = remote.DialSSH(ctx, remote.SSHConfig{
			Host:        rc.Host,
			Port:        rc.Port,
			User:        rc.User,
			Password:    rc.Password,
			KeyFile:     rc.KeyFile,
			KnownHosts:  rc.KnownHosts,
			DialTimeout: dialTimeout,
		}, a.logger)
	}
	if err != nil {
		return nil, fmt.Errorf("connect to %s backend: %w", rc.Backend, err)
	}
	a.logger.Info("Remote session established", "backend", rc.Backend)

	return remote.NewExecutor(session, remote.DefaultCatalog(rc.ReplLogPath), remote.Options{
		OutputLimit: rc.OutputLimit,
		Logger:      a.logger,
	}), nil
}
