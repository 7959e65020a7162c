package fx

import (
	"github.com/Ericks2008/cocapi20250719/internal/api"
	"github.com/Ericks2008/cocapi20250719/internal/cache"
	"github.com/Ericks2008/cocapi20250719/internal/config"
	"github.com/Ericks2008/cocapi20250719/internal/database"
	"github.com/Ericks2008/cocapi20250719/internal/logger"
	"github.com/Ericks2008/cocapi20250719/internal/repository"
	"github.com/Ericks2008/cocapi20250719/internal/server"
	"github.com/Ericks2008/cocapi20250719/internal/service"
	"github.com/rs/zerolog"
	"go.uber.org/fx"
)

func ProvideResolver(repo *repository.SnapshotRepository, client *api.Client, log zerolog.Logger) *cache.Resolver {
	return cache.NewResolver(repo, client, log)
}

func ProvidePlayerService(resolver *cache.Resolver, repo *repository.SnapshotRepository, log zerolog.Logger) *service.PlayerService {
	return service.NewPlayerService(resolver, repo, log)
}

func ProvideClanService(resolver *cache.Resolver, repo *repository.SnapshotRepository, log zerolog.Logger) *service.ClanService {
	return service.NewClanService(resolver, repo, log)
}

func ProvideCWLService(resolver *cache.Resolver, repo *repository.SnapshotRepository, log zerolog.Logger) *service.CWLService {
	return service.NewCWLService(resolver, repo, log)
}

var Module = fx.Options(
	fx.Provide(logger.New),
	fx.Provide(config.Load),
	fx.Provide(database.New),
	// store
	fx.Provide(repository.NewSnapshotRepository),
	// api client
	fx.Provide(api.NewClient),
	// cache-or-fetch
	fx.Provide(ProvideResolver),
	// svc
	fx.Provide(ProvidePlayerService),
	fx.Provide(ProvideClanService),
	fx.Provide(ProvideCWLService),
	// server
	fx.Provide(server.New),
)
