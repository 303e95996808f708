package injector

import (
	"github.com/google/wire"

	"github.com/zeusync/zid/internal/config"
	"github.com/zeusync/zid/internal/core/observability/log"
	"github.com/zeusync/zid/internal/core/observability/metrics"
	"github.com/zeusync/zid/internal/server"
	"github.com/zeusync/zid/pkg/zid"
)

var ProviderSet = wire.NewSet(
	ProvideConfig,
	ProvideLogger,
	wire.Bind(new(log.Log), new(*log.Logger)),
	ProvideAllocator,
	ProvideRegistry,
	server.NewServer,
)

// ProvideConfig loads path, or the file named by ZID_CONFIG, or the defaults.
func ProvideConfig(path string) (*config.Config, error) {
	return config.FromEnv(path)
}

// ProvideLogger builds the process logger. The cleanup flushes it.
func ProvideLogger(cfg *config.Config) (*log.Logger, func(), error) {
	logger, err := log.New(cfg.Log)
	if err != nil {
		return nil, nil, err
	}
	return logger, func() { _ = logger.Sync() }, nil
}

// ProvideAllocator returns the process wide allocator, so ids issued by the
// daemon and by zid.Next in the same process never collide.
func ProvideAllocator() *zid.Allocator {
	return zid.Default()
}

func ProvideRegistry(cfg *config.Config) *metrics.Registry {
	return metrics.NewRegistry(cfg.Metrics.Shards)
}
