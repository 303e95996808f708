//go:build wireinject
// +build wireinject

// The build tag makes sure the stub is not built in the final build.

package injector

import (
	"github.com/google/wire"

	"github.com/zeusync/zid/internal/server"
)

// InitializeServer builds the daemon from the config file at path.
func InitializeServer(path string) (*server.Server, func(), error) {
	wire.Build(ProviderSet)
	return nil, nil, nil
}
