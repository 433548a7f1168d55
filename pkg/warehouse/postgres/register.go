package postgres

import (
	"context"

	"go.uber.org/zap"

	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/pkg/warehouse"
)

func init() {
	warehouse.Register(warehouse.Registration{
		Info: warehouse.ConnectorInfo{
			Dialect:     "postgres",
			DisplayName: "PostgreSQL",
			Description: "PostgreSQL 12+ and compatible warehouses",
		},
		Factory: func(ctx context.Context, uri string, logger *zap.Logger) (warehouse.Connector, error) {
			return New(ctx, uri, logger)
		},
	})
}
