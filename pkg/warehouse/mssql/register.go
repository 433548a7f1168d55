package mssql

import (
	"context"

	"go.uber.org/zap"

	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/pkg/warehouse"
)

func init() {
	warehouse.Register(warehouse.Registration{
		Info: warehouse.ConnectorInfo{
			Dialect:     "mssql",
			DisplayName: "Microsoft SQL Server",
			Description: "SQL Server 2017+ and Azure SQL",
		},
		Factory: func(ctx context.Context, uri string, logger *zap.Logger) (warehouse.Connector, error) {
			return New(ctx, uri, logger)
		},
	})
}
