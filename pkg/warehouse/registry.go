package warehouse

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// ConnectorInfo describes a registered dialect for API discovery.
type ConnectorInfo struct {
	Dialect     string `json:"dialect"`
	DisplayName string `json:"display_name"`
	Description string `json:"description"`
}

// Registration contains info plus the factory for creating connectors.
type Registration struct {
	Info    ConnectorInfo
	Factory func(ctx context.Context, uri string, logger *zap.Logger) (Connector, error)
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Registration)
)

// Register is called by each dialect's init() function.
// Thread-safe for concurrent init() calls.
func Register(reg Registration) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[reg.Info.Dialect] = reg
}

// RegisteredDialects returns info for all registered dialects.
func RegisteredDialects() []ConnectorInfo {
	registryMu.RLock()
	defer registryMu.RUnlock()

	result := make([]ConnectorInfo, 0, len(registry))
	for _, reg := range registry {
		result = append(result, reg.Info)
	}
	return result
}

// IsRegistered checks if a dialect is available.
func IsRegistered(dialect string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := registry[dialect]
	return ok
}

// NewConnector instantiates a connector for the given dialect and DSN.
// The caller owns the connector and must Close it on every exit path.
func NewConnector(ctx context.Context, dialect, uri string, logger *zap.Logger) (Connector, error) {
	registryMu.RLock()
	reg, ok := registry[dialect]
	registryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unsupported warehouse dialect: %s", dialect)
	}
	return reg.Factory(ctx, uri, logger)
}
