package outcome

import (
	"database/sql"
	"fmt"

	"go.mongodb.org/mongo-driver/mongo"

	"connectivity/internal/config"
	"connectivity/internal/constants"
)

// NewStore picks the configured backend and wraps it in a circuit breaker
// when one is enabled.
func NewStore(cfg *config.Config, pg *sql.DB, mdb *mongo.Database) (Store, error) {
	var store Store
	switch cfg.Database.ResultStore {
	case constants.ResultStorePostgres:
		if pg == nil {
			return nil, fmt.Errorf("result store %q requires a postgres connection", cfg.Database.ResultStore)
		}
		store = NewPostgresStore(pg)
	case constants.ResultStoreMongoDB:
		if mdb == nil {
			return nil, fmt.Errorf("result store %q requires a mongodb connection", cfg.Database.ResultStore)
		}
		store = NewMongoStore(mdb)
	default:
		return nil, fmt.Errorf("unknown result store: %s", cfg.Database.ResultStore)
	}

	return NewCircuitBreakerStore(store, "result-store-"+cfg.Database.ResultStore, cfg.CircuitBreaker), nil
}
