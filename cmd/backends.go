package cmd

import (
	"context"
	"fmt"

	"github.com/Kashuab/openpark/internal/config"
	"github.com/Kashuab/openpark/internal/secretstore"
	"github.com/Kashuab/openpark/internal/secretstore/gcpsm"
	"github.com/Kashuab/openpark/internal/slotstore"
	slotfirestore "github.com/Kashuab/openpark/internal/slotstore/firestore"
	slotmem "github.com/Kashuab/openpark/internal/slotstore/memory"
	slotmongo "github.com/Kashuab/openpark/internal/slotstore/mongo"
	"github.com/Kashuab/openpark/internal/slotstore/sqlstore"
)

func newSlotStore(ctx context.Context, cfg config.StoreBackendConfig, secrets secretstore.SecretStore) (slotstore.SlotStore, error) {
	switch cfg.Type {
	case "memory":
		return slotmem.New(), nil
	case "firestore":
		return slotfirestore.New(ctx, cfg.Project, cfg.Collection)
	case "sql":
		dsn, err := secretstore.Resolve(ctx, secrets, cfg.DSN, cfg.DSNSecret)
		if err != nil {
			return nil, err
		}
		return sqlstore.Open(cfg.Driver, dsn)
	case "mongo":
		return slotmongo.New(ctx, cfg.URI, cfg.Database, cfg.Collection)
	default:
		return nil, fmt.Errorf("unknown store backend type: %q", cfg.Type)
	}
}

func newGCPSecretStore(ctx context.Context, cfg config.SecretBackendConfig) (secretstore.SecretStore, error) {
	return gcpsm.New(ctx, cfg.Project)
}
