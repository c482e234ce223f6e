package repository

import (
	"context"

	"mmuni/internal/models"
	"mmuni/internal/remote"
)

// ConfigRepository reads the `config` table.
type ConfigRepository interface {
	All(ctx context.Context) ([]models.ConfigEntry, error)
	Get(ctx context.Context, key string) (string, error)
}

type configRepository struct {
	client *remote.Client
}

// NewConfigRepository creates a new ConfigRepository
func NewConfigRepository(client *remote.Client) ConfigRepository {
	return &configRepository{client: client}
}

func (r *configRepository) All(ctx context.Context) ([]models.ConfigEntry, error) {
	return remote.Select[models.ConfigEntry](ctx, r.client, remote.From("config"))
}

// Get returns the value stored under key. A missing key is NOT_FOUND.
func (r *configRepository) Get(ctx context.Context, key string) (string, error) {
	row, err := remote.Single[models.ConfigEntry](ctx, r.client, remote.From("config").Eq("config_key", key))
	if err != nil {
		return "", err
	}
	return row.Value, nil
}
