// Package repository provides table access over the remote data client.
package repository

import (
	"context"

	"mmuni/internal/models"
	"mmuni/internal/observability"
	"mmuni/internal/remote"
)

// MunicipalityRepository reads the `mun` reference table.
type MunicipalityRepository interface {
	List(ctx context.Context) ([]models.Municipality, error)
	GetByID(ctx context.Context, id string) (*models.Municipality, error)
}

type municipalityRepository struct {
	client *remote.Client
	log    *observability.RepoLogger
}

// NewMunicipalityRepository creates a new MunicipalityRepository
func NewMunicipalityRepository(client *remote.Client) MunicipalityRepository {
	return &municipalityRepository{client: client, log: observability.NewRepoLogger("mun")}
}

func (r *municipalityRepository) List(ctx context.Context) ([]models.Municipality, error) {
	rows, err := remote.Select[models.Municipality](ctx, r.client,
		remote.From("mun").Order("mun_country", true).Order("mun_name", true))
	if err != nil {
		r.log.LogError(ctx, err, "list")
		return nil, err
	}
	r.log.LogRead(ctx, map[string]any{"count": len(rows)})
	return rows, nil
}

func (r *municipalityRepository) GetByID(ctx context.Context, id string) (*models.Municipality, error) {
	m, err := remote.Single[models.Municipality](ctx, r.client, remote.From("mun").Eq("mun_id", id))
	if err != nil {
		r.log.LogError(ctx, err, "get")
		return nil, err
	}
	return m, nil
}
