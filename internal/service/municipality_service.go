package service

import (
	"context"
	"log/slog"
	"slices"

	"mmuni/internal/models"
	"mmuni/internal/observability"
	"mmuni/internal/repository"
)

// MunicipalityService backs the start screen's country, region and
// municipality pickers.
type MunicipalityService struct {
	muns    repository.MunicipalityRepository
	configs repository.ConfigRepository
}

func NewMunicipalityService(muns repository.MunicipalityRepository, configs repository.ConfigRepository) *MunicipalityService {
	return &MunicipalityService{muns: muns, configs: configs}
}

func (s *MunicipalityService) List(ctx context.Context) ([]models.Municipality, error) {
	return s.muns.List(ctx)
}

// Random picks the configured demo municipality when it is in the list,
// otherwise the first one.
func (s *MunicipalityService) Random(ctx context.Context, muns []models.Municipality) (*models.Municipality, error) {
	if len(muns) == 0 {
		return nil, models.NewNotFoundError("Municipality", "demo")
	}
	demo, err := s.configs.Get(ctx, models.ConfigDemoMunicipality)
	if err != nil {
		observability.Logger.DebugContext(ctx, "demo municipality not configured", slog.String("error", err.Error()))
	}
	if demo != "" {
		if i := slices.IndexFunc(muns, func(m models.Municipality) bool { return m.ID == demo }); i >= 0 {
			m := muns[i]
			return &m, nil
		}
	}
	first := muns[0]
	return &first, nil
}

// Countries lists distinct countries in first-seen order.
func Countries(muns []models.Municipality) []string {
	return distinct(muns, func(m models.Municipality) (string, bool) { return m.Country, true })
}

// Regions lists distinct regions of a country in first-seen order.
func Regions(muns []models.Municipality, country string) []string {
	return distinct(muns, func(m models.Municipality) (string, bool) {
		return m.Region, m.Country == country
	})
}

// InRegion filters municipalities by country and region.
func InRegion(muns []models.Municipality, country, region string) []models.Municipality {
	var out []models.Municipality
	for _, m := range muns {
		if m.Country == country && m.Region == region {
			out = append(out, m)
		}
	}
	return out
}

func distinct(muns []models.Municipality, pick func(models.Municipality) (string, bool)) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, m := range muns {
		v, ok := pick(m)
		if !ok || v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
