package services

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/Ananth-NQI/appointment-gateway/internal/apperr"
	"github.com/Ananth-NQI/appointment-gateway/internal/models"
	"github.com/Ananth-NQI/appointment-gateway/internal/storage"
)

type StoreAPIKeyRequest struct {
	PurposeID   string
	PurposeName string
	APIKey      string
}

type APIKeyInfo struct {
	ID          uint   `json:"id"`
	PurposeID   string `json:"purpose_id"`
	PurposeName string `json:"purpose_name"`
	IsActive    bool   `json:"is_active"`
	CreatedAt   string `json:"created_at,omitempty"`
}

// CachePurger drops every cached lookup made with an API key.
type CachePurger interface {
	ClearAll(ctx context.Context, apiKey string) (int, error)
}

// APIKeyService administers the per-purpose provider credentials.
// Secrets are write-only through this service.
type APIKeyService struct {
	store  storage.Store
	purger CachePurger
}

func NewAPIKeyService(store storage.Store, purger CachePurger) *APIKeyService {
	return &APIKeyService{store: store, purger: purger}
}

// Store creates the key for a purpose or replaces and reactivates the
// existing one. created reports which happened.
func (s *APIKeyService) Store(ctx context.Context, req StoreAPIKeyRequest) (info *APIKeyInfo, created bool, err error) {
	log := zerolog.Ctx(ctx).With().Str("purpose_id", req.PurposeID).Str("purpose_name", req.PurposeName).Logger()
	fail := apperr.New(apperr.StoreFailed, "Failed to store API key")

	key, err := s.store.GetAPIKeyByPurposeID(ctx, req.PurposeID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		key = &models.ApiKey{PurposeID: req.PurposeID}
		created = true
	case err != nil:
		log.Error().Err(err).Msg("load api key")
		return nil, false, fail
	default:
		if key.Secret != req.APIKey {
			s.purge(ctx, key.Secret)
		}
	}

	key.PurposeName = req.PurposeName
	key.Secret = req.APIKey
	key.IsActive = true
	if err := s.store.SaveAPIKey(ctx, key); err != nil {
		log.Error().Err(err).Msg("save api key")
		return nil, false, fail
	}

	if created {
		log.Info().Msg("api key created")
	} else {
		log.Info().Msg("api key updated")
	}
	return &APIKeyInfo{ID: key.ID, PurposeID: key.PurposeID, PurposeName: key.PurposeName, IsActive: key.IsActive}, created, nil
}

// List returns every key newest first, without secrets.
func (s *APIKeyService) List(ctx context.Context) ([]APIKeyInfo, error) {
	keys, err := s.store.ListAPIKeys(ctx)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("list api keys")
		return nil, apperr.New(apperr.FetchFailed, "Failed to fetch API keys")
	}

	out := make([]APIKeyInfo, 0, len(keys))
	for _, k := range keys {
		out = append(out, APIKeyInfo{
			ID:          k.ID,
			PurposeID:   k.PurposeID,
			PurposeName: k.PurposeName,
			IsActive:    k.IsActive,
			CreatedAt:   k.CreatedAt.Format(displayLayout),
		})
	}
	return out, nil
}

// Toggle flips the active flag of a key.
func (s *APIKeyService) Toggle(ctx context.Context, id uint) (*APIKeyInfo, error) {
	log := zerolog.Ctx(ctx).With().Uint("api_key_id", id).Logger()

	key, err := s.store.GetAPIKey(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, apperr.New(apperr.NotFound, "API key not found")
		}
		log.Error().Err(err).Msg("load api key")
		return nil, apperr.New(apperr.UpdateFailed, "Failed to update API key status")
	}

	key.IsActive = !key.IsActive
	if err := s.store.SaveAPIKey(ctx, key); err != nil {
		log.Error().Err(err).Msg("save api key")
		return nil, apperr.New(apperr.UpdateFailed, "Failed to update API key status")
	}
	if !key.IsActive {
		s.purge(ctx, key.Secret)
	}

	log.Info().Bool("is_active", key.IsActive).Msg("api key status toggled")
	return &APIKeyInfo{ID: key.ID, PurposeID: key.PurposeID, PurposeName: key.PurposeName, IsActive: key.IsActive}, nil
}

func (s *APIKeyService) Delete(ctx context.Context, id uint) error {
	log := zerolog.Ctx(ctx).With().Uint("api_key_id", id).Logger()

	key, err := s.store.GetAPIKey(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return apperr.New(apperr.NotFound, "API key not found")
		}
		log.Error().Err(err).Msg("load api key")
		return apperr.New(apperr.DeleteFailed, "Failed to delete API key")
	}

	if err := s.store.DeleteAPIKey(ctx, id); err != nil {
		log.Error().Err(err).Msg("delete api key")
		return apperr.New(apperr.DeleteFailed, "Failed to delete API key")
	}
	s.purge(ctx, key.Secret)

	log.Info().Msg("api key deleted")
	return nil
}

func (s *APIKeyService) purge(ctx context.Context, secret string) {
	if s.purger == nil || secret == "" {
		return
	}
	if _, err := s.purger.ClearAll(ctx, secret); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("purge lookup cache")
	}
}
