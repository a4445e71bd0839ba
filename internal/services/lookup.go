package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/Ananth-NQI/appointment-gateway/internal/apperr"
	"github.com/Ananth-NQI/appointment-gateway/internal/cache"
	"github.com/Ananth-NQI/appointment-gateway/internal/config"
	"github.com/Ananth-NQI/appointment-gateway/internal/models"
	"github.com/Ananth-NQI/appointment-gateway/internal/provider"
	"github.com/Ananth-NQI/appointment-gateway/internal/storage"
)

// Lookup types used in cache keys.
const (
	LookupLocations = "locations"
	LookupPurposes  = "purposes"
	LookupUsers     = "users"
)

// LookupTypes lists every cached lookup.
var LookupTypes = []string{LookupLocations, LookupPurposes, LookupUsers}

// Provider is the external scheduling API.
type Provider interface {
	Locations(ctx context.Context, apiKey, purposeID, targetDate string) ([]models.Location, error)
	Purposes(ctx context.Context, apiKey string) ([]models.Purpose, error)
	Users(ctx context.Context, apiKey string) ([]models.StaffUser, error)
	Slots(ctx context.Context, apiKey string, q provider.SlotQuery) (models.SlotSchedule, error)
	CreateAppointment(ctx context.Context, apiKey string, req provider.BookingRequest) (json.RawMessage, error)
}

// LookupService proxies provider dropdowns through the cache. Slot listings
// are never cached.
type LookupService struct {
	store    storage.Store
	provider Provider
	cache    cache.Cache
	keys     cache.Keys
	ttl      time.Duration
	timezone string
	loc      *time.Location
	now      func() time.Time
}

func NewLookupService(store storage.Store, p Provider, c cache.Cache, cfg config.Config) *LookupService {
	return &LookupService{
		store:    store,
		provider: p,
		cache:    c,
		keys:     cache.Keys{Prefix: cfg.Cache.Prefix},
		ttl:      cfg.Cache.TTL,
		timezone: cfg.Booking.DefaultTimezone,
		loc:      cfg.Booking.Location(),
		now:      time.Now,
	}
}

// WithClock replaces the time source used for "today".
func (s *LookupService) WithClock(now func() time.Time) *LookupService {
	s.now = now
	return s
}

// FindPurpose resolves a purpose by name using the API key registered under
// that name. A nil purpose with a nil error means no provider purpose matched.
func (s *LookupService) FindPurpose(ctx context.Context, purposeName string) (*models.Purpose, error) {
	log := zerolog.Ctx(ctx).With().Str("purpose_name", purposeName).Logger()

	key, err := s.store.GetActiveAPIKeyByPurposeName(ctx, purposeName)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, apperr.New(apperr.NoAPIKey, "No active API key found")
		}
		log.Error().Err(err).Msg("load api key")
		return nil, apperr.New(apperr.FetchFailed, "Failed to fetch purposes")
	}

	purposes, err := s.purposes(ctx, key.Secret)
	if err != nil {
		log.Error().Err(err).Msg("fetch purposes")
		return nil, apperr.New(apperr.FetchFailed, "Failed to fetch purposes")
	}

	found := matchPurpose(purposes, purposeName)
	if found == nil {
		return nil, nil
	}

	if key.PurposeID == "" && found.ID != "" {
		key.PurposeID = found.ID
		if err := s.store.SaveAPIKey(ctx, key); err != nil {
			log.Warn().Err(err).Msg("backfill purpose id")
		} else {
			log.Info().Str("purpose_id", found.ID).Msg("api key purpose id backfilled")
		}
	}
	return found, nil
}

// ListPurposes returns every purpose visible to the newest active key.
func (s *LookupService) ListPurposes(ctx context.Context) ([]models.Purpose, error) {
	key, err := s.store.GetLatestActiveAPIKey(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, apperr.New(apperr.NoAPIKey, "No active API key found")
		}
		zerolog.Ctx(ctx).Error().Err(err).Msg("load api key")
		return nil, apperr.New(apperr.FetchFailed, "Failed to fetch purposes")
	}

	purposes, err := s.purposes(ctx, key.Secret)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("fetch purposes")
		return nil, apperr.New(apperr.FetchFailed, "Failed to fetch purposes")
	}
	return purposes, nil
}

// matchPurpose returns the first purpose whose system or display name
// contains name, compared case-insensitively with hyphens read as spaces.
func matchPurpose(purposes []models.Purpose, name string) *models.Purpose {
	term := strings.ReplaceAll(strings.ToLower(name), "-", " ")
	for i := range purposes {
		p := purposes[i]
		if strings.Contains(strings.ToLower(p.SystemName), term) ||
			strings.Contains(strings.ToLower(p.DisplayName), term) {
			return &p
		}
	}
	return nil
}

// Locations lists provider locations for a purpose on targetDate
// (YYYY-MM-DD, today when empty).
func (s *LookupService) Locations(ctx context.Context, purposeID, targetDate string) ([]models.Location, error) {
	log := zerolog.Ctx(ctx).With().Str("purpose_id", purposeID).Logger()

	date, err := s.normalizeDate(targetDate)
	if err != nil {
		return nil, err
	}

	key, err := s.apiKeyFor(ctx, purposeID)
	if err != nil {
		return nil, err
	}

	params := map[string]string{"PurposeId": purposeID, "TargetDate": date}
	locations, err := cache.Remember(ctx, s.cache, s.keys.Key(LookupLocations, key.Secret, params), s.ttl,
		func() ([]models.Location, error) {
			return s.provider.Locations(ctx, key.Secret, purposeID, date)
		})
	if err != nil {
		log.Error().Err(err).Msg("fetch locations")
		return nil, apperr.New(apperr.FetchFailed, "Failed to fetch locations")
	}
	return locations, nil
}

// DefaultLocation returns the location flagged as default for the purpose.
func (s *LookupService) DefaultLocation(ctx context.Context, purposeID, targetDate string) (models.Location, error) {
	locations, err := s.Locations(ctx, purposeID, targetDate)
	if err != nil {
		return models.Location{}, err
	}
	loc, ok := models.DefaultLocation(locations)
	if !ok {
		return models.Location{}, apperr.New(apperr.NoDefaultLocation, "No default location could be found for this purpose.")
	}
	return loc, nil
}

// Users lists active staff for a purpose.
func (s *LookupService) Users(ctx context.Context, purposeID string) ([]models.StaffUser, error) {
	key, err := s.apiKeyFor(ctx, purposeID)
	if err != nil {
		return nil, err
	}

	users, err := cache.Remember(ctx, s.cache, s.keys.Key(LookupUsers, key.Secret, nil), s.ttl,
		func() ([]models.StaffUser, error) {
			return s.provider.Users(ctx, key.Secret)
		})
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("purpose_id", purposeID).Msg("fetch users")
		return nil, apperr.New(apperr.FetchFailed, "Failed to fetch users")
	}

	active := make([]models.StaffUser, 0, len(users))
	for _, u := range users {
		if u.IsActive {
			active = append(active, u)
		}
	}
	return active, nil
}

type SlotRequest struct {
	PurposeID        string
	Date             string
	LocationID       string
	Timezone         string
	AssignedStaffIDs []string
}

// Slots lists bookable windows. Without an explicit location the purpose's
// default location is used.
func (s *LookupService) Slots(ctx context.Context, req SlotRequest) (*models.SlotSchedule, error) {
	log := zerolog.Ctx(ctx).With().Str("purpose_id", req.PurposeID).Str("date", req.Date).Logger()

	key, err := s.apiKeyFor(ctx, req.PurposeID)
	if err != nil {
		return nil, err
	}

	date, err := s.normalizeDate(req.Date)
	if err != nil {
		return nil, err
	}

	locationID := req.LocationID
	if locationID == "" {
		loc, err := s.DefaultLocation(ctx, req.PurposeID, date)
		if err != nil {
			return nil, err
		}
		locationID = loc.LocationID
	}

	timezone := req.Timezone
	if timezone == "" {
		timezone = s.timezone
	}

	schedule, err := s.provider.Slots(ctx, key.Secret, provider.SlotQuery{
		Date:             date,
		LocationID:       locationID,
		PurposeID:        req.PurposeID,
		TimeZoneID:       timezone,
		AssignedStaffIDs: req.AssignedStaffIDs,
	})
	if err != nil {
		log.Error().Err(err).Str("location_id", locationID).Msg("fetch slots")
		return nil, apperr.New(apperr.FetchFailed, "Failed to fetch available slots")
	}
	return &schedule, nil
}

// ClearCache drops every cached entry of lookupType for apiKey.
func (s *LookupService) ClearCache(ctx context.Context, lookupType, apiKey string) (int, error) {
	return s.cache.DeletePrefix(ctx, s.keys.TypePrefix(lookupType, apiKey))
}

// ClearAll drops every cached lookup for apiKey.
func (s *LookupService) ClearAll(ctx context.Context, apiKey string) (int, error) {
	total := 0
	var errs []error
	for _, typ := range LookupTypes {
		n, err := s.ClearCache(ctx, typ, apiKey)
		total += n
		if err != nil {
			errs = append(errs, err)
		}
	}
	return total, errors.Join(errs...)
}

func (s *LookupService) purposes(ctx context.Context, secret string) ([]models.Purpose, error) {
	return cache.Remember(ctx, s.cache, s.keys.Key(LookupPurposes, secret, nil), s.ttl,
		func() ([]models.Purpose, error) {
			return s.provider.Purposes(ctx, secret)
		})
}

func (s *LookupService) apiKeyFor(ctx context.Context, purposeID string) (*models.ApiKey, error) {
	key, err := s.store.GetActiveAPIKeyByPurposeID(ctx, purposeID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, apperr.New(apperr.APIKeyNotFound, "API key not found for this purpose")
		}
		zerolog.Ctx(ctx).Error().Err(err).Str("purpose_id", purposeID).Msg("load api key")
		return nil, apperr.New(apperr.FetchFailed, "Failed to load API key")
	}
	return key, nil
}

// normalizeDate defaults an empty date to today and rejects past or
// malformed dates.
func (s *LookupService) normalizeDate(raw string) (string, error) {
	today := s.now().In(s.loc).Format(time.DateOnly)
	if raw == "" {
		return today, nil
	}
	parsed, err := time.ParseInLocation(time.DateOnly, raw, s.loc)
	if err != nil {
		return "", apperr.New(apperr.InvalidDateFormat, "Invalid date format for target_date. Use YYYY-MM-DD.")
	}
	date := parsed.Format(time.DateOnly)
	if date < today {
		return "", apperr.New(apperr.InvalidDate, "Target date cannot be in the past.")
	}
	return date, nil
}
