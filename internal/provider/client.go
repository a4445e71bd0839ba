package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/Ananth-NQI/appointment-gateway/internal/config"
	"github.com/Ananth-NQI/appointment-gateway/internal/models"
)

const (
	basePath         = "/core-api/api/app/external-api"
	locationsPath    = basePath + "/external-location-dropdown"
	purposesPath     = basePath + "/external-purpose-dropdown"
	usersPath        = basePath + "/external-user-dropdown"
	slotsPath        = basePath + "/external-appointment-slots"
	appointmentsPath = basePath + "/external-appointment"

	apiKeyHeader = "api-key"
)

// StatusError is returned when the provider answers with a non-2xx status.
type StatusError struct {
	Path   string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("provider %s: status %d: %s", e.Path, e.Status, e.Body)
}

// Client talks to the external scheduling API. Calls are never retried.
type Client struct {
	baseURL string
	timeout time.Duration
}

func NewClient(cfg config.ProviderConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{baseURL: cfg.BaseURL, timeout: timeout}
}

func (c *Client) Locations(ctx context.Context, apiKey, purposeID, targetDate string) ([]models.Location, error) {
	query := url.Values{}
	if purposeID != "" {
		query.Set("PurposeId", purposeID)
	}
	if targetDate != "" {
		query.Set("TargetDate", targetDate)
	}

	var raw []rawLocation
	if err := c.get(ctx, locationsPath, apiKey, query, &raw); err != nil {
		return nil, err
	}
	return normalizeLocations(raw), nil
}

func (c *Client) Purposes(ctx context.Context, apiKey string) ([]models.Purpose, error) {
	var raw []rawPurpose
	if err := c.get(ctx, purposesPath, apiKey, nil, &raw); err != nil {
		return nil, err
	}
	return normalizePurposes(raw), nil
}

func (c *Client) Users(ctx context.Context, apiKey string) ([]models.StaffUser, error) {
	var raw []rawUser
	if err := c.get(ctx, usersPath, apiKey, nil, &raw); err != nil {
		return nil, err
	}
	return normalizeUsers(raw), nil
}

func (c *Client) Slots(ctx context.Context, apiKey string, q SlotQuery) (models.SlotSchedule, error) {
	query := url.Values{}
	query.Set("Date", q.Date)
	query.Set("LocationId", q.LocationID)
	query.Set("PurposeId", q.PurposeID)
	query.Set("TimeZoneId", q.TimeZoneID)
	for _, id := range q.AssignedStaffIDs {
		query.Add("AssignedStaffIds", id)
	}

	var raw rawSlotSchedule
	if err := c.get(ctx, slotsPath, apiKey, query, &raw); err != nil {
		return models.SlotSchedule{}, err
	}
	return normalizeSlots(raw), nil
}

// CreateAppointment submits a booking and returns the provider's response body.
func (c *Client) CreateAppointment(ctx context.Context, apiKey string, req BookingRequest) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	agent := fiber.Post(c.baseURL + appointmentsPath)
	agent.Set(apiKeyHeader, apiKey)
	agent.Set(fiber.HeaderAccept, fiber.MIMEApplicationJSON)
	agent.Timeout(c.timeout)
	agent.JSON(req)

	body, err := c.do(ctx, appointmentsPath, agent)
	if err != nil {
		return nil, err
	}
	if len(body) == 0 {
		return json.RawMessage("{}"), nil
	}
	if !json.Valid(body) {
		zerolog.Ctx(ctx).Warn().
			Str("path", appointmentsPath).
			Str("body", truncate(string(body), 256)).
			Msg("provider returned a non-JSON booking response")
		wrapped, err := json.Marshal(map[string]string{"raw": string(body)})
		if err != nil {
			return nil, err
		}
		return json.RawMessage(wrapped), nil
	}
	return json.RawMessage(body), nil
}

func (c *Client) get(ctx context.Context, path, apiKey string, query url.Values, out any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	agent := fiber.Get(c.baseURL + path)
	agent.Set(apiKeyHeader, apiKey)
	agent.Set(fiber.HeaderAccept, fiber.MIMEApplicationJSON)
	agent.Timeout(c.timeout)
	if len(query) > 0 {
		agent.QueryString(query.Encode())
	}

	body, err := c.do(ctx, path, agent)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("provider %s: decode: %w", path, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, path string, agent *fiber.Agent) ([]byte, error) {
	started := time.Now()
	status, body, errs := agent.Bytes()
	log := zerolog.Ctx(ctx).Debug().Str("path", path).Int("status", status).Dur("took", time.Since(started))
	if len(errs) > 0 {
		log.Err(errs[0]).Msg("provider call failed")
		return nil, fmt.Errorf("provider %s: %w", path, errs[0])
	}
	log.Msg("provider call")

	if status < fiber.StatusOK || status >= fiber.StatusMultipleChoices {
		return nil, &StatusError{Path: path, Status: status, Body: truncate(string(body), 256)}
	}
	return body, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
