// Package client calls the public booking API from other internal tools.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"gprbooking/internal/models"

	"github.com/redis/go-redis/v9"
)

const cachePrefix = "gprbooking:client:"

// APIError is a non-2xx answer from the booking API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("booking api: http %d", e.StatusCode)
	}
	return fmt.Sprintf("booking api: http %d: %s", e.StatusCode, e.Message)
}

// SlotTakenError is returned by CreateBooking when the API answers 409.
type SlotTakenError struct {
	Result models.CheckAvailabilityResponse
}

func (e *SlotTakenError) Error() string {
	if e.Result.Reason != "" {
		return "slot not available: " + e.Result.Reason
	}
	return "slot not available"
}

// BookingRequest mirrors the POST /api/v1/bookings body.
type BookingRequest struct {
	Date    string `json:"date"`
	Time    string `json:"time,omitempty"`
	Service string `json:"service"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone,omitempty"`
	Address string `json:"address,omitempty"`
	Notes   string `json:"notes,omitempty"`
}

// Client is a small HTTP client for the availability and booking endpoints.
type Client struct {
	baseURL    string
	httpClient *http.Client

	redis    *redis.Client
	cacheTTL time.Duration
}

func New(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// UseRedisCache caches availability and catalog reads for ttl.
func (c *Client) UseRedisCache(redisClient *redis.Client, ttl time.Duration) {
	c.redis = redisClient
	c.cacheTTL = ttl
}

func (c *Client) cacheEnabled() bool {
	return c.redis != nil && c.cacheTTL > 0
}

// CheckAvailability queries one date, optionally narrowed to a time of day.
// Answers are cached per date in a Redis hash so a booking can drop the whole day at once.
func (c *Client) CheckAvailability(ctx context.Context, date, slotTime, service string) (*models.CheckAvailabilityResponse, error) {
	q := url.Values{}
	q.Set("date", date)
	if slotTime != "" {
		q.Set("time", slotTime)
	}
	q.Set("service", service)
	endpoint := c.baseURL + "/api/v1/availability?" + q.Encode()

	dayKey := cachePrefix + "availability:" + date
	field := slotTime + "|" + service

	var resp models.CheckAvailabilityResponse
	if c.cacheEnabled() {
		if raw, err := c.redis.HGet(ctx, dayKey, field).Result(); err == nil {
			if json.Unmarshal([]byte(raw), &resp) == nil {
				return &resp, nil
			}
		}
	}

	if err := c.doGet(ctx, endpoint, &resp); err != nil {
		return nil, err
	}

	if c.cacheEnabled() {
		if data, err := json.Marshal(resp); err == nil {
			pipe := c.redis.TxPipeline()
			pipe.HSet(ctx, dayKey, field, data)
			pipe.Expire(ctx, dayKey, c.cacheTTL)
			_, _ = pipe.Exec(ctx)
		}
	}
	return &resp, nil
}

// ListServices returns the active services catalog.
func (c *Client) ListServices(ctx context.Context) ([]models.SurveyService, error) {
	cacheKey := cachePrefix + "services"
	var wrap struct {
		Services []models.SurveyService `json:"services"`
	}

	if c.readCache(ctx, cacheKey, &wrap) {
		return wrap.Services, nil
	}
	if err := c.doGet(ctx, c.baseURL+"/api/v1/services", &wrap); err != nil {
		return nil, err
	}
	c.writeCache(ctx, cacheKey, wrap)
	return wrap.Services, nil
}

// CreateBooking submits a booking. A taken slot yields *SlotTakenError with the server's verdict.
func (c *Client) CreateBooking(ctx context.Context, in BookingRequest) (*models.CreateBookingResponse, error) {
	var resp models.CreateBookingResponse
	err := c.doPost(ctx, c.baseURL+"/api/v1/bookings", in, &resp)
	c.invalidateDay(ctx, in.Date)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) invalidateDay(ctx context.Context, date string) {
	if !c.cacheEnabled() || date == "" {
		return
	}
	_ = c.redis.Del(ctx, cachePrefix+"availability:"+date).Err()
}

func (c *Client) readCache(ctx context.Context, key string, out any) bool {
	if !c.cacheEnabled() {
		return false
	}
	val, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		return false
	}
	return json.Unmarshal(val, out) == nil
}

func (c *Client) writeCache(ctx context.Context, key string, val any) {
	if !c.cacheEnabled() {
		return
	}
	data, err := json.Marshal(val)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, key, data, c.cacheTTL).Err()
}

func (c *Client) doGet(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) doPost(ctx context.Context, endpoint string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	req.Header.Set("Accept", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}

	if resp.StatusCode == http.StatusConflict && req.Method == http.MethodPost {
		var verdict models.CheckAvailabilityResponse
		if json.Unmarshal(body, &verdict) == nil {
			return &SlotTakenError{Result: verdict}
		}
	}
	if resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(body, &apiErr)
		return &APIError{StatusCode: resp.StatusCode, Message: apiErr.Error}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s response: %w", req.URL.Path, err)
	}
	return nil
}

// IsSlotTaken reports whether err came from a 409 on booking creation.
func IsSlotTaken(err error) bool {
	var taken *SlotTakenError
	return errors.As(err, &taken)
}
