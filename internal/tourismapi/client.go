// Package tourismapi реализует клиент REST API путеводителя: каталог мест по категориям,
// избранное, курсы валют и профиль пользователя.
//
// Ошибки транспорта и ответы сервера сводятся к набору ErrOffline, ErrServer,
// ErrDecode, ErrUnknown и *UserError, которые репозитории показывают пользователю через UserMessage.
package tourismapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/magabrotheeeer/tourism-companion/internal/metrics"
	"github.com/magabrotheeeer/tourism-companion/internal/models"
)

// TokenSource отдаёт токен доступа текущего пользователя. Пустая строка — пользователь не вошёл.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Client — клиент API путеводителя.
type Client struct {
	baseURL     string
	currencyURL string
	httpClient  *http.Client
	tokens      TokenSource
	limiter     *rate.Limiter
	metrics     *metrics.Metrics
}

// Option настраивает Client.
type Option func(*Client)

// WithHTTPClient задаёт http.Client для запросов.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTimeout ограничивает время одного запроса. Ноль — без ограничения.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithRateLimit ограничивает частоту запросов. rps <= 0 снимает ограничение.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithMetrics включает учёт запросов в m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// NewClient создаёт клиент для API по адресу baseURL. currencyURL — полный адрес
// источника курсов валют; если он пуст, используется baseURL + "/currency".
func NewClient(baseURL, currencyURL string, tokens TokenSource, opts ...Option) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	if currencyURL == "" {
		currencyURL = baseURL + "/currency"
	}
	c := &Client{
		baseURL:     baseURL,
		currencyURL: currencyURL,
		httpClient:  &http.Client{},
		tokens:      tokens,
		limiter:     rate.NewLimiter(rate.Inf, 0),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// AllPlaces загружает полный каталог мест всех категорий вместе с хэшами.
func (c *Client) AllPlaces(ctx context.Context) (*AllPlacesDTO, error) {
	const op = "tourismapi.AllPlaces"

	var resp AllPlacesDTO
	if err := c.do(ctx, "places", http.MethodGet, c.baseURL+"/places", nil, &resp); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &resp, nil
}

// PlacesByCategory загружает места одной категории и её текущий хэш.
func (c *Client) PlacesByCategory(ctx context.Context, category models.Category) (*CategoryDTO, error) {
	const op = "tourismapi.PlacesByCategory"

	url := c.baseURL + "/places/category/" + strconv.FormatInt(int64(category), 10)
	var resp CategoryDTO
	if err := c.do(ctx, "places_by_category", http.MethodGet, url, nil, &resp); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &resp, nil
}

// Favorites загружает избранные места пользователя.
func (c *Client) Favorites(ctx context.Context) ([]PlaceDTO, error) {
	const op = "tourismapi.Favorites"

	var resp favoritesResponse
	if err := c.do(ctx, "favorites", http.MethodGet, c.baseURL+"/favorites", nil, &resp); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return resp.Data, nil
}

// Currency загружает курсы валют.
func (c *Client) Currency(ctx context.Context) ([]CurrencyDTO, error) {
	const op = "tourismapi.Currency"

	var resp currenciesResponse
	if err := c.do(ctx, "currency", http.MethodGet, c.currencyURL, nil, &resp); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return resp.Currencies, nil
}

// PersonalData загружает профиль пользователя.
func (c *Client) PersonalData(ctx context.Context) (*PersonalDataDTO, error) {
	const op = "tourismapi.PersonalData"

	var resp personalDataResponse
	if err := c.do(ctx, "personal_data", http.MethodGet, c.baseURL+"/user/personal-data", nil, &resp); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &resp.Data, nil
}

// UpdatePersonalData отправляет изменённый профиль и возвращает его версию с сервера.
func (c *Client) UpdatePersonalData(ctx context.Context, req UpdatePersonalDataRequest) (*PersonalDataDTO, error) {
	const op = "tourismapi.UpdatePersonalData"

	var resp personalDataResponse
	if err := c.do(ctx, "update_personal_data", http.MethodPut, c.baseURL+"/user/personal-data", req, &resp); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &resp.Data, nil
}

// SignOut завершает сессию пользователя на сервере.
func (c *Client) SignOut(ctx context.Context) (*SimpleResponse, error) {
	const op = "tourismapi.SignOut"

	var resp SimpleResponse
	if err := c.do(ctx, "sign_out", http.MethodPost, c.baseURL+"/auth/sign-out", nil, &resp); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &resp, nil
}

func (c *Client) newRequest(ctx context.Context, method, url string, body any) (*http.Request, error) {
	var buf io.Reader = http.NoBody
	if body != nil {
		b := &bytes.Buffer{}
		if err := json.NewEncoder(b).Encode(body); err != nil {
			return nil, err
		}
		buf = b
	}
	req, err := http.NewRequestWithContext(ctx, method, url, buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Request-ID", uuid.NewString())

	if c.tokens != nil {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return nil, err
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}
	return req, nil
}

func (c *Client) do(ctx context.Context, resource, method, url string, body, out any) (err error) {
	start := time.Now()
	defer func() {
		c.metrics.ObserveRequest(resource, outcome(err), time.Since(start))
	}()

	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrOffline, err)
	}

	req, err := c.newRequest(ctx, method, url, body)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrOffline, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("%w: %w", ErrDecode, err)
		}
		return nil
	case resp.StatusCode == http.StatusUnprocessableEntity:
		// тело без сообщения всё равно означает отказ в запросе, текст подставит UserMessage
		var e errorResponse
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return &UserError{Message: e.Message}
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: %s", ErrServer, resp.Status)
	default:
		return fmt.Errorf("%w: unexpected status %s", ErrUnknown, resp.Status)
	}
}
