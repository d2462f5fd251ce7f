// Package billing is a client of the remote purchase-billing provider. The
// provider confirms credit purchases; this service only reads from it, and
// all ledger writes stay in the application core.
package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
)

type Service struct {
	apiURL     string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	logger     zerolog.Logger
}

func (s *Service) LoggerComponent() string {
	return "Billing.Service"
}

func NewService(apiURL string, opts ...ServiceOption) (*Service, error) {
	c := &Service{
		apiURL:     apiURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     log.Logger,
	}

	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "billing",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state change")
		},
	})

	for _, o := range opts {
		o(c)
	}

	c.logger = c.logger.With().Str("component", c.LoggerComponent()).Logger()

	return c, nil
}

type ServiceOption func(*Service)

func WithLogger(l zerolog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = l
	}
}

func WithHTTPClient(hc *http.Client) ServiceOption {
	return func(s *Service) {
		s.httpClient = hc
	}
}

// GetPurchase fetches the settlement status of one purchase by receipt.
func (s *Service) GetPurchase(ctx context.Context, in *GetPurchaseRequest, out *GetPurchaseResponse) error {
	l := s.logger.With().
		Str("method", "GetPurchase").
		Str("receipt", in.Receipt).
		Logger()
	ctx = l.WithContext(ctx)

	if !ValidReceipt(in.Receipt) {
		return pkgerrors.Errorf("invalid receipt number %q", in.Receipt)
	}

	err := s.genericCall(ctx, http.MethodGet, fmt.Sprintf("/api/purchases/%s", in.Receipt), nil, out)
	if err != nil {
		return err
	}

	l.Debug().
		Str("purchase_status", out.Status).
		Int64("purchase_credits", out.Credits).
		Msg("GetPurchase success")

	return nil
}

// ListSettled fetches purchases settled since the given time.
func (s *Service) ListSettled(ctx context.Context, since time.Time, out *ListSettledResponse) error {
	l := s.logger.With().
		Str("method", "ListSettled").
		Time("since", since).
		Logger()
	ctx = l.WithContext(ctx)

	endpoint := fmt.Sprintf("/api/purchases?status=SETTLED&since=%d", since.Unix())

	return s.genericCall(ctx, http.MethodGet, endpoint, nil, out)
}

type RemoteError struct {
	ResponseBody string
	StatusCode   int
}

func NewRemoteError(responseBody string, statusCode int) *RemoteError {
	return &RemoteError{ResponseBody: responseBody, StatusCode: statusCode}
}

func (e *RemoteError) Error() string {
	return e.ResponseBody
}

func (s *Service) genericCall(ctx context.Context, method, endpoint string, in interface{}, out interface{}) error {
	l := zerolog.Ctx(ctx).With().Str("http_method", method).Str("endpoint", endpoint).Logger()
	ctx = l.WithContext(ctx)

	_, err := s.breaker.Execute(func() (interface{}, error) {
		res, err := s.request(ctx, method, endpoint, in)
		if err != nil {
			l.Error().Err(err).Msg("Service request failed")
			return nil, pkgerrors.Wrap(err, "request")
		}
		defer func() {
			_ = res.Body.Close()
		}()

		if res.StatusCode >= 400 {
			resBody := readString(res.Body)
			l.Error().
				Int("http_status", res.StatusCode).
				Str("http_body", resBody).
				Msg("Service responded with error")
			return nil, NewRemoteError(resBody, res.StatusCode)
		}

		if err := readJSON(res.Body, out); err != nil {
			return nil, pkgerrors.Wrap(err, "body read")
		}

		return nil, nil
	})

	return err
}

func (s *Service) request(
	ctx context.Context,
	method string,
	endpoint string,
	bodyParams interface{},
) (*http.Response, error) {
	fullURL := s.apiURL + endpoint
	l := zerolog.Ctx(ctx).With().
		Str("http_method", method).
		Str("url", fullURL).
		Logger()
	l.Debug().Msg("HTTP request")

	var body *bytes.Reader
	if bodyParams != nil {
		rawJSON, err := json.Marshal(bodyParams)
		if err != nil {
			return nil, fmt.Errorf("json encode: %w", err)
		}
		body = bytes.NewReader(rawJSON)
	} else {
		body = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, body)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}

	req.Header.Add("Content-Type", "application/json")
	req.Header.Add("Accept", "application/json")

	res, err := s.httpClient.Do(req)
	if err != nil {
		l.Error().Err(err).Msg("Call failed")
		return nil, fmt.Errorf("do request: %w", err)
	}

	return res, nil
}
