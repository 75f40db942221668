package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	pkgerrors "github.com/pkg/errors"
	"google.golang.org/genai"

	apperrors "github.com/diogo/geminichat/internal/errors"
)

// RetryConfig defines retry behavior for transient model errors
type RetryConfig struct {
	MaxRetries    int
	BackoffBase   time.Duration
	BackoffFactor float64
	MaxBackoff    time.Duration
}

// DefaultRetryConfig returns the retry policy used when none is configured
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:    3,
		BackoffBase:   time.Second,
		BackoffFactor: 2.0,
		MaxBackoff:    20 * time.Second,
	}
}

func (r RetryConfig) backOff(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = r.BackoffBase
	exp.Multiplier = r.BackoffFactor
	exp.MaxInterval = r.MaxBackoff
	exp.MaxElapsedTime = 0
	exp.RandomizationFactor = 0.2
	exp.Reset()

	retries := r.MaxRetries
	if retries < 0 {
		retries = 0
	}
	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(retries)), ctx)
}

// transientStatus lists HTTP codes worth retrying
var transientStatus = map[int]bool{
	http.StatusRequestTimeout:      true,
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

// classifyError maps an SDK error onto a TransportError. Cancellation by the
// caller is permanent; network-level failures and throttling are transient.
func classifyError(ctx context.Context, err error) *apperrors.TransportError {
	wrapped := pkgerrors.Wrap(err, "gemini generate content")

	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return apperrors.NewTransportError(0, false, wrapped)
	}

	if code, ok := apiErrorCode(err); ok {
		return apperrors.NewTransportError(code, transientStatus[code], wrapped)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return apperrors.NewTransportError(0, true, wrapped)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return apperrors.NewTransportError(0, true, wrapped)
	}

	return apperrors.NewTransportError(0, false, wrapped)
}

func apiErrorCode(err error) (int, bool) {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code, true
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return apiErrPtr.Code, true
	}
	return 0, false
}
