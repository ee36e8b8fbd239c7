package ai

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/openai/openai-go/v2"
	"google.golang.org/genai"

	"avatar-live-server/internal/domain"
)

// Classify maps any adapter failure onto the domain taxonomy. Errors that are
// already a *domain.ProviderError pass through unchanged.
func Classify(provider string, err error) error {
	if err == nil {
		return nil
	}
	var pe *domain.ProviderError
	if errors.As(err, &pe) {
		return err
	}

	var oe *openai.Error
	if errors.As(err, &oe) {
		return ClassifyStatus(provider, oe.StatusCode, err)
	}
	var ge genai.APIError
	if errors.As(err, &ge) {
		return ClassifyStatus(provider, ge.Code, err)
	}
	var gep *genai.APIError
	if errors.As(err, &gep) {
		return ClassifyStatus(provider, gep.Code, err)
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return domain.NewProviderError(provider, domain.ErrTimeout, 0, err)
	case errors.Is(err, context.Canceled):
		// caller went away; not worth another attempt
		return domain.NewProviderError(provider, domain.ErrInvalidRequest, 0, err)
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return domain.NewProviderError(provider, domain.ErrTimeout, 0, err)
	}
	return domain.NewProviderError(provider, domain.ErrTransport, 0, err)
}

// ClassifyStatus maps an HTTP status returned by a provider.
func ClassifyStatus(provider string, status int, cause error) error {
	var kind error
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		kind = domain.ErrAuth
	case status == http.StatusTooManyRequests:
		kind = domain.ErrRateLimited
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		kind = domain.ErrTimeout
	case status >= 500:
		kind = domain.ErrTransport
	case status >= 400:
		kind = domain.ErrInvalidRequest
	default:
		kind = domain.ErrTransport
	}
	return domain.NewProviderError(provider, kind, status, cause)
}
