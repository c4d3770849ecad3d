package stripe

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/Dhoini/glucose-gateway/internal/domain"

	"github.com/stripe/stripe-go/v78"
)

const serviceName = "stripe"

// errorTypeAPIConnection - тип ошибки соединения, SDK больше не экспортирует константу.
const errorTypeAPIConnection stripe.ErrorType = "api_connection_error"

// isRetryableStripeError проверяет, является ли ошибка Stripe подходящей для повторной попытки
func isRetryableStripeError(err error) bool {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		if stripeErr.HTTPStatusCode == http.StatusTooManyRequests {
			return true
		}
		if stripeErr.Type == errorTypeAPIConnection {
			return true
		}
		// 501 не временная
		if stripeErr.HTTPStatusCode >= 500 && stripeErr.HTTPStatusCode != http.StatusNotImplemented {
			return true
		}
	}
	return false
}

// translateError переводит ошибку SDK в ExternalServiceError.
// Сообщение Stripe передается клиенту как есть.
func translateError(operation string, err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		kind := domain.UpstreamResponse
		if stripeErr.Type == errorTypeAPIConnection {
			kind = domain.UpstreamUnavailable
		}
		msg := stripeErr.Msg
		if msg == "" {
			msg = "failed to " + operation
		}
		return domain.NewExternalServiceError(serviceName, kind, string(stripeErr.Code), msg, stripeErr.HTTPStatusCode, err)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return domain.NewExternalServiceError(serviceName, domain.UpstreamTimeout, "timeout", "failed to "+operation+": timeout", 0, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return domain.NewExternalServiceError(serviceName, domain.UpstreamTimeout, "timeout", "failed to "+operation+": timeout", 0, err)
	}
	return domain.NewExternalServiceError(serviceName, domain.UpstreamUnavailable, "connection_error", "failed to "+operation, 0, err)
}
