package webhooks

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/angelmondragon/storefront-backend/api/responses"
	razorpaywebhook "github.com/angelmondragon/storefront-backend/internal/webhooks/razorpay"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

const (
	signatureHeader = "X-Razorpay-Signature"
	maxBodyBytes    = 1 << 20
)

// RazorpayWebhookService processes one signed provider delivery.
type RazorpayWebhookService interface {
	Handle(ctx context.Context, body []byte, signature string) razorpaywebhook.Result
}

// RazorpayWebhook hands the raw body to the webhook service and replies with
// its status. The provider retries anything other than a 2xx.
func RazorpayWebhook(svc RazorpayWebhookService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}

		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				responses.WriteJSON(w, http.StatusRequestEntityTooLarge, razorpaywebhook.Result{Status: razorpaywebhook.StatusError, Message: "payload too large"})
				return
			}
			responses.WriteJSON(w, http.StatusBadRequest, razorpaywebhook.Result{Status: razorpaywebhook.StatusError, Message: "unreadable body"})
			return
		}

		result := svc.Handle(ctx, body, r.Header.Get(signatureHeader))
		status := result.HTTPStatus
		if status == 0 {
			status = http.StatusOK
		}
		responses.WriteJSON(w, status, result)
	}
}
