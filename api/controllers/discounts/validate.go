package discounts

import (
	"context"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/api/middleware"
	"github.com/angelmondragon/storefront-backend/api/responses"
	"github.com/angelmondragon/storefront-backend/api/validators"
	internaldiscounts "github.com/angelmondragon/storefront-backend/internal/discounts"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

// Previewer validates a code against a cart and prices it.
type Previewer interface {
	Preview(ctx context.Context, code string, cart internaldiscounts.CartSnapshot) (*internaldiscounts.Validation, internaldiscounts.Calculation, error)
}

// ValidateRequest is a code plus the cart it should apply to.
type ValidateRequest struct {
	Code           string                       `json:"code" validate:"required,max=64"`
	Items          []internaldiscounts.CartItem `json:"items" validate:"required,min=1,dive"`
	ShippingAmount decimal.Decimal              `json:"shipping_amount"`
	Segments       []string                     `json:"segments,omitempty"`
	Country        string                       `json:"country,omitempty" validate:"omitempty,len=2"`
}

// ValidateResponse reports whether the code applies and what it is worth.
type ValidateResponse struct {
	Valid            bool                             `json:"valid"`
	Code             string                           `json:"code"`
	Reason           internaldiscounts.Reason         `json:"reason,omitempty"`
	Message          string                           `json:"message,omitempty"`
	Type             string                           `json:"type,omitempty"`
	DiscountAmount   decimal.Decimal                  `json:"discount_amount"`
	ShippingDiscount decimal.Decimal                  `json:"shipping_discount"`
	TotalDiscount    decimal.Decimal                  `json:"total_discount"`
	RewardUnits      int                              `json:"reward_units,omitempty"`
	Lines            []internaldiscounts.LineDiscount `json:"lines,omitempty"`
}

// Validate previews a discount code. A code that fails a gate is a 200 with
// valid=false and the gate's reason; other failures are errors.
func Validate(svc Previewer, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "discount service unavailable"))
			return
		}

		var payload ValidateRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		cart := internaldiscounts.CartSnapshot{
			Items:          payload.Items,
			ShippingAmount: payload.ShippingAmount,
			Customer: internaldiscounts.Customer{
				Segments: payload.Segments,
				Country:  strings.ToUpper(payload.Country),
			},
		}
		if actor := middleware.ActorFromContext(r.Context()); actor != nil {
			cart.Customer.CustomerID = actor.UserID
		}

		validation, calc, err := svc.Preview(r.Context(), payload.Code, cart)
		if err != nil {
			if reason := internaldiscounts.ReasonOf(err); reason != "" {
				resp := ValidateResponse{Code: payload.Code, Reason: reason}
				if typed := pkgerrors.As(err); typed != nil {
					resp.Message = typed.Message()
				}
				responses.WriteSuccess(w, resp)
				return
			}
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		resp := ValidateResponse{
			Valid:            true,
			Code:             payload.Code,
			DiscountAmount:   calc.DiscountAmount,
			ShippingDiscount: calc.ShippingDiscount,
			TotalDiscount:    calc.Total(),
			RewardUnits:      calc.RewardUnits,
			Lines:            calc.Lines,
		}
		if validation != nil && validation.Discount != nil {
			resp.Code = validation.Discount.Code
			resp.Type = string(validation.Discount.Type)
		}
		responses.WriteSuccess(w, resp)
	}
}
