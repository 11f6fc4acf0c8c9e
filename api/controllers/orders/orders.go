package orders

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketcart-backend/api/middleware"
	"github.com/angelmondragon/marketcart-backend/api/responses"
	"github.com/angelmondragon/marketcart-backend/api/validators"
	internalorders "github.com/angelmondragon/marketcart-backend/internal/orders"
	"github.com/angelmondragon/marketcart-backend/internal/payments"
	"github.com/angelmondragon/marketcart-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketcart-backend/pkg/errors"
	"github.com/angelmondragon/marketcart-backend/pkg/logger"
)

// PaymentService is the slice of the payment orchestrator the order routes call.
type PaymentService interface {
	RetryHandle(ctx context.Context, customerID, orderID uuid.UUID, client enums.ClientType) (*payments.Handle, error)
	ReconcileOrder(ctx context.Context, orderID uuid.UUID, source string) (*payments.ReconcileResult, error)
}

// List returns the customer's orders, newest first.
func List(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		customerID, err := middleware.UserUUID(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		filters, err := parseListFilters(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		list, err := svc.ListForCustomer(r.Context(), customerID, filters)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

// SellerList returns the orders placed with the seller on the token.
func SellerList(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		sellerID, err := middleware.SellerUUID(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		filters, err := parseListFilters(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		list, err := svc.ListForSeller(r.Context(), sellerID, filters)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

// Detail returns the order when the caller is its customer, its seller or an admin.
func Detail(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		viewer, orderID, err := viewerAndOrder(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		detail, err := svc.Get(r.Context(), viewer, orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, detail)
	}
}

// CancelOrder cancels on behalf of the customer or the seller, whichever the token is.
func CancelOrder(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		viewer, orderID, err := viewerAndOrder(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload cancelRequest
		if err := validators.DecodeOptionalJSONBody(w, r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ctx := orderContext(r, logg, orderID)
		if err := svc.Cancel(ctx, viewer, orderID, validators.SanitizeString(payload.Reason, 280)); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"order_id": orderID, "status": enums.OrderStatusCancelled})
	}
}

// MarkReady moves a paid order to ready for pickup.
func MarkReady(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		viewer, orderID, err := viewerAndOrder(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ctx := orderContext(r, logg, orderID)
		if err := svc.MarkReady(ctx, viewer, orderID); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"order_id": orderID, "status": enums.OrderStatusReady})
	}
}

// PickupCode returns the QR payload the customer shows at the counter.
func PickupCode(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		viewer, orderID, err := viewerAndOrder(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		payload, err := svc.PickupCode(r.Context(), viewer, orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"order_id": orderID, "payload": payload})
	}
}

// ScanPickup redeems a scanned QR payload and completes the order.
func ScanPickup(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		viewer, err := viewerFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload scanRequest
		if err := validators.DecodeJSONBody(w, r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		detail, err := svc.ScanPickup(r.Context(), viewer, strings.TrimSpace(payload.Payload))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, detail)
	}
}

// RetryPayment swaps the payment handle of an unpaid order.
func RetryPayment(svc PaymentService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment service unavailable"))
			return
		}

		customerID, err := middleware.UserUUID(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := validators.PathUUID(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload retryRequest
		if err := validators.DecodeOptionalJSONBody(w, r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		client, err := enums.ParseClientType(payload.ClientType)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid client type"))
			return
		}

		ctx := orderContext(r, logg, orderID)
		handle, err := svc.RetryHandle(ctx, customerID, orderID, client)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, handle)
	}
}

// Reconcile re-reads the processor after the customer returns from the hosted
// payment page. The order is loaded through the viewer first so strangers get 404.
func Reconcile(orders internalorders.Service, svc PaymentService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if orders == nil || svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment service unavailable"))
			return
		}

		viewer, orderID, err := viewerAndOrder(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if _, err := orders.Get(r.Context(), viewer, orderID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ctx := orderContext(r, logg, orderID)
		result, err := svc.ReconcileOrder(ctx, orderID, internalorders.SourceRedirect)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

type cancelRequest struct {
	Reason string `json:"reason,omitempty" validate:"max=280"`
}

type scanRequest struct {
	Payload string `json:"payload" validate:"required,max=512"`
}

type retryRequest struct {
	ClientType string `json:"client_type,omitempty" validate:"omitempty,oneof=web native"`
}

func viewerFromRequest(r *http.Request) (internalorders.Viewer, error) {
	userID, err := middleware.UserUUID(r.Context())
	if err != nil {
		return internalorders.Viewer{}, err
	}
	viewer := internalorders.Viewer{
		UserID: userID,
		Role:   enums.Role(middleware.RoleFromContext(r.Context())),
	}
	if middleware.SellerIDFromContext(r.Context()) != "" {
		sellerID, err := middleware.SellerUUID(r.Context())
		if err != nil {
			return internalorders.Viewer{}, err
		}
		viewer.SellerID = &sellerID
	}
	return viewer, nil
}

func viewerAndOrder(r *http.Request) (internalorders.Viewer, uuid.UUID, error) {
	viewer, err := viewerFromRequest(r)
	if err != nil {
		return internalorders.Viewer{}, uuid.Nil, err
	}
	orderID, err := validators.PathUUID(r, "orderId")
	if err != nil {
		return internalorders.Viewer{}, uuid.Nil, err
	}
	return viewer, orderID, nil
}

func parseListFilters(r *http.Request) (internalorders.ListFilters, error) {
	limit, cursor, err := validators.ParsePage(r)
	if err != nil {
		return internalorders.ListFilters{}, err
	}
	filters := internalorders.ListFilters{Limit: limit, Cursor: cursor}
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			status, err := enums.ParseOrderStatus(strings.TrimSpace(part))
			if err != nil {
				return internalorders.ListFilters{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter").
					WithDetails(map[string]any{"field": "status"})
			}
			filters.Statuses = append(filters.Statuses, status)
		}
	}
	return filters, nil
}

func orderContext(r *http.Request, logg *logger.Logger, orderID uuid.UUID) context.Context {
	if logg == nil {
		return r.Context()
	}
	return logg.WithOrderID(r.Context(), orderID.String())
}
