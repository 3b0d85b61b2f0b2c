// README: JSON response helpers and sentinel-to-status error mapping.
package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"towline/internal/geo"
	"towline/internal/modules/dispatch"
	"towline/internal/modules/driver"
	"towline/internal/modules/payment"
	"towline/internal/modules/pricing"
	"towline/internal/modules/towjob"
	"towline/internal/types"
)

// statusFor maps domain sentinels onto HTTP statuses. Anything unmapped is a
// 500 with a generic body so internals never leak.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, towjob.ErrBadRequest),
		errors.Is(err, pricing.ErrInvalidLookup),
		errors.Is(err, geo.ErrInvalidCoordinate):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, towjob.ErrNotFound),
		errors.Is(err, driver.ErrNotFound),
		errors.Is(err, dispatch.ErrNoOffer):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, towjob.ErrNotAssigned):
		return http.StatusForbidden, err.Error()
	case errors.Is(err, towjob.ErrInvalidTransition),
		errors.Is(err, towjob.ErrTerminalState),
		errors.Is(err, towjob.ErrActiveJob),
		errors.Is(err, towjob.ErrConflict):
		return http.StatusConflict, err.Error()
	case errors.Is(err, payment.ErrGateway):
		return http.StatusBadGateway, payment.ErrGateway.Error()
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func writeError(c *gin.Context, err error) {
	status, msg := statusFor(err)
	c.JSON(status, gin.H{"error": msg})
}

func jobView(j *towjob.TowJob) gin.H {
	v := gin.H{
		"id":              j.ID,
		"customer_id":     j.CustomerID,
		"status":          j.Status,
		"status_version":  j.StatusVersion,
		"pickup":          j.Pickup,
		"dropoff":         j.Dropoff,
		"pickup_address":  j.PickupAddress,
		"dropoff_address": j.DropoffAddress,
		"service_type_id": j.ServiceTypeID,
		"vehicle_type_id": j.VehicleTypeID,
		"tow_reason_id":   j.TowReasonID,
		"vehicle":         j.Vehicle,
		"distance_miles":  j.DistanceMiles,
		"quoted_price":    j.QuotedPrice,
		"driver_payout":   j.DriverPayout,
		"platform_fee":    j.PlatformFee,
		"payment_status":  j.PaymentStatus,
		"surge":           j.Surge,
		"created_at":      j.CreatedAt,
	}
	if j.DriverID != nil {
		v["driver_id"] = *j.DriverID
	}
	if j.CancelReason != nil {
		v["cancel_reason"] = *j.CancelReason
	}
	if j.CustomerRating != nil {
		v["customer_rating"] = *j.CustomerRating
	}
	if j.DriverRating != nil {
		v["driver_rating"] = *j.DriverRating
	}
	if j.AcceptedAt != nil {
		v["accepted_at"] = *j.AcceptedAt
	}
	if j.CompletedAt != nil {
		v["completed_at"] = *j.CompletedAt
	}
	if j.CancelledAt != nil {
		v["cancelled_at"] = *j.CancelledAt
	}
	return v
}

func pathID(c *gin.Context) types.ID {
	return types.ID(c.Param("id"))
}
