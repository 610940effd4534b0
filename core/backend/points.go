package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/koscakluka/safewalk-core/core/geo"
	"go.opentelemetry.io/otel/attribute"
)

// WalkingRouteClaim asks the points service to reward a completed walk.
type WalkingRouteClaim struct {
	Start       geo.Coordinate
	Destination geo.Coordinate
}

type walkingRouteRequest struct {
	StartLatitude        float64 `json:"start_latitude"`
	StartLongitude       float64 `json:"start_longitude"`
	DestinationLatitude  float64 `json:"destination_latitude"`
	DestinationLongitude float64 `json:"destination_longitude"`
}

type ClaimResult struct {
	Message      string `json:"message"`
	PointsEarned int    `json:"points_earned"`
}

// ClaimWalkingRoute submits the claim with the user's bearer token. A claim the
// service already paid out is reported as ErrDuplicateClaim, a missing or
// rejected token as ErrPermissionDenied.
func (c *Client) ClaimWalkingRoute(ctx context.Context, claim WalkingRouteClaim) (ClaimResult, error) {
	ctx, span := tracer.Start(ctx, "backend claim walking route")
	defer span.End()

	body, err := jsonBody(walkingRouteRequest{
		StartLatitude:        claim.Start.Lat,
		StartLongitude:       claim.Start.Lng,
		DestinationLatitude:  claim.Destination.Lat,
		DestinationLongitude: claim.Destination.Lng,
	})
	if err != nil {
		span.RecordError(err)
		return ClaimResult{}, err
	}

	var result ClaimResult
	err = c.do(ctx, span, request{
		method:      http.MethodPost,
		path:        "/api/points/walking-route",
		body:        body,
		contentType: "application/json",
		auth:        true,
	}, &result)

	var statusErr *StatusError
	if errors.As(err, &statusErr) && isDuplicateClaim(statusErr.StatusCode, statusErr.Detail) {
		logger.Info("walking route already claimed", "detail", statusErr.Detail)
		return ClaimResult{Message: statusErr.Detail}, fmt.Errorf("%w: %w", ErrDuplicateClaim, statusErr)
	}
	if err != nil {
		return ClaimResult{}, err
	}

	span.SetAttributes(attribute.Int("points.earned", result.PointsEarned))
	return result, nil
}
