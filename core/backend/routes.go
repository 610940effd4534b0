package backend

import (
	"context"
	"net/http"

	"github.com/koscakluka/safewalk-core/core/geo"
	"go.opentelemetry.io/otel/attribute"
)

type routeRequest struct {
	StartLatitude  float64 `json:"start_latitude"`
	StartLongitude float64 `json:"start_longitude"`
	EndLatitude    float64 `json:"end_latitude"`
	EndLongitude   float64 `json:"end_longitude"`
}

type AvoidedZone struct {
	Lat  float64 `json:"lat"`
	Lng  float64 `json:"lng"`
	Risk float64 `json:"risk"`
	Name string  `json:"name"`
}

type RouteStep struct {
	Instruction string  `json:"instruction"`
	Distance    float64 `json:"distance"`
	Duration    float64 `json:"duration"`
	Name        string  `json:"name"`
}

// Route is a planned safe walking route. Distance is in kilometers and
// EstimatedTime in minutes.
type Route struct {
	Waypoints     []geo.Coordinate `json:"waypoints"`
	Distance      float64          `json:"distance"`
	EstimatedTime int              `json:"estimated_time"`
	RouteType     string           `json:"route_type"`
	AvoidedZones  []AvoidedZone    `json:"avoided_zones"`
	Steps         []RouteStep      `json:"steps"`
	Message       string           `json:"message"`
}

func (c *Client) PlanSafeRoute(ctx context.Context, start, end geo.Coordinate) (Route, error) {
	ctx, span := tracer.Start(ctx, "backend plan safe route")
	defer span.End()

	body, err := jsonBody(routeRequest{
		StartLatitude:  start.Lat,
		StartLongitude: start.Lng,
		EndLatitude:    end.Lat,
		EndLongitude:   end.Lng,
	})
	if err != nil {
		span.RecordError(err)
		return Route{}, err
	}

	var route Route
	if err := c.do(ctx, span, request{
		method:      http.MethodPost,
		path:        "/safe-walking-route",
		body:        body,
		contentType: "application/json",
	}, &route); err != nil {
		return Route{}, err
	}

	span.SetAttributes(
		attribute.String("route.type", route.RouteType),
		attribute.Float64("route.distance_km", route.Distance),
		attribute.Int("route.waypoints", len(route.Waypoints)),
		attribute.Int("route.avoided_zones", len(route.AvoidedZones)),
	)
	return route, nil
}
