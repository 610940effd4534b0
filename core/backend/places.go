package backend

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/koscakluka/safewalk-core/core/geo"
	"go.opentelemetry.io/otel/attribute"
)

// Place is a single place search hit. The service reports coordinates as
// strings with x as longitude and y as latitude.
type Place struct {
	Name        string `json:"place_name"`
	Address     string `json:"address_name"`
	RoadAddress string `json:"road_address_name"`
	Category    string `json:"category_name"`
	Phone       string `json:"phone"`
	X           string `json:"x"`
	Y           string `json:"y"`
}

func (p Place) Coordinate() (geo.Coordinate, error) {
	lng, err := strconv.ParseFloat(strings.TrimSpace(p.X), 64)
	if err != nil {
		return geo.Coordinate{}, fmt.Errorf("invalid longitude %q: %w", p.X, err)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(p.Y), 64)
	if err != nil {
		return geo.Coordinate{}, fmt.Errorf("invalid latitude %q: %w", p.Y, err)
	}
	return geo.Coordinate{Lat: lat, Lng: lng}, nil
}

type placesResponse struct {
	Places     []Place `json:"places"`
	TotalCount int     `json:"total_count"`
	Source     string  `json:"source"`
	Error      string  `json:"error"`
}

// SearchPlaces returns the places matching the query in the order the service
// ranked them. An empty result is ErrNoPlaces.
func (c *Client) SearchPlaces(ctx context.Context, query string) ([]Place, error) {
	ctx, span := tracer.Start(ctx, "backend search places")
	defer span.End()

	query = strings.TrimSpace(query)
	span.SetAttributes(attribute.String("query", query))

	var resp placesResponse
	if err := c.do(ctx, span, request{
		method: http.MethodGet,
		path:   "/search-location-combined",
		query:  url.Values{"query": {query}},
	}, &resp); err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.Int("places.count", len(resp.Places)))
	if len(resp.Places) == 0 {
		return nil, ErrNoPlaces
	}
	return resp.Places, nil
}
