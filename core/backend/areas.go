package backend

import (
	"context"
	"net/http"

	"github.com/koscakluka/safewalk-core/core/geo"
	"go.opentelemetry.io/otel/attribute"
)

// ExerciseArea is one of the service's recommended walking areas.
type ExerciseArea struct {
	Name                  string         `json:"name"`
	Center                geo.Coordinate `json:"center"`
	Type                  string         `json:"type"`
	TypeDescription       string         `json:"type_description"`
	RecommendedActivities []string       `json:"recommended_activities"`
	Difficulty            string         `json:"difficulty"`
	Facilities            []string       `json:"facilities"`
}

type exerciseAreasResponse struct {
	Areas      []ExerciseArea `json:"areas"`
	TotalCount int            `json:"total_count"`
	Types      map[string]int `json:"types"`
}

func (c *Client) ExerciseAreas(ctx context.Context) ([]ExerciseArea, error) {
	ctx, span := tracer.Start(ctx, "backend exercise areas")
	defer span.End()

	var resp exerciseAreasResponse
	if err := c.do(ctx, span, request{method: http.MethodGet, path: "/exercise-areas"}, &resp); err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.Int("areas.count", len(resp.Areas)))
	return resp.Areas, nil
}
