package guidance

import (
	"context"
	"fmt"

	"github.com/koscakluka/safewalk-core/core/backend"
	"github.com/koscakluka/safewalk-core/core/geo"
	"github.com/koscakluka/safewalk-core/core/geolocation"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const DefaultRecommendationLimit = 5

// AreaRecommendation is an exercise area with its distance from the user.
type AreaRecommendation struct {
	Area       backend.ExerciseArea
	DistanceKm float64
}

// RecommendNearbyAreas lists the exercise areas closest to the user's current
// position, nearest first. A limit of zero or less uses
// DefaultRecommendationLimit.
func RecommendNearbyAreas(ctx context.Context, locator Locator, areas AreaLister, limit int) ([]AreaRecommendation, error) {
	ctx, span := tracer.Start(ctx, "recommend nearby areas")
	defer span.End()

	if limit <= 0 {
		limit = DefaultRecommendationLimit
	}

	fix, err := locator.CurrentPosition(ctx, geolocation.NewPositionOptions())
	if err != nil {
		err = locationError(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	available, err := areas.ExerciseAreas(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to list exercise areas: %w", err)
	}

	ranked := geo.RankByProximity(fix.Coordinate, available, func(area backend.ExerciseArea) geo.Coordinate {
		return area.Center
	})
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}

	recommendations := make([]AreaRecommendation, 0, len(ranked))
	for _, r := range ranked {
		recommendations = append(recommendations, AreaRecommendation{Area: r.Item, DistanceKm: r.DistanceKm})
	}
	span.SetAttributes(attribute.Int("areas.available", len(available)), attribute.Int("areas.recommended", len(recommendations)))
	return recommendations, nil
}
