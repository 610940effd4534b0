package geo

import "slices"

// Ranked pairs a value with its distance from the ranking origin.
type Ranked[T any] struct {
	Item       T
	DistanceKm float64
}

// RankByProximity orders items by their distance from origin, nearest first.
// Items at equal distance keep their input order.
func RankByProximity[T any](origin Coordinate, items []T, position func(T) Coordinate) []Ranked[T] {
	ranked := make([]Ranked[T], 0, len(items))
	for _, item := range items {
		ranked = append(ranked, Ranked[T]{
			Item:       item,
			DistanceKm: DistanceKm(origin, position(item)),
		})
	}

	slices.SortStableFunc(ranked, func(a, b Ranked[T]) int {
		switch {
		case a.DistanceKm < b.DistanceKm:
			return -1
		case a.DistanceKm > b.DistanceKm:
			return 1
		default:
			return 0
		}
	})

	return ranked
}
