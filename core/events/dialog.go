package events

import "github.com/koscakluka/safewalk-core/core/geo"

const (
	KindDialogStateChanged  Kind = "dialog.state_changed"
	KindLocationAcquired    Kind = "dialog.location_acquired"
	KindDestinationResolved Kind = "dialog.destination_resolved"
	KindRouteFound          Kind = "dialog.route_found"
)

// DialogStateChanged reports a transition of the destination dialog. States
// are reported by name.
type DialogStateChanged struct {
	Base
	From string
	To   string
}

func NewDialogStateChanged(from, to string) DialogStateChanged {
	return DialogStateChanged{Base: NewBase(KindDialogStateChanged), From: from, To: to}
}

type LocationAcquired struct {
	Base
	Fix geo.Fix
}

func NewLocationAcquired(fix geo.Fix) LocationAcquired {
	return LocationAcquired{Base: NewBase(KindLocationAcquired), Fix: fix}
}

type DestinationResolved struct {
	Base
	Name       string
	Coordinate geo.Coordinate
}

func NewDestinationResolved(name string, coordinate geo.Coordinate) DestinationResolved {
	return DestinationResolved{Base: NewBase(KindDestinationResolved), Name: name, Coordinate: coordinate}
}

// RouteFound summarises a planned route. Distance is in kilometres.
type RouteFound struct {
	Base
	Destination      string
	Start            geo.Coordinate
	End              geo.Coordinate
	DistanceKm       float64
	EstimatedMinutes int
	RouteType        string
}

func NewRouteFound(destination string, start, end geo.Coordinate, distanceKm float64, estimatedMinutes int, routeType string) RouteFound {
	return RouteFound{
		Base:             NewBase(KindRouteFound),
		Destination:      destination,
		Start:            start,
		End:              end,
		DistanceKm:       distanceKm,
		EstimatedMinutes: estimatedMinutes,
		RouteType:        routeType,
	}
}
