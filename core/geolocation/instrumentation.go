package geolocation

import "go.opentelemetry.io/otel"

const scopeName = "github.com/koscakluka/safewalk-core/core/geolocation"

var tracer = otel.Tracer(scopeName)
