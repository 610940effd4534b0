package guidance

import (
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const scopeName = "github.com/koscakluka/safewalk-core/core"

var (
	tracer = otel.Tracer(scopeName)
	meter  = otel.Meter(scopeName)
	logger = otelslog.NewLogger(scopeName)
)

var (
	utterancesSpoken  = mustInt64Counter("safewalk.utterances.spoken", "Utterances that finished playing.")
	speechFallbacks   = mustInt64Counter("safewalk.speech.fallbacks", "Utterances spoken by the local voice after remote synthesis failed.")
	recognitionErrors = mustInt64Counter("safewalk.recognition.errors", "Failed listening turns by error kind.")
	checkIns          = mustInt64Counter("safewalk.checkins", "Geofence check-ins by checkpoint and outcome.")
)

func mustInt64Counter(name, description string) metric.Int64Counter {
	counter, err := meter.Int64Counter(name, metric.WithDescription(description))
	if err != nil {
		logger.Error("failed to create counter", "name", name, "error", err)
		return noop.Int64Counter{}
	}
	return counter
}
