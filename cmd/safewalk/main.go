// Command safewalk drives the voice guided destination dialog and the walking
// session from a terminal.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	guidance "github.com/koscakluka/safewalk-core/core"
	"github.com/koscakluka/safewalk-core/core/audio"
	"github.com/koscakluka/safewalk-core/core/audio/miniaudio"
	"github.com/koscakluka/safewalk-core/core/audio/portaudio"
	"github.com/koscakluka/safewalk-core/core/backend"
	"github.com/koscakluka/safewalk-core/core/events"
	"github.com/koscakluka/safewalk-core/core/geo"
	"github.com/koscakluka/safewalk-core/core/geolocation"
	"github.com/koscakluka/safewalk-core/core/speechtotext"
	stt "github.com/koscakluka/safewalk-core/core/speechtotext/deepgram"
	"github.com/koscakluka/safewalk-core/core/texttospeech"
	tts "github.com/koscakluka/safewalk-core/core/texttospeech/deepgram"
)

const (
	defaultBackendURL = "http://localhost:8000"
	defaultLogFile    = "safewalk.log"
	// Seoul City Hall
	defaultLat = 37.5665
	defaultLng = 126.9780

	portaudioBufferSize = 1024
	eventBufferSize     = 256
)

type Config struct {
	BackendURL     string
	Token          string
	DeepgramAPIKey string
	Lat            float64
	Lng            float64
}

type Flags struct {
	backendURL *string
	token      *string
	audio      *string
	voiceName  *string
	lat        *float64
	lng        *float64
	logFile    *string
}

// audioDevice is a speaker and microphone pair.
type audioDevice interface {
	guidance.Player
	stt.Microphone
	CaptureEncoding() audio.EncodingInfo
	Close()
}

func main() {
	config := loadEnvironmentConfig()
	flags := parseCommandLineFlags(config)

	closeLog, err := initializeLogger(*flags.logFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to open log file:", err)
		os.Exit(1)
	}
	defer closeLog()

	if err := run(config, flags); err != nil {
		slog.Error("safewalk failed", "error", err)
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(config Config, flags Flags) error {
	client, err := backend.NewClient(*flags.backendURL,
		backend.WithToken(*flags.token),
		backend.WithVoiceName(*flags.voiceName))
	if err != nil {
		return fmt.Errorf("invalid backend configuration: %w", err)
	}

	device, err := openAudioDevice(*flags.audio)
	if err != nil {
		return err
	}
	if device != nil {
		defer device.Close()
	}

	updates := make(chan events.Event, eventBufferSize)
	forward := func(event events.Event) {
		select {
		case updates <- event:
		default:
			slog.Warn("dropping ui event", "namespace", event.Kind().Namespace(), "kind", event.Kind())
		}
	}

	queueOpts := []guidance.PlaybackQueueOption{guidance.WithPlaybackEventHandler(forward)}
	var recognizer guidance.SpeechRecognizer
	dialogOpts := []guidance.DialogOption{guidance.WithDialogEventHandler(forward)}
	if device != nil {
		queueOpts = append(queueOpts, guidance.WithRemoteSynthesizer(client, device))
		if local, err := tts.NewTextToSpeechClient(tts.VoiceHelena, tts.WithAPIKey(config.DeepgramAPIKey)); err != nil {
			slog.Warn("local voice unavailable", "error", err)
		} else {
			queueOpts = append(queueOpts, guidance.WithLocalSpeaker(texttospeech.NewSpeaker(local, device)))
		}
		recognizer = stt.NewRecognizer(device, stt.WithAPIKey(config.DeepgramAPIKey))
		dialogOpts = append(dialogOpts, guidance.WithRecognitionOptions(
			speechtotext.WithEncodingInfo(device.CaptureEncoding())))
	}

	queue := guidance.NewPlaybackQueue(queueOpts...)
	defer queue.Close()
	channel := guidance.NewVoiceChannel(queue, recognizer)

	start := geo.Coordinate{Lat: *flags.lat, Lng: *flags.lng}
	locator := geolocation.NewReplay(geolocation.Step{Fix: geo.Fix{Coordinate: start, AccuracyMeters: 5}})

	engine := guidance.NewDialogEngine(channel, locator, client, client, dialogOpts...)
	defer engine.Stop()

	session := guidance.NewWalkingSession(locator,
		guidance.WithPointsClaimer(client),
		guidance.WithSessionEventHandler(forward))
	defer session.Cancel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	model := newModel(ctx, engine, session, locator, client, updates)
	if _, err := tea.NewProgram(model, tea.WithAltScreen()).Run(); err != nil {
		return fmt.Errorf("terminal ui failed: %w", err)
	}
	return nil
}

func openAudioDevice(kind string) (audioDevice, error) {
	switch kind {
	case "miniaudio":
		device, err := miniaudio.NewClient()
		if err != nil {
			return nil, fmt.Errorf("failed to open miniaudio device: %w", err)
		}
		return device, nil
	case "portaudio":
		device, err := portaudio.NewClient(portaudioBufferSize)
		if err != nil {
			return nil, fmt.Errorf("failed to open portaudio device: %w", err)
		}
		return device, nil
	case "none":
		slog.Info("running without audio, replies must be typed")
		return nil, nil
	}
	return nil, errors.New("unknown audio backend " + strconv.Quote(kind))
}

func initializeLogger(path string) (func(), error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	logger := slog.New(slog.NewTextHandler(file, &slog.HandlerOptions{Level: slog.LevelDebug}))
	slog.SetDefault(logger)
	return func() { _ = file.Close() }, nil
}

// loadEnvironmentConfig reads the environment after loading .env, if any.
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	}

	config := Config{
		BackendURL:     os.Getenv("SAFEWALK_BACKEND_URL"),
		Token:          os.Getenv("SAFEWALK_TOKEN"),
		DeepgramAPIKey: os.Getenv("DEEPGRAM_API_KEY"),
		Lat:            envFloat("SAFEWALK_LAT", defaultLat),
		Lng:            envFloat("SAFEWALK_LNG", defaultLng),
	}
	if config.BackendURL == "" {
		config.BackendURL = defaultBackendURL
	}
	return config
}

func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		backendURL: flag.String("backend", config.BackendURL, "safe walking backend base URL (SAFEWALK_BACKEND_URL)"),
		token:      flag.String("token", config.Token, "bearer token for points claims (SAFEWALK_TOKEN)"),
		audio:      flag.String("audio", "miniaudio", "audio backend: miniaudio, portaudio or none"),
		voiceName:  flag.String("voice", backend.DefaultVoiceName, "backend synthesis voice"),
		lat:        flag.Float64("lat", config.Lat, "starting latitude (SAFEWALK_LAT)"),
		lng:        flag.Float64("lng", config.Lng, "starting longitude (SAFEWALK_LNG)"),
		logFile:    flag.String("log", defaultLogFile, "log file, the terminal is taken by the ui"),
	}
	flag.Parse()
	return flags
}

func envFloat(key string, fallback float64) float64 {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		slog.Warn("ignoring invalid number in environment", "key", key, "value", raw)
		return fallback
	}
	return value
}
