// Package deepgram synthesizes prompt text over the Deepgram Speak websocket.
// It serves as the on-device fallback voice when the backend TTS endpoint is
// unavailable.
package deepgram

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"slices"
	"strconv"

	"github.com/gorilla/websocket"
	"github.com/koscakluka/safewalk-core/core/texttospeech"
)

type deepgramVoice string

const (
	VoiceThalia    deepgramVoice = "aura-2-thalia-en"
	VoiceAndromeda deepgramVoice = "aura-2-andromeda-en"
	VoiceHelena    deepgramVoice = "aura-2-helena-en"
	VoiceApollo    deepgramVoice = "aura-2-apollo-en"

	defaultVoice    = VoiceThalia
	defaultSpeakURL = "wss://api.deepgram.com/v1/speak"
)

func GetAvailableVoices() []deepgramVoice {
	return []deepgramVoice{VoiceThalia, VoiceAndromeda, VoiceHelena, VoiceApollo}
}

type TextToSpeechClient struct {
	voice    deepgramVoice
	apiKey   string
	speakURL string
	options  texttospeech.SynthesisOptions
}

type ClientOption func(*TextToSpeechClient)

// WithAPIKey overrides the DEEPGRAM_API_KEY environment variable.
func WithAPIKey(apiKey string) ClientOption {
	return func(c *TextToSpeechClient) { c.apiKey = apiKey }
}

// WithSpeakURL points the client at a different speak endpoint, mostly useful
// for tests.
func WithSpeakURL(speakURL string) ClientOption {
	return func(c *TextToSpeechClient) { c.speakURL = speakURL }
}

func WithSynthesisOptions(opts ...texttospeech.SynthesisOption) ClientOption {
	return func(c *TextToSpeechClient) {
		for _, opt := range opts {
			opt(&c.options)
		}
	}
}

func NewTextToSpeechClient(voice deepgramVoice, opts ...ClientOption) (*TextToSpeechClient, error) {
	if voice == "" {
		voice = defaultVoice
	}
	if !slices.Contains(GetAvailableVoices(), voice) {
		return nil, fmt.Errorf("invalid voice")
	}

	client := &TextToSpeechClient{
		voice:    voice,
		apiKey:   os.Getenv("DEEPGRAM_API_KEY"),
		speakURL: defaultSpeakURL,
		options:  texttospeech.NewSynthesisOptions(),
	}
	for _, opt := range opts {
		opt(client)
	}

	return client, nil
}

func (c *TextToSpeechClient) SetVoice(voice deepgramVoice) {
	c.voice = voice
}

func (c *TextToSpeechClient) connectWebsocket(ctx context.Context) (*websocket.Conn, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("deepgram api key not found")
	}

	speakURL, err := url.Parse(c.speakURL)
	if err != nil {
		return nil, fmt.Errorf("invalid speak url: %w", err)
	}

	urlValues := url.Values{}
	urlValues.Set("encoding", c.options.EncodingInfo.Format.Name())
	urlValues.Set("sample_rate", strconv.Itoa(c.options.EncodingInfo.SampleRate))
	urlValues.Set("model", string(c.voice))
	urlValues.Set("container", "none")
	speakURL.RawQuery = urlValues.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, speakURL.String(),
		http.Header{"Authorization": {"token " + c.apiKey}})
	if err != nil {
		return nil, fmt.Errorf("failed to open socket connection to deepgram: %w", err)
	}

	return conn, nil
}
