// Package audio describes raw audio formats and whole clips passed between
// synthesizers, recognizers and output devices.
package audio

import "time"

const (
	DefaultSampleRate = 16000
	DefaultFormat     = EncodingLinear16
)

type encodingFormat string

const (
	EncodingMulaw    encodingFormat = "mulaw"
	EncodingALaw     encodingFormat = "alaw"
	EncodingLinear16 encodingFormat = "linear16"
)

// sampleSizes maps each known format to its bytes per sample.
var sampleSizes = map[encodingFormat]int{
	EncodingMulaw:    1,
	EncodingALaw:     1,
	EncodingLinear16: 2,
}

func (e encodingFormat) Name() string { return string(e) }

// ByteSize is the size of one sample, or -1 for unknown formats.
func (e encodingFormat) ByteSize() int {
	if size, ok := sampleSizes[e]; ok {
		return size
	}
	return -1
}

// EncodingInfo describes interleaved raw audio. Zero Channels means mono.
type EncodingInfo struct {
	SampleRate int
	Format     encodingFormat
	Channels   int
}

// GetDefaultEncodingInfo is 16 kHz mono linear16, the format both the
// microphone and the synthesizers use unless told otherwise.
func GetDefaultEncodingInfo() EncodingInfo {
	return EncodingInfo{SampleRate: DefaultSampleRate, Format: DefaultFormat, Channels: 1}
}

func (e EncodingInfo) IsZero() bool {
	return e.SampleRate == 0 || e.Format == ""
}

func (e EncodingInfo) channels() int {
	return max(e.Channels, 1)
}

// BytesPerSecond reports the raw data rate of the encoding, or 0 if the
// format is unknown.
func (e EncodingInfo) BytesPerSecond() int {
	size := e.Format.ByteSize()
	if size <= 0 {
		return 0
	}
	return e.SampleRate * size * e.channels()
}

// Clip is a complete, already decoded piece of audio ready for playback.
type Clip struct {
	Data     []byte
	Encoding EncodingInfo
}

// Duration estimates how long the clip plays for. Unknown encodings report 0.
func (c Clip) Duration() time.Duration {
	bytesPerSecond := c.Encoding.BytesPerSecond()
	if bytesPerSecond == 0 {
		return 0
	}
	return time.Duration(len(c.Data)) * time.Second / time.Duration(bytesPerSecond)
}
