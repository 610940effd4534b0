package deepgram

import (
	"errors"
	"testing"

	"github.com/koscakluka/safewalk-core/core/audio"
)

func TestNewListenFormat(t *testing.T) {
	tests := []struct {
		name     string
		encoding audio.EncodingInfo
		want     listenFormat
		wantErr  error
	}{
		{
			name:     "default microphone",
			encoding: audio.GetDefaultEncodingInfo(),
			want:     listenFormat{encoding: "linear16", sampleRate: 16000, channels: 1},
		},
		{
			name:     "stereo capture",
			encoding: audio.EncodingInfo{SampleRate: 48000, Format: audio.EncodingLinear16, Channels: 2},
			want:     listenFormat{encoding: "linear16", sampleRate: 48000, channels: 2},
		},
		{
			name:     "telephony mulaw",
			encoding: audio.EncodingInfo{SampleRate: 8000, Format: audio.EncodingMulaw},
			want:     listenFormat{encoding: "mulaw", sampleRate: 8000, channels: 1},
		},
		{
			name:     "alaw above telephony rate",
			encoding: audio.EncodingInfo{SampleRate: 16000, Format: audio.EncodingALaw},
			wantErr:  errUnsupportedSampleRate,
		},
		{
			name:     "odd sample rate",
			encoding: audio.EncodingInfo{SampleRate: 22050, Format: audio.EncodingLinear16},
			wantErr:  errUnsupportedSampleRate,
		},
		{
			name:     "missing format",
			encoding: audio.EncodingInfo{SampleRate: 16000},
			wantErr:  errUnsupportedFormat,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := newListenFormat(tt.encoding)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if got != tt.want {
				t.Fatalf("expected %+v, got %+v", tt.want, got)
			}
		})
	}
}
