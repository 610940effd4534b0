package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

var ErrInvalidWAV = errors.New("invalid wav data")

const (
	wavFormatPCM   = 1
	wavFormatALaw  = 6
	wavFormatMulaw = 7
)

// DecodeWAV reads a RIFF/WAVE container and returns the raw samples of its
// data chunk together with the encoding described by its fmt chunk.
func DecodeWAV(data []byte) (Clip, error) {
	r := bytes.NewReader(data)

	var header struct {
		RIFF [4]byte
		Size uint32
		WAVE [4]byte
	}
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		return Clip{}, fmt.Errorf("%w: short header: %w", ErrInvalidWAV, err)
	}
	if string(header.RIFF[:]) != "RIFF" || string(header.WAVE[:]) != "WAVE" {
		return Clip{}, fmt.Errorf("%w: missing RIFF/WAVE markers", ErrInvalidWAV)
	}

	var (
		encoding EncodingInfo
		haveFmt  bool
	)
	for {
		var chunk struct {
			ID   [4]byte
			Size uint32
		}
		if err := binary.Read(r, binary.LittleEndian, &chunk); err != nil {
			if errors.Is(err, io.EOF) {
				return Clip{}, fmt.Errorf("%w: no data chunk", ErrInvalidWAV)
			}
			return Clip{}, fmt.Errorf("%w: chunk header: %w", ErrInvalidWAV, err)
		}

		switch string(chunk.ID[:]) {
		case "fmt ":
			var format struct {
				AudioFormat   uint16
				Channels      uint16
				SampleRate    uint32
				ByteRate      uint32
				BlockAlign    uint16
				BitsPerSample uint16
			}
			if chunk.Size < 16 {
				return Clip{}, fmt.Errorf("%w: fmt chunk too small", ErrInvalidWAV)
			}
			if err := binary.Read(r, binary.LittleEndian, &format); err != nil {
				return Clip{}, fmt.Errorf("%w: fmt chunk: %w", ErrInvalidWAV, err)
			}
			if _, err := r.Seek(int64(chunk.Size-16)+int64(chunk.Size%2), io.SeekCurrent); err != nil {
				return Clip{}, fmt.Errorf("%w: fmt chunk padding: %w", ErrInvalidWAV, err)
			}

			switch {
			case format.AudioFormat == wavFormatPCM && format.BitsPerSample == 16:
				encoding.Format = EncodingLinear16
			case format.AudioFormat == wavFormatALaw:
				encoding.Format = EncodingALaw
			case format.AudioFormat == wavFormatMulaw:
				encoding.Format = EncodingMulaw
			default:
				return Clip{}, fmt.Errorf("%w: unsupported format %d with %d bits", ErrInvalidWAV, format.AudioFormat, format.BitsPerSample)
			}
			encoding.SampleRate = int(format.SampleRate)
			encoding.Channels = int(format.Channels)
			haveFmt = true

		case "data":
			if !haveFmt {
				return Clip{}, fmt.Errorf("%w: data chunk before fmt chunk", ErrInvalidWAV)
			}
			size := int(chunk.Size)
			if remaining := r.Len(); size > remaining {
				// streamed WAVs sometimes carry a placeholder size
				size = remaining
			}
			samples := make([]byte, size)
			if _, err := io.ReadFull(r, samples); err != nil {
				return Clip{}, fmt.Errorf("%w: data chunk: %w", ErrInvalidWAV, err)
			}
			return Clip{Data: samples, Encoding: encoding}, nil

		default:
			if _, err := r.Seek(int64(chunk.Size)+int64(chunk.Size%2), io.SeekCurrent); err != nil {
				return Clip{}, fmt.Errorf("%w: skipping %q chunk: %w", ErrInvalidWAV, chunk.ID[:], err)
			}
		}
	}
}

// EncodeWAV wraps raw samples in a minimal RIFF/WAVE container.
func EncodeWAV(clip Clip) ([]byte, error) {
	var audioFormat, bitsPerSample uint16
	switch clip.Encoding.Format {
	case EncodingLinear16:
		audioFormat, bitsPerSample = wavFormatPCM, 16
	case EncodingALaw:
		audioFormat, bitsPerSample = wavFormatALaw, 8
	case EncodingMulaw:
		audioFormat, bitsPerSample = wavFormatMulaw, 8
	default:
		return nil, fmt.Errorf("unsupported encoding %q", clip.Encoding.Format)
	}

	channels := uint16(clip.Encoding.channels())
	blockAlign := channels * bitsPerSample / 8
	buf := bytes.Buffer{}
	fields := []any{
		[4]byte{'R', 'I', 'F', 'F'},
		uint32(36 + len(clip.Data)),
		[4]byte{'W', 'A', 'V', 'E'},
		[4]byte{'f', 'm', 't', ' '},
		uint32(16),
		audioFormat,
		channels,
		uint32(clip.Encoding.SampleRate),
		uint32(clip.Encoding.SampleRate) * uint32(blockAlign),
		blockAlign,
		bitsPerSample,
		[4]byte{'d', 'a', 't', 'a'},
		uint32(len(clip.Data)),
	}
	for _, field := range fields {
		if err := binary.Write(&buf, binary.LittleEndian, field); err != nil {
			return nil, fmt.Errorf("failed to write wav header: %w", err)
		}
	}
	buf.Write(clip.Data)

	return buf.Bytes(), nil
}
