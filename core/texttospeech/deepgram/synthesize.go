package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gorilla/websocket"
	"github.com/koscakluka/safewalk-core/core/audio"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var errSocketClosed = errors.New("speak socket closed before flush completed")

type websocketMessage struct {
	Type string `json:"type"`
}

type speakMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

var (
	flushMsg = websocketMessage{Type: "Flush"}
	clearMsg = websocketMessage{Type: "Clear"}
	closeMsg = websocketMessage{Type: "Close"}
)

// Synthesize sends the text as a single Speak message and collects audio until
// Deepgram confirms the flush.
func (c *TextToSpeechClient) Synthesize(ctx context.Context, text string) (audio.Clip, error) {
	ctx, span := tracer.Start(ctx, "synthesize speech")
	defer span.End()
	span.SetAttributes(
		attribute.String("voice", string(c.voice)),
		attribute.Int("text.length", len(text)),
	)

	conn, err := c.connectWebsocket(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return audio.Clip{}, err
	}
	defer conn.Close()

	if err := conn.WriteJSON(speakMessage{Type: "Speak", Text: text}); err != nil {
		err = fmt.Errorf("failed to send speak message: %w", err)
		span.RecordError(err)
		return audio.Clip{}, err
	}
	if err := conn.WriteJSON(flushMsg); err != nil {
		err = fmt.Errorf("failed to send flush message: %w", err)
		span.RecordError(err)
		return audio.Clip{}, err
	}

	result := make(chan collectResult, 1)
	go func() { result <- collectUntilFlushed(conn) }()

	select {
	case <-ctx.Done():
		_ = conn.WriteJSON(clearMsg)
		_ = conn.Close()
		return audio.Clip{}, ctx.Err()
	case res := <-result:
		if res.err != nil {
			span.RecordError(res.err)
			span.SetStatus(codes.Error, res.err.Error())
			return audio.Clip{}, res.err
		}
		_ = conn.WriteJSON(closeMsg)
		span.SetAttributes(attribute.Int("audio.bytes", len(res.data)))
		return audio.Clip{Data: res.data, Encoding: c.options.EncodingInfo}, nil
	}
}

type collectResult struct {
	data []byte
	err  error
}

func collectUntilFlushed(conn *websocket.Conn) collectResult {
	var data []byte
	for {
		msgType, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) && len(data) > 0 {
				return collectResult{data: data}
			}
			return collectResult{err: errors.Join(errSocketClosed, err)}
		}

		switch msgType {
		case websocket.BinaryMessage:
			data = append(data, msg...)
		case websocket.TextMessage:
			var parsedMsg websocketMessage
			if err := json.Unmarshal(msg, &parsedMsg); err != nil {
				logger.Debug("failed to unmarshal deepgram message", "error", err)
				continue
			}
			switch parsedMsg.Type {
			case "Flushed":
				return collectResult{data: data}
			case "Warning", "Error":
				logger.Warn("deepgram speak message", "type", parsedMsg.Type, "message", string(msg))
			}
		}
	}
}
