package guidance

import (
	"context"
	"sync"

	"github.com/koscakluka/safewalk-core/core/speechtotext"
)

// VoiceChannel pairs the speaker queue with the microphone. Only one holder
// may drive it at a time so two dialogs never talk over each other.
type VoiceChannel struct {
	queue      *PlaybackQueue
	recognizer SpeechRecognizer

	mu     sync.Mutex
	holder string
}

// NewVoiceChannel builds a channel around queue. A nil recognizer behaves as
// a platform without speech recognition.
func NewVoiceChannel(queue *PlaybackQueue, recognizer SpeechRecognizer) *VoiceChannel {
	if queue == nil {
		queue = NewPlaybackQueue()
	}
	if recognizer == nil {
		recognizer = unsupportedRecognizer{}
	}
	return &VoiceChannel{queue: queue, recognizer: recognizer}
}

func (v *VoiceChannel) Queue() *PlaybackQueue { return v.queue }

// Busy reports whether someone currently holds the channel.
func (v *VoiceChannel) Busy() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.holder != ""
}

func (v *VoiceChannel) acquire(holder string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.holder != "" && v.holder != holder {
		return ErrVoiceChannelBusy
	}
	v.holder = holder
	return nil
}

// release is a no-op unless holder owns the channel.
func (v *VoiceChannel) release(holder string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.holder == holder {
		v.holder = ""
	}
}

type unsupportedRecognizer struct{}

func (unsupportedRecognizer) Recognize(context.Context, ...speechtotext.RecognitionOption) error {
	return speechtotext.ErrUnsupported
}
