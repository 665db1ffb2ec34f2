package mediasession

import (
	"context"
	"fmt"
)

// IntentName names one user intent a remote view can send.
type IntentName string

const (
	IntentSetDraft       IntentName = "set_draft"
	IntentSetVoice       IntentName = "set_voice"
	IntentSelectLanguage IntentName = "select_language"
	IntentRefreshVoices  IntentName = "refresh_voices"
	IntentConvert        IntentName = "convert"
	IntentDismissError   IntentName = "dismiss_error"
	IntentPlay           IntentName = "play"
	IntentPause          IntentName = "pause"
	IntentSeek           IntentName = "seek"
	IntentSetVolume      IntentName = "set_volume"
	IntentToggleMute     IntentName = "toggle_mute"
	IntentStartDictation IntentName = "start_dictation"
	IntentStopDictation  IntentName = "stop_dictation"
)

// Intent is the wire form of a controller call.
type Intent struct {
	Name         IntentName      `json:"name"`
	Text         string          `json:"text,omitempty"`
	Voice        *VoiceSelection `json:"voice,omitempty"`
	LanguageCode string          `json:"languageCode,omitempty"`
	Position     float64         `json:"position,omitempty"`
	Volume       float64         `json:"volume,omitempty"`
}

// Dispatch applies intent to the controller. Conversions and dictation
// outlive ctx's cancellation; they end through Close or their own
// settlement.
func (c *Controller) Dispatch(ctx context.Context, intent Intent) error {
	detached := context.WithoutCancel(ctx)

	switch intent.Name {
	case IntentSetDraft:
		return c.SetDraft(intent.Text)
	case IntentSetVoice:
		if intent.Voice == nil {
			return newError(KindValidation, "voice required")
		}
		return c.SetVoice(*intent.Voice)
	case IntentSelectLanguage:
		return c.SelectLanguage(intent.LanguageCode)
	case IntentRefreshVoices:
		return c.RefreshVoices(ctx)
	case IntentConvert:
		_, err := c.StartConvert(detached)
		return err
	case IntentDismissError:
		return c.DismissError()
	case IntentPlay:
		return c.Play()
	case IntentPause:
		return c.Pause()
	case IntentSeek:
		return c.Seek(intent.Position)
	case IntentSetVolume:
		return c.SetVolume(intent.Volume)
	case IntentToggleMute:
		return c.ToggleMute()
	case IntentStartDictation:
		return c.StartDictation(detached, intent.LanguageCode)
	case IntentStopDictation:
		return c.StopDictation()
	default:
		return newError(KindValidation, fmt.Sprintf("unknown intent %q", intent.Name))
	}
}
