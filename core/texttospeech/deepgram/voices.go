package deepgram

import "strings"

type deepgramVoice string

const (
	VoiceThaliaEn  deepgramVoice = "aura-2-thalia-en"
	VoiceAsteriaEn deepgramVoice = "aura-2-asteria-en"
	VoiceOrionEn   deepgramVoice = "aura-2-orion-en"
	VoiceCelesteEs deepgramVoice = "aura-2-celeste-es"
	VoiceNestorEs  deepgramVoice = "aura-2-nestor-es"
)

var defaultVoice = VoiceThaliaEn

func GetAvailableVoices() []deepgramVoice {
	return []deepgramVoice{
		VoiceThaliaEn,
		VoiceAsteriaEn,
		VoiceOrionEn,
		VoiceCelesteEs,
		VoiceNestorEs,
	}
}

// voiceForLanguage picks a voice for a BCP 47 language tag, falling back to
// the client's default voice for languages without a dedicated one.
func voiceForLanguage(language string, fallback deepgramVoice) deepgramVoice {
	base, _, _ := strings.Cut(language, "-")
	switch strings.ToLower(base) {
	case "en":
		return VoiceThaliaEn
	case "es":
		return VoiceCelesteEs
	}
	return fallback
}
