package platformvoice

import (
	"strings"
)

// Voice describes a speech voice installed on the host platform.
type Voice struct {
	Name     string
	Language string // BCP 47, normalized to lowercase with a hyphen
	Premium  bool
}

// normalizeLanguage maps platform language spellings (en_US, en-us, en) to a
// lowercase hyphenated tag.
func normalizeLanguage(language string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(language), "_", "-"))
}

func languageBase(language string) string {
	base, _, _ := strings.Cut(normalizeLanguage(language), "-")
	return base
}

// selectVoice picks the best installed voice for a language: an exact locale
// match beats a base-language match, and premium voices beat standard ones
// within the same match tier. It returns false when no voice covers even the
// base language.
func selectVoice(voices []Voice, language string) (Voice, bool) {
	wanted := normalizeLanguage(language)
	wantedBase := languageBase(language)

	var best Voice
	bestScore := 0
	for _, voice := range voices {
		score := 0
		switch {
		case normalizeLanguage(voice.Language) == wanted:
			score = 4
		case languageBase(voice.Language) == wantedBase:
			score = 2
		default:
			continue
		}
		if voice.Premium {
			score++
		}

		if score > bestScore {
			best = voice
			bestScore = score
		}
	}

	return best, bestScore > 0
}

// parseSayVoices parses the output of `say -v ?`. Lines look like:
//
//	Samantha (Premium)  en_US    # Hello, my name is Samantha.
func parseSayVoices(output string) []Voice {
	var voices []Voice
	for line := range strings.Lines(output) {
		spec, _, _ := strings.Cut(line, "#")
		fields := strings.Fields(spec)
		if len(fields) < 2 {
			continue
		}

		language := fields[len(fields)-1]
		name := strings.Join(fields[:len(fields)-1], " ")

		premium := false
		if idx := strings.Index(name, "("); idx >= 0 {
			premium = strings.Contains(strings.ToLower(name[idx:]), "premium") ||
				strings.Contains(strings.ToLower(name[idx:]), "enhanced")
			name = strings.TrimSpace(name[:idx])
		}

		voices = append(voices, Voice{
			Name:     name,
			Language: normalizeLanguage(language),
			Premium:  premium,
		})
	}
	return voices
}

// parseEspeakVoices parses the output of `espeak-ng --voices`. The first
// line is a header:
//
//	Pty Language       Age/Gender VoiceName       File          Other Languages
//	 5  en-US           --/M      English (America)     gmw/en-US
func parseEspeakVoices(output string) []Voice {
	var voices []Voice
	first := true
	for line := range strings.Lines(output) {
		if first {
			first = false
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 4 {
			continue
		}

		voices = append(voices, Voice{
			Name:     fields[3],
			Language: normalizeLanguage(fields[1]),
		})
	}
	return voices
}
