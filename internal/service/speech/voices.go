package speech

import "strings"

const (
	resourceDefault = "volc.service_type.10029"
	resourceSeed    = "seed-tts-2.0"
	resourceMega    = "volc.megatts.default"

	// DefaultVoice 英文女声，作为 MION 的默认音色。
	DefaultVoice = "en_female_amy_jupiter_bigtts"
)

// voiceAliases maps persona voice IDs onto Volcengine speakers.
var voiceAliases = map[string]string{
	"mion":       DefaultVoice,
	"kore":       DefaultVoice,
	"default":    DefaultVoice,
	"en_default": DefaultVoice,
}

var seedHints = []string{"bigtts", "seed", "megatts", "uranus", "venus", "jupiter", "saturn", "neptune", "mercury", "pluto", "mars"}

// resourceCandidates 返回音色可用的资源 ID，按优先级排序。
func resourceCandidates(voice string) []string {
	voice = strings.TrimSpace(voice)
	if strings.HasPrefix(voice, "S_") {
		return []string{resourceMega}
	}

	normalized := strings.ToLower(voice)
	for _, hint := range seedHints {
		if strings.Contains(normalized, hint) {
			return []string{resourceSeed, resourceDefault}
		}
	}
	return []string{resourceDefault, resourceSeed}
}

// speakerCandidates resolves aliases and de-duplicates requested, then
// configured, then the default voice.
func speakerCandidates(requested, configured string) []string {
	var out []string
	add := func(s string) {
		s = strings.TrimSpace(s)
		if s == "" {
			return
		}
		if mapped, ok := voiceAliases[strings.ToLower(s)]; ok {
			s = mapped
		}
		for _, existing := range out {
			if strings.EqualFold(existing, s) {
				return
			}
		}
		out = append(out, s)
	}

	add(requested)
	add(configured)
	add(DefaultVoice)
	return out
}

func isResourceMismatch(err error) bool {
	return err != nil && strings.Contains(err.Error(), "resource ID is mismatched with speaker related resource")
}
