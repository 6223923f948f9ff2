package speech

// VoiceFallback is used when no voice is requested and the language has no mapping.
const VoiceFallback = "en-US-JennyNeural"

var voiceMap = map[string]string{
	"en-US": "en-US-JennyNeural",
	"es-ES": "es-ES-ElviraNeural",
	"fr-FR": "fr-FR-DeniseNeural",
	"zh-CN": "zh-CN-XiaoxiaoNeural",
	"ar-SA": "ar-SA-ZariyahNeural",
}

// AudioFormat pairs the Azure output format with the MIME type returned to clients.
type AudioFormat struct {
	OutputFormat string
	MIME         string
}

const (
	FormatWAV = "audio/wav"
	FormatMP3 = "audio/mp3"
)

var audioFormats = map[string]AudioFormat{
	FormatWAV: {OutputFormat: "riff-16khz-16bit-mono-pcm", MIME: "audio/wav"},
	FormatMP3: {OutputFormat: "audio-16khz-32kbitrate-mono-mp3", MIME: "audio/mpeg"},
}

// ResolveVoice returns the requested voice, else the language's neural voice, else VoiceFallback.
// "default" counts as no request.
func ResolveVoice(language, requested string) string {
	if requested != "" && requested != "default" {
		return requested
	}
	if v, ok := voiceMap[language]; ok {
		return v
	}
	return VoiceFallback
}

// NormalizeFormat maps anything other than audio/wav to audio/mp3.
func NormalizeFormat(format string) string {
	if format == FormatWAV {
		return FormatWAV
	}
	return FormatMP3
}

// FormatFor returns the Azure format for a client format, defaulting to MP3.
func FormatFor(format string) AudioFormat {
	return audioFormats[NormalizeFormat(format)]
}

// IsValidLanguage accepts tags of 2 to 10 characters.
func IsValidLanguage(lang string) bool {
	return len(lang) >= 2 && len(lang) <= 10
}
