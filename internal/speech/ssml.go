package speech

import (
	"fmt"
	"strings"
)

var xmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&apos;",
)

// EscapeXML escapes text for use inside SSML element content and attributes.
func EscapeXML(s string) string {
	return xmlEscaper.Replace(s)
}

// BuildSSML wraps text in a single-voice SSML document.
func BuildSSML(text, language, voice string) string {
	return fmt.Sprintf(
		`<speak version="1.0" xmlns="http://www.w3.org/2001/10/synthesis" xml:lang="%s"><voice name="%s">%s</voice></speak>`,
		EscapeXML(language), EscapeXML(voice), EscapeXML(text),
	)
}
