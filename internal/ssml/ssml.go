// Package ssml assembles Azure-flavoured SSML documents for speech synthesis.
package ssml

import (
	"regexp"
	"strconv"
	"strings"
)

// DefaultLocale is used when neither an explicit locale nor a well-formed voice prefix is available.
const DefaultLocale = "en-US"

// escaper replaces the five XML-reserved characters in a single pass, so
// already-escaped input is escaped again rather than skipped.
var escaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&apos;",
)

var localePattern = regexp.MustCompile(`^[a-z]{2,3}-[A-Z]{2}$`)

// Params is the flat input of Build.
type Params struct {
	Text  string
	Voice string
	// Locale wins over the locale derived from Voice.
	Locale string

	Style       string
	StyleDegree *float64

	Rate   string
	Pitch  string
	Volume string

	LeadingSilenceMs  int
	TrailingSilenceMs int
}

// Escape returns s with &, <, >, " and ' replaced by their named entities.
func Escape(s string) string {
	return escaper.Replace(s)
}

// LocaleFromVoice derives a locale from voice names of the form xx-XX-Name.
// The second result is false when the prefix is not a locale tag.
func LocaleFromVoice(voice string) (string, bool) {
	parts := strings.SplitN(voice, "-", 3)
	if len(parts) < 3 {
		return "", false
	}
	candidate := parts[0] + "-" + parts[1]
	if !localePattern.MatchString(candidate) {
		return "", false
	}
	return candidate, true
}

// ResolveLocale picks the document locale for p.
func ResolveLocale(p Params) string {
	if p.Locale != "" {
		return p.Locale
	}
	if loc, ok := LocaleFromVoice(p.Voice); ok {
		return loc
	}
	return DefaultLocale
}

// Build renders p as an SSML document. The text is always escaped; the
// express-as and prosody wrappers are emitted only when one of their
// attributes is set.
func Build(p Params) string {
	var b strings.Builder
	b.WriteString(`<speak version="1.0" xmlns="http://www.w3.org/2001/10/synthesis" xmlns:mstts="https://www.w3.org/2001/mstts" xml:lang="`)
	b.WriteString(Escape(ResolveLocale(p)))
	b.WriteString(`"><voice name="`)
	b.WriteString(Escape(p.Voice))
	b.WriteString(`">`)

	if p.LeadingSilenceMs > 0 {
		writeSilence(&b, "Leading-exact", p.LeadingSilenceMs)
	}

	hasStyle := p.Style != "" || p.StyleDegree != nil
	if hasStyle {
		b.WriteString(`<mstts:express-as`)
		writeAttr(&b, "style", p.Style)
		if p.StyleDegree != nil {
			writeAttr(&b, "styledegree", strconv.FormatFloat(*p.StyleDegree, 'f', -1, 64))
		}
		b.WriteString(`>`)
	}

	hasProsody := p.Rate != "" || p.Pitch != "" || p.Volume != ""
	if hasProsody {
		b.WriteString(`<prosody`)
		writeAttr(&b, "rate", p.Rate)
		writeAttr(&b, "pitch", p.Pitch)
		writeAttr(&b, "volume", p.Volume)
		b.WriteString(`>`)
	}

	b.WriteString(Escape(p.Text))

	if hasProsody {
		b.WriteString(`</prosody>`)
	}
	if hasStyle {
		b.WriteString(`</mstts:express-as>`)
	}

	if p.TrailingSilenceMs > 0 {
		// "Tailing" is Azure's spelling.
		writeSilence(&b, "Tailing-exact", p.TrailingSilenceMs)
	}

	b.WriteString(`</voice></speak>`)
	return b.String()
}

func writeAttr(b *strings.Builder, name, value string) {
	if value == "" {
		return
	}
	b.WriteByte(' ')
	b.WriteString(name)
	b.WriteString(`="`)
	b.WriteString(Escape(value))
	b.WriteByte('"')
}

func writeSilence(b *strings.Builder, kind string, ms int) {
	b.WriteString(`<mstts:silence type="`)
	b.WriteString(kind)
	b.WriteString(`" value="`)
	b.WriteString(strconv.Itoa(ms))
	b.WriteString(`ms"/>`)
}
