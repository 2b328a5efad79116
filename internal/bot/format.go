package bot

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	promptLine   = regexp.MustCompile(`^[A-Z0-9-]+#$`)
	showLine     = regexp.MustCompile(`(?i)^show\s+`)
	signalUpRx   = regexp.MustCompile(`up.*?Rx\s*:([-\d.]+)`)
	signalUpTx   = regexp.MustCompile(`up.*?Tx\s*:([-\d.]+)`)
	signalDownTx = regexp.MustCompile(`down.*?Tx\s*:([-\d.]+)`)
	signalDownRx = regexp.MustCompile(`down.*?Rx\s*:([-\d.]+)`)
	signalAtt    = regexp.MustCompile(`(\d+\.\d+)\(dB\)`)
)

// attenuationMarkers locate the attenuation table in a status dump, most
// specific first.
var attenuationMarkers = []string{
	"OLT                  ONU              Attenuation",
	"Attenuation",
}

// CleanDeviceOutput removes OLT prompt lines (e.g. "LX-OLT-DURENAN#") and
// echoed "show ..." commands from raw CLI output.
func CleanDeviceOutput(text string) string {
	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, line := range lines {
		t := strings.TrimSpace(line)
		if promptLine.MatchString(t) || showLine.MatchString(t) {
			continue
		}
		kept = append(kept, line)
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}

// SplitStatus splits a status dump into the ONT detail section and the
// attenuation section. The attenuation section starts at the last
// "show pon power" command before the table header, or at the header
// itself. Both parts are cleaned; attenuation is empty when there is no
// table.
func SplitStatus(raw string) (detail, attenuation string) {
	at := -1
	for _, marker := range attenuationMarkers {
		idx := strings.Index(raw, marker)
		if idx < 0 {
			continue
		}
		at = idx
		if show := strings.LastIndex(raw[:idx], "show pon power"); show >= 0 {
			at = show
		}
		break
	}
	if at < 0 {
		return CleanDeviceOutput(raw), ""
	}
	return CleanDeviceOutput(raw[:at]), CleanDeviceOutput(raw[at:])
}

// SummarizeSignal renders an optical power dump as upstream and downstream
// Tx/Rx readings. Output it cannot parse is returned under the same heading.
func SummarizeSignal(raw string) string {
	var b strings.Builder
	b.WriteString("📡 Optical Signal Info\n\n")

	upRx := firstGroup(signalUpRx, raw)
	downRx := firstGroup(signalDownRx, raw)
	if upRx == "" && downRx == "" {
		b.WriteString(CleanDeviceOutput(raw))
		return b.String()
	}

	b.WriteString("⬆️ UPLOAD (ONU -> OLT)\n")
	b.WriteString("Tx Power: " + orUnknown(firstGroup(signalUpTx, raw)) + " dBm\n")
	b.WriteString("Rx Power: " + orUnknown(upRx) + " dBm\n\n")
	b.WriteString("⬇️ DOWNLOAD (OLT -> ONU)\n")
	b.WriteString("Tx Power: " + orUnknown(firstGroup(signalDownTx, raw)) + " dBm\n")
	b.WriteString("Rx Power: " + orUnknown(downRx) + " dBm")
	if att := firstGroup(signalAtt, raw); att != "" {
		b.WriteString("\n\n📉 Attenuation: " + att + " dB")
	}
	return b.String()
}

func firstGroup(re *regexp.Regexp, s string) string {
	m := re.FindStringSubmatch(s)
	if len(m) < 2 {
		return ""
	}
	return m[1]
}

func orUnknown(s string) string {
	if s == "" {
		return "?"
	}
	return s
}

// orNA substitutes "N/A" for empty display values.
func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

// codeBlock renders a titled preformatted block.
func codeBlock(title, body string) string {
	if body == "" {
		body = "(kosong)"
	}
	return "*" + title + ":*\n```\n" + body + "\n```"
}

// Chunk splits text into pieces of at most limit bytes, preferring line
// boundaries and never splitting a UTF-8 sequence. A limit <= 0 disables
// splitting.
func Chunk(text string, limit int) []string {
	if limit <= 0 || len(text) <= limit {
		return []string{text}
	}
	var chunks []string
	for len(text) > limit {
		cut := strings.LastIndex(text[:limit], "\n")
		if cut <= 0 {
			cut = limit
			for cut > 0 && !utf8.RuneStart(text[cut]) {
				cut--
			}
			if cut == 0 {
				cut = limit
			}
		}
		chunks = append(chunks, text[:cut])
		text = strings.TrimPrefix(text[cut:], "\n")
	}
	if text != "" {
		chunks = append(chunks, text)
	}
	return chunks
}

// truncate shortens s to at most n runes, for log lines.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
