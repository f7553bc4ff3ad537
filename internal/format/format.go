// Package format implements the lightweight formatting pass applied to message content: fenced code
// blocks, inline code spans and line breaks. The pass always runs over the complete raw text, so a
// streamed message is re-parsed from its accumulated buffer on every fragment and never from previously
// rendered output.
package format

import (
	"html"
	"strings"
)

// Kind identifies the type of a Segment.
type Kind int

const (
	// KindText is plain text.
	KindText Kind = iota
	// KindCode is an inline code span delimited by single backticks.
	KindCode
	// KindPre is a preformatted block delimited by triple backticks.
	KindPre
	// KindBreak is a line break.
	KindBreak
)

// Segment is one piece of formatted content.
type Segment struct {
	Kind Kind
	Text string
}

const fence = "```"

// Parse splits raw text into segments. Triple-backtick spans become KindPre, their content kept
// verbatim including newlines. Outside fences, single-backtick spans without a newline become KindCode
// and every remaining newline becomes KindBreak. An unterminated fence or backtick is left as text, so
// a half-streamed code block renders as plain text until its closing delimiter arrives.
func Parse(raw string) []Segment {
	var segs []Segment
	rest := raw
	for {
		start := strings.Index(rest, fence)
		if start < 0 {
			break
		}
		end := strings.Index(rest[start+len(fence):], fence)
		if end < 0 {
			break
		}
		segs = appendInline(segs, rest[:start])
		segs = append(segs, Segment{Kind: KindPre, Text: rest[start+len(fence) : start+len(fence)+end]})
		rest = rest[start+len(fence)+end+len(fence):]
	}
	return appendInline(segs, rest)
}

func appendInline(segs []Segment, s string) []Segment {
	var text strings.Builder
	flush := func() {
		if text.Len() > 0 {
			segs = append(segs, Segment{Kind: KindText, Text: text.String()})
			text.Reset()
		}
	}

	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\n':
			flush()
			segs = append(segs, Segment{Kind: KindBreak})
		case '`':
			end := strings.IndexAny(s[i+1:], "`\n")
			if end <= 0 || s[i+1+end] != '`' {
				text.WriteByte('`')
				continue
			}
			flush()
			segs = append(segs, Segment{Kind: KindCode, Text: s[i+1 : i+1+end]})
			i += end + 1
		default:
			text.WriteByte(s[i])
		}
	}
	flush()
	return segs
}

// HTML renders raw text as HTML: <pre> for fenced blocks, <code> for inline spans and <br> for line
// breaks. All text is escaped.
func HTML(raw string) string {
	var sb strings.Builder
	for _, seg := range Parse(raw) {
		switch seg.Kind {
		case KindText:
			sb.WriteString(html.EscapeString(seg.Text))
		case KindCode:
			sb.WriteString("<code>")
			sb.WriteString(html.EscapeString(seg.Text))
			sb.WriteString("</code>")
		case KindPre:
			sb.WriteString("<pre>")
			sb.WriteString(html.EscapeString(seg.Text))
			sb.WriteString("</pre>")
		case KindBreak:
			sb.WriteString("<br>")
		}
	}
	return sb.String()
}

// Plain renders segments back to text without delimiters.
func Plain(segs []Segment) string {
	var sb strings.Builder
	for _, seg := range segs {
		if seg.Kind == KindBreak {
			sb.WriteByte('\n')
			continue
		}
		sb.WriteString(seg.Text)
	}
	return sb.String()
}
