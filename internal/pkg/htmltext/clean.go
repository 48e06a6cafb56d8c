// Package htmltext turns HTML snippets captured from web pages into plain
// sentence text suitable for embedding.
package htmltext

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/net/html"
)

var (
	paragraphClose    = regexp.MustCompile(`(?i)</p\s*>`)
	whitespaceRun     = regexp.MustCompile(`\s+`)
	spaceBeforePeriod = regexp.MustCompile(` \.`)
	periodRun         = regexp.MustCompile(`\.{2,}`)
	placeholderRef    = regexp.MustCompile("\x00(\\d+)\x00")
)

// removed together with everything inside them
var droppedElements = map[string]bool{
	"button": true,
	"script": true,
	"style":  true,
}

// joined to the surrounding text without a separator
var inlineElements = map[string]bool{
	"a": true, "abbr": true, "b": true, "bdi": true, "cite": true, "em": true,
	"font": true, "i": true, "kbd": true, "mark": true, "q": true, "s": true,
	"samp": true, "small": true, "span": true, "strong": true, "sub": true,
	"sup": true, "u": true, "var": true,
}

// CleanSnippet converts an HTML snippet into sentence text. Paragraph ends
// become sentence breaks, markup is stripped, <code> elements are kept
// verbatim, <button> elements are dropped with their content and repeated
// periods collapse into one. Entities are left encoded.
func CleanSnippet(snippet string) string {
	snippet = paragraphClose.ReplaceAllStringFunc(snippet, func(m string) string {
		return m + "."
	})

	var (
		out       strings.Builder
		code      strings.Builder
		kept      []string
		dropDepth int
		codeDepth int
	)
	z := html.NewTokenizer(strings.NewReader(snippet))
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			break
		}
		if codeDepth > 0 {
			code.Write(z.Raw())
			if tt == html.StartTagToken || tt == html.EndTagToken {
				if name, _ := z.TagName(); string(name) == "code" {
					if tt == html.StartTagToken {
						codeDepth++
					} else {
						codeDepth--
					}
				}
			}
			if codeDepth == 0 {
				out.WriteString(placeholder(len(kept)))
				kept = append(kept, code.String())
				code.Reset()
			}
			continue
		}
		switch tt {
		case html.TextToken:
			if dropDepth == 0 {
				out.Write(z.Raw())
			}
		case html.StartTagToken:
			name, _ := z.TagName()
			tag := string(name)
			switch {
			case droppedElements[tag]:
				dropDepth++
			case dropDepth > 0:
			case tag == "code":
				codeDepth++
				code.Write(z.Raw())
			case !inlineElements[tag]:
				out.WriteByte(' ')
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			tag := string(name)
			switch {
			case droppedElements[tag]:
				if dropDepth > 0 {
					dropDepth--
				}
				out.WriteByte(' ')
			case dropDepth > 0:
			case !inlineElements[tag]:
				out.WriteByte(' ')
			}
		case html.SelfClosingTagToken:
			name, _ := z.TagName()
			if dropDepth == 0 && !inlineElements[string(name)] {
				out.WriteByte(' ')
			}
		default:
			if dropDepth == 0 {
				out.WriteByte(' ')
			}
		}
	}
	if codeDepth > 0 {
		// unterminated <code>: keep what was collected
		out.WriteString(placeholder(len(kept)))
		kept = append(kept, code.String())
	}

	text := whitespaceRun.ReplaceAllString(out.String(), " ")
	text = spaceBeforePeriod.ReplaceAllString(text, ".")
	text = periodRun.ReplaceAllString(text, ". ")
	text = strings.TrimSpace(whitespaceRun.ReplaceAllString(text, " "))
	if len(kept) == 0 {
		return text
	}
	return placeholderRef.ReplaceAllStringFunc(text, func(m string) string {
		idx, err := strconv.Atoi(strings.Trim(m, "\x00"))
		if err != nil || idx >= len(kept) {
			return ""
		}
		return kept[idx]
	})
}

func placeholder(idx int) string {
	return fmt.Sprintf("\x00%d\x00", idx)
}
