package format

import (
	"fmt"
	"strings"
)

// Tags accepted by HTML.
const (
	TagNone   = ""
	TagLink   = "a"
	TagBold   = "b"
	TagStrong = "strong"
	TagItalic = "i"
	TagEm     = "em"
	TagPre    = "pre"
	TagCode   = "code"
)

var (
	textEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	attrEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;")
)

// EscapeHTML escapes text for Telegram HTML parse mode.
func EscapeHTML(text string) string {
	return textEscaper.Replace(text)
}

// HTML wraps escaped text into tag. The url is used only by TagLink.
func HTML(tag, text string, url ...string) (string, error) {
	switch tag {
	case TagNone:
		return EscapeHTML(text), nil
	case TagLink:
		href := ""
		if len(url) > 0 {
			href = url[0]
		}
		return `<a href="` + attrEscaper.Replace(href) + `">` + EscapeHTML(text) + `</a>`, nil
	case TagBold, TagStrong, TagItalic, TagEm, TagPre, TagCode:
		return "<" + tag + ">" + EscapeHTML(text) + "</" + tag + ">", nil
	}
	return "", fmt.Errorf("format: unsupported html tag %q", tag)
}

// Link is HTML(TagLink, text, url) for callers that cannot fail.
func Link(text, url string) string {
	s, _ := HTML(TagLink, text, url)
	return s
}

// Bold is HTML(TagBold, text).
func Bold(text string) string {
	s, _ := HTML(TagBold, text)
	return s
}
