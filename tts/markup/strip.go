package markup

import (
	"strings"

	"golang.org/x/net/html"
)

// IsSSML reports whether s is (or contains) an SSML document.
func IsSSML(s string) bool {
	return containsSpeak(s)
}

// Strip reduces SSML to the plain text a listener hears. Tags are dropped,
// <sub alias="..."> is replaced by its alias, and breaks and sentence or
// paragraph boundaries become spaces. Whitespace is not normalized.
func Strip(ssml string) string {
	z := html.NewTokenizer(strings.NewReader(ssml))
	var b strings.Builder
	skipDepth := 0

	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			return b.String()

		case html.TextToken:
			if skipDepth == 0 {
				b.Write(z.Text())
			}

		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			tag := string(name)
			if skipDepth > 0 {
				if tag == "sub" && tt == html.StartTagToken {
					skipDepth++
				}
				continue
			}
			switch tag {
			case "sub":
				attrs := readAttrs(z, hasAttr)
				if alias, ok := attrs["alias"]; ok {
					b.WriteString(alias)
					if tt == html.StartTagToken {
						skipDepth = 1
					}
				}
			case "break", "p", "s":
				b.WriteByte(' ')
			}

		case html.EndTagToken:
			name, _ := z.TagName()
			tag := string(name)
			if skipDepth > 0 {
				if tag == "sub" {
					skipDepth--
				}
				continue
			}
			if tag == "p" || tag == "s" {
				b.WriteByte(' ')
			}
		}
	}
}
