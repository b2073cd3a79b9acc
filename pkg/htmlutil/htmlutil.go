package htmlutil

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

var emphasisTags = map[string]bool{
	"b":      true,
	"i":      true,
	"strong": true,
	"em":     true,
}

// RemoveTags strips all markup from an html fragment and decodes entities.
// Paragraph, list item and line break boundaries become newlines, runs of
// whitespace are collapsed, and every line is trimmed. Empty lines are dropped.
func RemoveTags(fragment string) string {
	return normalize(fragment, false)
}

// RemoveTagsKeepingEmphasis is RemoveTags except that <b>, <i>, <strong> and
// <em> are kept as literal tags and list items are prefixed with a middle dot.
func RemoveTagsKeepingEmphasis(fragment string) string {
	return normalize(fragment, true)
}

// SelectionText is RemoveTags applied to the inner html of the first
// element in the selection, an empty selection yields an empty string.
func SelectionText(sel *goquery.Selection) string {
	inner, err := sel.Html()
	if err != nil {
		return ""
	}
	return RemoveTags(inner)
}

func normalize(fragment string, keepEmphasis bool) string {
	var out strings.Builder
	tokenizer := html.NewTokenizer(strings.NewReader(fragment))

	// name of the raw text element (script/style) whose contents are being dropped
	skipping := ""

	for {
		tt := tokenizer.Next()
		if tt == html.ErrorToken {
			break
		}
		token := tokenizer.Token()

		if skipping != "" {
			if tt == html.EndTagToken && token.Data == skipping {
				skipping = ""
			}
			continue
		}

		switch tt {
		case html.TextToken:
			out.WriteString(cleanText(token.Data))
		case html.StartTagToken, html.SelfClosingTagToken:
			name := token.Data
			switch {
			case name == "script" || name == "style":
				if tt == html.StartTagToken {
					skipping = name
				}
				out.WriteByte(' ')
			case name == "br":
				out.WriteByte('\n')
			case keepEmphasis && name == "li":
				out.WriteString("\n·")
			case keepEmphasis && emphasisTags[name]:
				out.WriteString("<" + name + ">")
			default:
				out.WriteByte(' ')
			}
		case html.EndTagToken:
			name := token.Data
			switch {
			case name == "p" || name == "li":
				out.WriteByte('\n')
			case keepEmphasis && emphasisTags[name]:
				out.WriteString("</" + name + ">")
			default:
				out.WriteByte(' ')
			}
		}
	}

	return collapse(out.String())
}

var textReplacer = strings.NewReplacer(
	"\n", " ",
	"\t", " ",
	"\u00a0", " ",
	"·", "\n·",
)

func cleanText(text string) string {
	return textReplacer.Replace(text)
}

var multipleSpaces = regexp.MustCompile(` +`)

func collapse(text string) string {
	text = multipleSpaces.ReplaceAllString(text, " ")
	lines := strings.Split(text, "\n")
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}
