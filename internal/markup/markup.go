// Package markup parses the small formatting vocabulary used in assistant
// answers and analysis text into a tree, and renders that tree with every
// piece of text escaped for its target.
package markup

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

type Kind int

const (
	KindDocument Kind = iota
	KindParagraph
	KindText
	KindBold
	KindEmphasis
	KindLineBreak
)

// Node is one element of a parsed document. Only Text nodes carry text.
type Node struct {
	Kind     Kind
	Text     string
	Children []*Node
}

var (
	paragraphSep = regexp.MustCompile(`\n[ \t]*\n+`)
	bulletPrefix = regexp.MustCompile(`^\s*(?:[-*•]|\d+[.)])\s+`)
)

// Parse builds the tree for text. Blank lines separate paragraphs, single
// newlines become line breaks and leading list markers are dropped.
// Unbalanced markers stay literal.
func Parse(text string) *Node {
	doc := &Node{Kind: KindDocument}
	text = strings.ReplaceAll(text, "\r\n", "\n")
	for _, block := range paragraphSep.Split(strings.TrimSpace(text), -1) {
		if strings.TrimSpace(block) == "" {
			continue
		}
		para := &Node{Kind: KindParagraph}
		for i, line := range strings.Split(block, "\n") {
			if i > 0 {
				para.Children = append(para.Children, &Node{Kind: KindLineBreak})
			}
			line = bulletPrefix.ReplaceAllString(line, "")
			para.Children = append(para.Children, parseInline(strings.TrimRight(line, " \t"), true)...)
		}
		doc.Children = append(doc.Children, para)
	}
	return doc
}

func parseInline(s string, allowBold bool) []*Node {
	var (
		out []*Node
		buf strings.Builder
	)
	flush := func() {
		if buf.Len() > 0 {
			out = append(out, &Node{Kind: KindText, Text: buf.String()})
			buf.Reset()
		}
	}

	for i := 0; i < len(s); {
		if allowBold && strings.HasPrefix(s[i:], "**") {
			if end := strings.Index(s[i+2:], "**"); end > 0 {
				flush()
				out = append(out, &Node{Kind: KindBold, Children: parseInline(s[i+2:i+2+end], false)})
				i += end + 4
				continue
			}
			buf.WriteString("**")
			i += 2
			continue
		}
		if c := s[i]; (c == '*' || c == '_') && opensEmphasis(s, i) {
			if end := closingEmphasis(s, i); end > 0 {
				flush()
				out = append(out, &Node{Kind: KindEmphasis, Children: []*Node{{Kind: KindText, Text: s[i+1 : end]}}})
				i = end + 1
				continue
			}
		}
		buf.WriteByte(s[i])
		i++
	}
	flush()
	return out
}

// opensEmphasis rejects markers inside words (snake_case, 2*3) and markers
// followed by a space.
func opensEmphasis(s string, i int) bool {
	if i+1 >= len(s) || s[i+1] == ' ' || s[i+1] == s[i] {
		return false
	}
	if i == 0 {
		return true
	}
	prev, _ := utf8.DecodeLastRuneInString(s[:i])
	return !unicode.IsLetter(prev) && !unicode.IsDigit(prev)
}

func closingEmphasis(s string, open int) int {
	marker := s[open]
	for j := open + 1; j < len(s); j++ {
		if s[j] != marker || s[j-1] == ' ' {
			continue
		}
		if j+1 < len(s) {
			next, _ := utf8.DecodeRuneInString(s[j+1:])
			if unicode.IsLetter(next) || unicode.IsDigit(next) {
				continue
			}
		}
		return j
	}
	return -1
}
