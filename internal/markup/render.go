package markup

import (
	"html"
	"strings"
)

// RenderPlain drops all formatting.
func RenderPlain(n *Node) string {
	var b strings.Builder
	render(&b, n, plain{})
	return b.String()
}

// RenderHTML renders n as an HTML fragment with all text escaped.
func RenderHTML(n *Node) string {
	var b strings.Builder
	render(&b, n, htmlTarget{})
	return b.String()
}

// RenderTelegram renders n for Telegram's MarkdownV2 parse mode.
func RenderTelegram(n *Node) string {
	var b strings.Builder
	render(&b, n, telegram{})
	return b.String()
}

type target interface {
	text(s string) string
	open(k Kind) string
	close(k Kind) string
	paragraphSep() string
}

func render(b *strings.Builder, n *Node, t target) {
	switch n.Kind {
	case KindText:
		b.WriteString(t.text(n.Text))
		return
	case KindLineBreak:
		b.WriteString(t.open(KindLineBreak))
		return
	case KindDocument:
		for i, child := range n.Children {
			if i > 0 {
				b.WriteString(t.paragraphSep())
			}
			render(b, child, t)
		}
		return
	}
	b.WriteString(t.open(n.Kind))
	for _, child := range n.Children {
		render(b, child, t)
	}
	b.WriteString(t.close(n.Kind))
}

type plain struct{}

func (plain) text(s string) string { return s }
func (plain) paragraphSep() string { return "\n\n" }

func (plain) open(k Kind) string {
	if k == KindLineBreak {
		return "\n"
	}
	return ""
}

func (plain) close(Kind) string { return "" }

type htmlTarget struct{}

func (htmlTarget) text(s string) string { return html.EscapeString(s) }
func (htmlTarget) paragraphSep() string { return "" }

func (htmlTarget) open(k Kind) string {
	switch k {
	case KindParagraph:
		return "<p>"
	case KindBold:
		return "<strong>"
	case KindEmphasis:
		return "<em>"
	case KindLineBreak:
		return "<br>"
	}
	return ""
}

func (htmlTarget) close(k Kind) string {
	switch k {
	case KindParagraph:
		return "</p>"
	case KindBold:
		return "</strong>"
	case KindEmphasis:
		return "</em>"
	}
	return ""
}

type telegram struct{}

func (telegram) text(s string) string { return EscapeTelegram(s) }
func (telegram) paragraphSep() string { return "\n\n" }

func (telegram) open(k Kind) string {
	switch k {
	case KindBold:
		return "*"
	case KindEmphasis:
		return "_"
	case KindLineBreak:
		return "\n"
	}
	return ""
}

func (telegram) close(k Kind) string {
	switch k {
	case KindBold:
		return "*"
	case KindEmphasis:
		return "_"
	}
	return ""
}

var telegramSpecial = []string{"\\", "_", "*", "[", "]", "(", ")", "~", "`", ">", "#", "+", "-", "=", "|", "{", "}", ".", "!"}

// EscapeTelegram escapes every character MarkdownV2 treats as markup.
func EscapeTelegram(text string) string {
	escaped := text
	for _, char := range telegramSpecial {
		escaped = strings.ReplaceAll(escaped, char, "\\"+char)
	}
	return escaped
}
