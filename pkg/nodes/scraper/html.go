package scraper

import (
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var (
	blankLines = regexp.MustCompile(`\n\s*\n(\s*\n)+`)
	spaces     = regexp.MustCompile(`[ \t\r\f\v]+`)
)

func skipped(n *html.Node) bool {
	switch n.DataAtom {
	case atom.Script, atom.Style, atom.Noscript, atom.Head, atom.Template:
		return true
	}

	return false
}

// CleanHTML returns the visible text of a document with whitespace collapsed.
func CleanHTML(document string) (string, error) {
	root, err := html.Parse(strings.NewReader(document))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}

	var parts []string

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && skipped(n) {
			return
		}

		if n.Type == html.TextNode {
			if text := strings.TrimSpace(spaces.ReplaceAllString(n.Data, " ")); text != "" {
				parts = append(parts, text)
			}
		}

		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}

	walk(root)

	return strings.Join(parts, " "), nil
}

// Markdown renders headings, paragraphs, list items and links as markdown text.
func Markdown(document string) (string, error) {
	root, err := html.Parse(strings.NewReader(document))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}

	var b strings.Builder

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			b.WriteString(spaces.ReplaceAllString(strings.ReplaceAll(n.Data, "\n", " "), " "))

			return
		case html.ElementNode:
			if skipped(n) {
				return
			}
		}

		prefix, suffix := markers(n)
		b.WriteString(prefix)

		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}

		b.WriteString(suffix)
	}

	walk(root)

	lines := strings.Split(b.String(), "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}

	out := blankLines.ReplaceAllString(strings.Join(lines, "\n"), "\n\n")

	return strings.TrimSpace(out), nil
}

func markers(n *html.Node) (string, string) {
	if n.Type != html.ElementNode {
		return "", ""
	}

	switch n.DataAtom {
	case atom.H1:
		return "\n\n# ", "\n\n"
	case atom.H2:
		return "\n\n## ", "\n\n"
	case atom.H3:
		return "\n\n### ", "\n\n"
	case atom.H4, atom.H5, atom.H6:
		return "\n\n#### ", "\n\n"
	case atom.P, atom.Div, atom.Section, atom.Article, atom.Ul, atom.Ol, atom.Table:
		return "\n\n", "\n\n"
	case atom.Li:
		return "\n- ", "\n"
	case atom.Br, atom.Tr:
		return "\n", ""
	case atom.Strong, atom.B:
		return "**", "**"
	case atom.Em, atom.I:
		return "_", "_"
	case atom.A:
		for _, attr := range n.Attr {
			if attr.Key == "href" && attr.Val != "" {
				return "[", "](" + attr.Val + ")"
			}
		}
	}

	return "", ""
}
