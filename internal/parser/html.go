package parser

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// HTMLParser extracts readable text from web pages.
type HTMLParser struct{}

func (p *HTMLParser) Parse(r io.Reader, name string) (*Page, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	page := &Page{Title: titleFromName(name)}
	if title := findTitle(doc); title != "" {
		page.Title = title
	}

	// Text that sits directly in containers such as <div> is gathered here
	// until the next block element.
	var loose strings.Builder
	flush := func() {
		page.add(collapseSpace(loose.String()))
		loose.Reset()
	}

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			loose.WriteString(n.Data)
			loose.WriteByte(' ')
			return
		case html.ElementNode:
			if skipElement(n.DataAtom) {
				return
			}
			if n.DataAtom == atom.Pre {
				flush()
				page.add(textContent(n))
				return
			}
			if isBlock(n.DataAtom) {
				flush()
				page.add(collapseSpace(textContent(n)))
				return
			}
			if n.DataAtom == atom.Br {
				loose.WriteByte('\n')
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}

	if body := findBody(doc); body != nil {
		walk(body)
	} else {
		walk(doc)
	}
	flush()

	return page, nil
}

func skipElement(a atom.Atom) bool {
	switch a {
	case atom.Script, atom.Style, atom.Noscript, atom.Template, atom.Svg,
		atom.Nav, atom.Footer, atom.Header, atom.Iframe, atom.Button, atom.Select:
		return true
	}
	return false
}

func isBlock(a atom.Atom) bool {
	switch a {
	case atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6,
		atom.P, atom.Li, atom.Td, atom.Th, atom.Dt, atom.Dd,
		atom.Blockquote, atom.Figcaption, atom.Caption:
		return true
	}
	return false
}

// textContent returns the text below n, skipping non-content elements.
func textContent(n *html.Node) string {
	var buf strings.Builder
	var extract func(*html.Node)
	extract = func(n *html.Node) {
		if n.Type == html.ElementNode && skipElement(n.DataAtom) {
			return
		}
		if n.Type == html.TextNode {
			buf.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			extract(c)
		}
	}
	extract(n)
	return strings.TrimSpace(buf.String())
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func findTitle(n *html.Node) string {
	if n.Type == html.ElementNode && n.DataAtom == atom.Title {
		return collapseSpace(textContent(n))
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if t := findTitle(c); t != "" {
			return t
		}
	}
	return ""
}

func findBody(n *html.Node) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == atom.Body {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if b := findBody(c); b != nil {
			return b
		}
	}
	return nil
}
