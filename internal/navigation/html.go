package navigation

import (
	"bytes"
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// blockElements end a line of extracted text.
var blockElements = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.Section: true, atom.Article: true,
	atom.Blockquote: true, atom.Li: true, atom.Tr: true, atom.Br: true,
	atom.Pre: true, atom.Figcaption: true, atom.Dt: true, atom.Dd: true,
	atom.Aside: true, atom.Header: true, atom.Footer: true, atom.Table: true,
}

var headingElements = map[atom.Atom]bool{
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
}

// skippedElements contribute no speakable text.
var skippedElements = map[atom.Atom]bool{
	atom.Head: true, atom.Script: true, atom.Style: true, atom.Svg: true,
	atom.Math: true, atom.Noscript: true, atom.Template: true,
}

// htmlText extracts readable text from an XHTML chapter, one line per block.
func htmlText(data []byte) (string, error) {
	doc, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("parse chapter: %w", err)
	}

	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			b.WriteString(n.Data)
			return
		case html.ElementNode:
			if skippedElements[n.DataAtom] {
				return
			}
			if headingElements[n.DataAtom] {
				b.WriteByte('\n')
				b.WriteString(endSentence(strings.Join(strings.Fields(nodeText(n)), " ")))
				b.WriteByte('\n')
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode && blockElements[n.DataAtom] {
			b.WriteByte('\n')
		}
	}
	walk(doc)

	return normalizeText(b.String()), nil
}

// nodeText concatenates the text beneath n.
func nodeText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		if n.Type == html.ElementNode && skippedElements[n.DataAtom] {
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

type navLink struct {
	href  string
	label string
}

// parseNav returns the links of an EPUB3 navigation document's toc nav, or
// of its first nav when none is marked as the toc.
func parseNav(data []byte) ([]navLink, error) {
	doc, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parse nav: %w", err)
	}

	var navs []*html.Node
	var find func(*html.Node)
	find = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == atom.Nav {
			navs = append(navs, n)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			find(c)
		}
	}
	find(doc)
	if len(navs) == 0 {
		return nil, fmt.Errorf("no nav element")
	}

	toc := navs[0]
	for _, n := range navs {
		if epubType(n) == "toc" {
			toc = n
			break
		}
	}

	var links []navLink
	var collect func(*html.Node)
	collect = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == atom.A {
			if href := attr(n, "href"); href != "" {
				links = append(links, navLink{
					href:  href,
					label: strings.Join(strings.Fields(nodeText(n)), " "),
				})
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			collect(c)
		}
	}
	collect(toc)
	return links, nil
}

func epubType(n *html.Node) string {
	for _, a := range n.Attr {
		if a.Key == "epub:type" || (a.Key == "type" && a.Namespace == "epub") {
			return a.Val
		}
	}
	return ""
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
