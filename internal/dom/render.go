package dom

import (
	"fmt"
	"html"
	"io"
	"sort"
	"strings"
)

// voidElements have no closing tag.
var voidElements = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "embed": true,
	"hr": true, "img": true, "input": true, "link": true, "meta": true,
	"source": true, "track": true, "wbr": true,
}

// Render writes the subtree rooted at n as HTML. Hidden elements carry the
// hidden attribute.
func Render(w io.Writer, n *Node) error {
	switch n.Kind {
	case KindText:
		_, err := io.WriteString(w, html.EscapeString(n.Text))
		return err
	case KindRaw:
		_, err := io.WriteString(w, n.Text)
		return err
	case KindElement:
		return renderElement(w, n)
	default:
		return fmt.Errorf("unknown node kind: %d", n.Kind)
	}
}

func renderElement(w io.Writer, n *Node) error {
	if _, err := fmt.Fprintf(w, "<%s", n.Tag); err != nil {
		return err
	}
	if n.ID != "" {
		if _, err := fmt.Fprintf(w, ` id="%s"`, html.EscapeString(n.ID)); err != nil {
			return err
		}
	}

	keys := make([]string, 0, len(n.Attrs))
	for k := range n.Attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if _, err := fmt.Fprintf(w, ` %s="%s"`, k, html.EscapeString(n.Attrs[k])); err != nil {
			return err
		}
	}
	if n.Hidden {
		if _, err := io.WriteString(w, " hidden"); err != nil {
			return err
		}
	}

	if _, err := io.WriteString(w, ">"); err != nil {
		return err
	}
	if voidElements[n.Tag] {
		return nil
	}

	for _, c := range n.Children {
		if err := Render(w, c); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "</%s>", n.Tag)
	return err
}

// HTML returns the rendered subtree.
func (n *Node) HTML() string {
	var b strings.Builder
	Render(&b, n)
	return b.String()
}

// InnerHTML returns the rendered children.
func (n *Node) InnerHTML() string {
	var b strings.Builder
	for _, c := range n.Children {
		Render(&b, c)
	}
	return b.String()
}
