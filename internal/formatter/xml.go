package formatter

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

// xmlNode is an element, or a leaf holding pre-rendered markup or text.
type xmlNode struct {
	name     string
	attrs    []xml.Attr
	children []*xmlNode
	leaf     string
	text     bool
}

// FormatXML re-serialises an XML document with two-space indentation.
// Empty elements are self-closed and elements holding only text stay on
// one line.
func FormatXML(input string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", ErrInvalidXML
	}

	prolog, root, err := parseXML(input)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	for _, n := range prolog {
		b.WriteString(n.leaf)
		b.WriteByte('\n')
	}
	writeXMLNode(&b, root, 0)
	return strings.TrimRight(b.String(), "\n"), nil
}

func parseXML(input string) ([]*xmlNode, *xmlNode, error) {
	dec := xml.NewDecoder(strings.NewReader(input))
	dec.Strict = true

	var (
		prolog []*xmlNode
		root   *xmlNode
		stack  []*xmlNode
	)

	appendLeaf := func(n *xmlNode) error {
		if len(stack) > 0 {
			parent := stack[len(stack)-1]
			parent.children = append(parent.children, n)
			return nil
		}
		if n.text {
			return fmt.Errorf("%w: text outside root element", ErrInvalidXML)
		}
		if root == nil {
			prolog = append(prolog, n)
		}
		return nil
	}

	for {
		tok, err := dec.RawToken()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrInvalidXML, err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			n := &xmlNode{name: qualifiedName(t.Name)}
			for _, a := range t.Attr {
				n.attrs = append(n.attrs, xml.Attr{Name: xml.Name{Local: qualifiedName(a.Name)}, Value: a.Value})
			}
			if len(stack) == 0 {
				if root != nil {
					return nil, nil, fmt.Errorf("%w: multiple root elements", ErrInvalidXML)
				}
				root = n
			} else {
				parent := stack[len(stack)-1]
				parent.children = append(parent.children, n)
			}
			stack = append(stack, n)

		case xml.EndElement:
			name := qualifiedName(t.Name)
			if len(stack) == 0 || stack[len(stack)-1].name != name {
				return nil, nil, fmt.Errorf("%w: unexpected closing tag </%s>", ErrInvalidXML, name)
			}
			stack = stack[:len(stack)-1]

		case xml.CharData:
			text := strings.TrimSpace(string(t))
			if text == "" {
				continue
			}
			var buf bytes.Buffer
			if err := xml.EscapeText(&buf, []byte(text)); err != nil {
				return nil, nil, fmt.Errorf("%w: %v", ErrInvalidXML, err)
			}
			if err := appendLeaf(&xmlNode{leaf: buf.String(), text: true}); err != nil {
				return nil, nil, err
			}

		case xml.Comment:
			if err := appendLeaf(&xmlNode{leaf: "<!--" + string(t) + "-->"}); err != nil {
				return nil, nil, err
			}
		case xml.ProcInst:
			if err := appendLeaf(&xmlNode{leaf: "<?" + t.Target + " " + strings.TrimSpace(string(t.Inst)) + "?>"}); err != nil {
				return nil, nil, err
			}
		case xml.Directive:
			if err := appendLeaf(&xmlNode{leaf: "<!" + string(t) + ">"}); err != nil {
				return nil, nil, err
			}
		}
	}

	if len(stack) > 0 {
		return nil, nil, fmt.Errorf("%w: unclosed element <%s>", ErrInvalidXML, stack[len(stack)-1].name)
	}
	if root == nil {
		return nil, nil, fmt.Errorf("%w: no root element", ErrInvalidXML)
	}
	return prolog, root, nil
}

func writeXMLNode(b *strings.Builder, n *xmlNode, depth int) {
	pad := strings.Repeat(indent, depth)
	if n.name == "" {
		b.WriteString(pad + n.leaf + "\n")
		return
	}

	b.WriteString(pad + "<" + n.name)
	for _, a := range n.attrs {
		var v bytes.Buffer
		_ = xml.EscapeText(&v, []byte(a.Value))
		b.WriteString(" " + a.Name.Local + `="` + v.String() + `"`)
	}

	switch {
	case len(n.children) == 0:
		b.WriteString("/>\n")
	case len(n.children) == 1 && n.children[0].text:
		b.WriteString(">" + n.children[0].leaf + "</" + n.name + ">\n")
	default:
		b.WriteString(">\n")
		for _, c := range n.children {
			writeXMLNode(b, c, depth+1)
		}
		b.WriteString(pad + "</" + n.name + ">\n")
	}
}

// qualifiedName keeps a namespace prefix as written in the source.
func qualifiedName(n xml.Name) string {
	if n.Space == "" {
		return n.Local
	}
	return n.Space + ":" + n.Local
}
