package ccda

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding/ianaindex"
)

// elementPath is the stack of lower-cased names of the currently open
// elements, outermost first.
type elementPath []string

func (p elementPath) depth() int { return len(p) }

// under reports whether any element on the path has a name containing
// fragment.
func (p elementPath) under(fragment string) bool {
	for _, name := range p {
		if strings.Contains(name, fragment) {
			return true
		}
	}
	return false
}

// underAny reports whether any element on the path contains any of the
// fragments.
func (p elementPath) underAny(fragments ...string) bool {
	for _, f := range fragments {
		if p.under(f) {
			return true
		}
	}
	return false
}

// tokenHandler receives the structural events produced by walk.
type tokenHandler interface {
	openElement(tag string, attrs []xml.Attr, path elementPath)
	closeElement(tag, text string, path elementPath)
}

// walk streams the XML in data, maintaining the element path and
// accumulating character data until the next close event. Text is handed
// over trimmed and only when non-blank; the buffer is reset after each
// dispatch.
func walk(data []byte, h tokenHandler) error {
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.CharsetReader = charsetReader

	var (
		path     elementPath
		text     strings.Builder
		seenRoot bool
	)

	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			seenRoot = true
			tag := strings.ToLower(t.Name.Local)
			path = append(path, tag)
			h.openElement(tag, t.Attr, path)
		case xml.EndElement:
			tag := strings.ToLower(t.Name.Local)
			if s := strings.TrimSpace(text.String()); s != "" {
				h.closeElement(tag, s, path)
				text.Reset()
			}
			if len(path) > 0 {
				path = path[:len(path)-1]
			}
		case xml.CharData:
			text.Write(t)
		}
	}

	if !seenRoot {
		return ErrNoRootElement
	}
	return nil
}

// charsetReader decodes documents that declare a non UTF-8 encoding in
// their prolog, e.g. ISO-8859-1 exports from older systems.
func charsetReader(label string, input io.Reader) (io.Reader, error) {
	enc, err := ianaindex.IANA.Encoding(label)
	if err != nil {
		return nil, fmt.Errorf("unsupported encoding %q: %w", label, err)
	}
	if enc == nil {
		return nil, fmt.Errorf("unsupported encoding %q", label)
	}
	return enc.NewDecoder().Reader(input), nil
}
