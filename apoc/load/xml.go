package load

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"regexp"
	"strings"
)

// XML loads a document and converts it into the generic map shape the
// query layer consumes: {_type, _attributes?, _text?, _children?}.
func XML(source string, opts Options) (any, error) {
	data, err := Fetch(source, opts)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, nil
	}
	return ParseXML(data)
}

// ParseXML parses XML bytes into nested maps.
func ParseXML(data []byte) (any, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return nil, fmt.Errorf("empty XML document")
		}
		if err != nil {
			return nil, err
		}
		if start, ok := tok.(xml.StartElement); ok {
			return elementToMap(dec, start)
		}
	}
}

func elementToMap(dec *xml.Decoder, start xml.StartElement) (map[string]any, error) {
	node := map[string]any{"_type": start.Name.Local}
	if len(start.Attr) > 0 {
		attrs := map[string]any{}
		for _, attr := range start.Attr {
			attrs[attr.Name.Local] = attr.Value
		}
		node["_attributes"] = attrs
	}
	var children []any
	var text strings.Builder
	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			child, err := elementToMap(dec, t)
			if err != nil {
				return nil, err
			}
			children = append(children, child)
		case xml.CharData:
			text.Write(t)
		case xml.EndElement:
			if trimmed := strings.TrimSpace(text.String()); trimmed != "" {
				node["_text"] = trimmed
			}
			if children != nil {
				node["_children"] = children
			}
			return node, nil
		}
	}
}

var (
	htmlTitlePattern  = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)
	htmlAnchorPattern = regexp.MustCompile(`(?is)<a[^>]+href=["']([^"']+)["']`)
	htmlTagPattern    = regexp.MustCompile(`(?s)<[^>]*>`)
	htmlScriptPattern = regexp.MustCompile(`(?is)<(script|style)[^>]*>.*?</(script|style)>`)
)

// HTML loads a page and extracts {title, text, links}. This is a
// lightweight reader, not a browser: scripts and styles are dropped, tags
// stripped, links collected from anchors.
func HTML(source string, opts Options) (map[string]any, error) {
	data, err := Fetch(source, opts)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, nil
	}
	page := string(data)
	out := map[string]any{}
	if m := htmlTitlePattern.FindStringSubmatch(page); m != nil {
		out["title"] = strings.TrimSpace(m[1])
	}
	var links []any
	for _, m := range htmlAnchorPattern.FindAllStringSubmatch(page, -1) {
		links = append(links, m[1])
	}
	if links != nil {
		out["links"] = links
	}
	stripped := htmlScriptPattern.ReplaceAllString(page, " ")
	stripped = htmlTagPattern.ReplaceAllString(stripped, " ")
	out["text"] = strings.Join(strings.Fields(stripped), " ")
	return out, nil
}
