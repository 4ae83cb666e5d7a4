package transport

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"errors"
	"io"
	"mime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Data types understood by the default decoders.
const (
	DataTypeJSON = "json"
	DataTypeXML  = "xml"
	DataTypeYAML = "yaml"
	DataTypeText = "text"
)

// Decoder turns a response body into the value handed to success hooks.
type Decoder func(body []byte) (any, error)

// XMLNode is the generic tree produced by the xml decoder.
type XMLNode struct {
	Name     xml.Name
	Attrs    []xml.Attr
	Text     string
	Children []*XMLNode
}

// Find returns the first direct child with the given local name.
func (n *XMLNode) Find(local string) *XMLNode {
	for _, c := range n.Children {
		if c.Name.Local == local {
			return c
		}
	}
	return nil
}

var errEmptyDocument = errors.New("empty document")

func defaultDecoders() map[string]Decoder {
	return map[string]Decoder{
		DataTypeJSON: decodeJSON,
		DataTypeXML:  decodeXML,
		DataTypeYAML: decodeYAML,
		DataTypeText: decodeText,
	}
}

func decodeJSON(body []byte) (any, error) {
	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		return nil, err
	}
	return v, nil
}

func decodeYAML(body []byte) (any, error) {
	var v any
	if err := yaml.Unmarshal(body, &v); err != nil {
		return nil, err
	}
	return v, nil
}

func decodeText(body []byte) (any, error) {
	return string(body), nil
}

// decodeXML builds an XMLNode tree and rejects documents that are not well formed.
func decodeXML(body []byte) (any, error) {
	dec := xml.NewDecoder(bytes.NewReader(body))
	var (
		root  *XMLNode
		stack []*XMLNode
	)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			node := &XMLNode{Name: t.Name, Attrs: t.Copy().Attr}
			if len(stack) == 0 {
				if root != nil {
					return nil, errors.New("multiple root elements")
				}
				root = node
			} else {
				parent := stack[len(stack)-1]
				parent.Children = append(parent.Children, node)
			}
			stack = append(stack, node)
		case xml.EndElement:
			stack = stack[:len(stack)-1]
		case xml.CharData:
			if len(stack) > 0 {
				stack[len(stack)-1].Text += strings.TrimSpace(string(t))
			}
		}
	}
	if root == nil {
		return nil, errEmptyDocument
	}
	return root, nil
}

// guessDataType maps a Content-Type to a data type, falling back to text.
func guessDataType(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.ToLower(contentType)
	}
	switch {
	case strings.Contains(mediaType, "json"):
		return DataTypeJSON
	case strings.Contains(mediaType, "xml"):
		return DataTypeXML
	case strings.Contains(mediaType, "yaml"):
		return DataTypeYAML
	default:
		return DataTypeText
	}
}
