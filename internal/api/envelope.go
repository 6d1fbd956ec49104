package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/antchfx/jsonquery"
)

// The backend is not consistent about wrapping its payloads. Depending on
// the endpoint and version the interesting part sits at the root, under
// "data", or one level deeper. The helpers below look for it in a list of
// candidate paths.

type envelope struct {
	raw []byte
	doc *jsonquery.Node
}

func parseEnvelope(body []byte) (*envelope, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return &envelope{raw: body}, nil
	}
	doc, err := jsonquery.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &envelope{raw: body, doc: doc}, nil
}

// find returns the node at the first path that exists.
func (e *envelope) find(paths ...string) *jsonquery.Node {
	_, n := e.lookup(paths...)
	return n
}

func (e *envelope) lookup(paths ...string) (string, *jsonquery.Node) {
	if e.doc == nil {
		return "", nil
	}
	for _, p := range paths {
		n, err := jsonquery.Query(e.doc, p)
		if err == nil && n != nil {
			return p, n
		}
	}
	return "", nil
}

// rawAt returns the undecoded JSON at path. jsonquery turns every number
// into a float64, ids above 2^53 have to be read from the raw document.
func (e *envelope) rawAt(path string) (json.RawMessage, error) {
	cur := json.RawMessage(e.raw)
	for _, key := range strings.Split(path, "/") {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(cur, &obj); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", path, err)
		}
		next, ok := obj[key]
		if !ok {
			return nil, fmt.Errorf("%s not found", path)
		}
		cur = next
	}
	return cur, nil
}

// decode unmarshals the value at the first existing path into v. If none
// exists the whole body is used.
func (e *envelope) decode(v any, paths ...string) error {
	b := []byte(e.raw)
	if p, n := e.lookup(paths...); n != nil {
		raw, err := e.rawAt(p)
		if err != nil {
			return err
		}
		b = raw
	}
	if len(bytes.TrimSpace(b)) == 0 {
		return nil
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// decodeList is like decode but leaves v untouched if no path exists and
// the body is not a list itself.
func (e *envelope) decodeList(v any, paths ...string) error {
	if e.find(paths...) == nil && !bytes.HasPrefix(bytes.TrimSpace(e.raw), []byte("[")) {
		return nil
	}
	return e.decode(v, paths...)
}

// text returns the value at the first existing path as a string.
func (e *envelope) text(paths ...string) string {
	p, n := e.lookup(paths...)
	if n == nil {
		return ""
	}
	switch v := n.Value().(type) {
	case string:
		return v
	case float64:
		if raw, err := e.rawAt(p); err == nil {
			return string(bytes.TrimSpace(raw))
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case nil:
		return ""
	default:
		return strings.TrimSpace(n.InnerText())
	}
}

// message extracts a human readable error message from an error body.
func message(body []byte) string {
	e, err := parseEnvelope(body)
	if err != nil {
		return strings.TrimSpace(string(body))
	}
	return e.text("message", "error", "data/message")
}

// fieldErrors extracts the validation errors of a 422 response.
func fieldErrors(body []byte) map[string][]string {
	e, err := parseEnvelope(body)
	if err != nil {
		return nil
	}
	if e.find("errors") == nil {
		return nil
	}
	fields := map[string][]string{}
	if err := e.decode(&fields, "errors"); err != nil {
		return nil
	}
	return fields
}
