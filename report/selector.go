package report

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
)

// idMatcher compiles a selector matching the element with the given ID.
// An attribute selector is used because portal IDs are not always valid
// CSS identifiers.
func idMatcher(id string) (cascadia.Selector, error) {
	return cascadia.Compile(fmt.Sprintf("[id=%q]", id))
}

// ContainerHTML parses rawHTML and returns the outer HTML of the element
// with the given ID. It is used to keep a copy of just the rendered report.
func ContainerHTML(rawHTML string, id string) (string, error) {
	sel, err := idMatcher(id)
	if err != nil {
		return "", err
	}

	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return "", err
	}

	node := cascadia.Query(doc, sel)
	if node == nil {
		return "", fmt.Errorf("element %q not found", id)
	}

	var buf bytes.Buffer
	if err := html.Render(&buf, node); err != nil {
		return "", err
	}
	return buf.String(), nil
}
