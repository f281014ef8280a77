package dispatch

import (
	"bytes"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/net/html"

	"git.home.luguber.info/inful/dispatchbuilder/internal/foundation/errors"
)

const idParam = "id"

// ExtractID returns the dispatch ID from a server response body. The ID is the
// "id" query parameter of the first link inside the first <p class="info"> element.
func ExtractID(body []byte) (int64, error) {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return 0, errors.WrapError(err, errors.CategoryExtraction, "failed to parse response HTML").Build()
	}

	info := findElement(doc, func(n *html.Node) bool {
		return n.Data == "p" && hasClass(n, "info")
	})
	if info == nil {
		return 0, errors.ExtractionError("response has no info paragraph").Build()
	}

	link := findElement(info, func(n *html.Node) bool {
		return n.Data == "a" && hasAttr(n, "href")
	})
	if link == nil {
		return 0, errors.ExtractionError("info paragraph has no link").Build()
	}

	href := getAttr(link, "href")
	raw, ok := idFromHref(href)
	if !ok {
		return 0, errors.ExtractionError("link has no id parameter").
			WithContext("href", href).
			Build()
	}

	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, errors.WrapError(err, errors.CategoryExtraction, "dispatch id is not an integer").
			WithContext("href", href).
			Build()
	}
	return id, nil
}

func idFromHref(href string) (string, bool) {
	if u, err := url.Parse(href); err == nil {
		values := u.Query()
		return values.Get(idParam), values.Has(idParam)
	}

	// Hrefs that fail URL parsing still carry the id after the marker.
	_, after, found := strings.Cut(href, idParam+"=")
	if !found {
		return "", false
	}
	if end := strings.IndexAny(after, "&#"); end >= 0 {
		after = after[:end]
	}
	return after, true
}

// findElement returns the first element below n, in document order, matching match.
func findElement(n *html.Node, match func(*html.Node) bool) *html.Node {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && match(c) {
			return c
		}
		if found := findElement(c, match); found != nil {
			return found
		}
	}
	return nil
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(getAttr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

func hasAttr(n *html.Node, key string) bool {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return true
		}
	}
	return false
}

// getAttr gets an attribute value from an HTML node.
func getAttr(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}
