package models

import (
	"errors"
	"fmt"
)

// Page is one response of a paginated list endpoint:
// { count, next, results }.
type Page struct {
	Count   int      `json:"count"`
	Next    *string  `json:"next"` // absolute URL, nil on the last page
	Results []Record `json:"results"`
}

// ErrMalformedPage is returned when a payload does not look like a page.
var ErrMalformedPage = errors.New("malformed page")

// PageFromPayload converts a decoded response body into a Page.
// Result entries that are not objects are dropped.
func PageFromPayload(v interface{}) (*Page, error) {
	m, ok := v.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: body is %T, not an object", ErrMalformedPage, v)
	}

	count, ok := Record(m).Int("count")
	if !ok {
		return nil, fmt.Errorf("%w: missing count", ErrMalformedPage)
	}

	page := &Page{Count: count}
	switch next := m["next"].(type) {
	case nil:
	case string:
		if next != "" {
			page.Next = &next
		}
	default:
		return nil, fmt.Errorf("%w: next is %T", ErrMalformedPage, next)
	}

	results, _ := m["results"].([]interface{})
	page.Results = make([]Record, 0, len(results))
	for _, r := range results {
		if obj, ok := r.(map[string]interface{}); ok {
			page.Results = append(page.Results, Record(obj))
		}
	}
	return page, nil
}
