// Package client talks to the Boundlexx API through operations discovered
// from its OpenAPI schema.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"slices"
	"sort"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/google/uuid"

	"github.com/meur/boundlexx/internal/models"
	"github.com/meur/boundlexx/internal/wire"
)

const maxErrorBody = 512

type operation struct {
	Method string
	Path   string
}

// Client is bound to one schema document and one server origin.
type Client struct {
	id     uuid.UUID
	http   *http.Client
	server *url.URL
	ops    map[string]operation
}

func newClient(doc *openapi3.T, server *url.URL, hc *http.Client) *Client {
	ops := make(map[string]operation)
	if doc.Paths != nil {
		for path, item := range doc.Paths.Map() {
			for method, op := range item.Operations() {
				if op == nil || op.OperationID == "" {
					continue
				}
				ops[op.OperationID] = operation{Method: strings.ToUpper(method), Path: path}
			}
		}
	}
	return &Client{
		id:     uuid.New(),
		http:   hc,
		server: server,
		ops:    ops,
	}
}

// ID identifies this client instance in logs.
func (c *Client) ID() uuid.UUID {
	return c.id
}

// Server returns the origin all operations are rebased onto.
func (c *Client) Server() string {
	return c.server.String()
}

// Operations lists the operation ids known to the client.
func (c *Client) Operations() []string {
	ids := make([]string, 0, len(c.ops))
	for id := range c.ops {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// HasOperation reports whether the schema declared operationID.
func (c *Client) HasOperation(operationID string) bool {
	_, ok := c.ops[operationID]
	return ok
}

// URL builds the request URL for an operation. Query values whose name
// matches a {placeholder} in the path are substituted into the path.
// format=msgpack is always added.
func (c *Client) URL(operationID string, query url.Values) (string, error) {
	op, ok := c.ops[operationID]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownOperation, operationID)
	}

	q := url.Values{}
	path := op.Path
	for k, v := range query {
		placeholder := "{" + k + "}"
		if strings.Contains(path, placeholder) && len(v) > 0 {
			path = strings.ReplaceAll(path, placeholder, url.PathEscape(v[0]))
			continue
		}
		q[k] = v
	}
	q.Set("format", "msgpack")

	u := *c.server
	u.Path = strings.TrimSuffix(u.Path, "/") + path
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Call runs a GET operation and returns the decoded body.
func (c *Client) Call(ctx context.Context, operationID string, query url.Values) (interface{}, error) {
	if op, ok := c.ops[operationID]; ok && op.Method != http.MethodGet {
		return nil, fmt.Errorf("operation %s uses %s, only GET is supported", operationID, op.Method)
	}
	u, err := c.URL(operationID, query)
	if err != nil {
		return nil, err
	}
	return c.get(ctx, u)
}

// List runs a paginated list operation and returns the first page.
func (c *Client) List(ctx context.Context, operationID string, query url.Values) (*models.Page, error) {
	body, err := c.Call(ctx, operationID, query)
	if err != nil {
		return nil, err
	}
	return models.PageFromPayload(body)
}

// Next fetches the page at a next URL returned by a previous page.
// The URL is used verbatim.
func (c *Client) Next(ctx context.Context, pageURL string) (*models.Page, error) {
	body, err := c.get(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	return models.PageFromPayload(body)
}

func (c *Client) get(ctx context.Context, u string) (interface{}, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", wire.ContentTypes[0]+", application/json;q=0.5")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", u, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet := string(body)
		if len(snippet) > maxErrorBody {
			snippet = snippet[:maxErrorBody]
		}
		return nil, &StatusError{URL: u, Code: resp.StatusCode, Body: snippet}
	}

	return decodeBody(resp.Header.Get("Content-Type"), body)
}

func decodeBody(contentType string, body []byte) (interface{}, error) {
	mediaType, _, _ := mime.ParseMediaType(contentType)
	if mediaType == "application/json" || strings.HasSuffix(mediaType, "+json") {
		var v interface{}
		if err := json.Unmarshal(body, &v); err != nil {
			return nil, fmt.Errorf("decoding json: %w", err)
		}
		return v, nil
	}
	if mediaType != "" && !slices.Contains(wire.ContentTypes, mediaType) {
		return nil, fmt.Errorf("unsupported content type %q", mediaType)
	}
	return wire.Decode(body)
}
