package sparql

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client talks the SPARQL protocol to a single endpoint. The service uses
// two instances: one for the read-only source store and one for the
// read-write working store.
type Client struct {
	endpoint   string
	httpClient *http.Client
	userAgent  string
}

func NewClient(endpoint string, httpClient *http.Client, userAgent string) *Client {
	return &Client{
		endpoint:   endpoint,
		httpClient: httpClient,
		userAgent:  userAgent,
	}
}

// Select runs a SELECT query and returns the decoded result rows.
func (c *Client) Select(ctx context.Context, query string) ([]Row, error) {
	data, err := c.post(ctx, url.Values{"query": {query}}, "application/sparql-results+json")
	if err != nil {
		return nil, err
	}
	return DecodeRows(data)
}

// Update runs an INSERT/DELETE update against the endpoint.
func (c *Client) Update(ctx context.Context, query string) error {
	_, err := c.post(ctx, url.Values{"update": {query}}, "")
	return err
}

// ConstructTurtle runs a CONSTRUCT query and returns the triples
// serialized as Turtle.
func (c *Client) ConstructTurtle(ctx context.Context, query string) ([]byte, error) {
	return c.post(ctx, url.Values{"query": {query}, "format": {"text/turtle"}}, "text/turtle")
}

// ConstructNTriples runs a CONSTRUCT query and returns the triples as
// N-Triples, the prefix-free form safe to embed in an INSERT DATA block.
func (c *Client) ConstructNTriples(ctx context.Context, query string) ([]byte, error) {
	return c.post(ctx, url.Values{"query": {query}, "format": {"text/plain"}}, "text/plain")
}

// InsertData inserts raw N-Triples data into a graph.
func (c *Client) InsertData(ctx context.Context, graph string, ntriples []byte) error {
	triples := strings.TrimSpace(string(ntriples))
	if triples == "" {
		return nil
	}
	query := fmt.Sprintf("INSERT DATA {\n  GRAPH %s {\n%s\n  }\n}", EscapeURI(graph), triples)
	return c.Update(ctx, query)
}

// CountTriples returns the number of triples in a graph.
func (c *Client) CountTriples(ctx context.Context, graph string) (int, error) {
	query := fmt.Sprintf(`SELECT (COUNT(*) AS ?count) WHERE { GRAPH %s { ?s ?p ?o . } }`, EscapeURI(graph))
	rows, err := c.Select(ctx, query)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}
	count, ok := rows[0].Int("count")
	if !ok {
		return 0, fmt.Errorf("endpoint returned a non-numeric triple count for graph <%s>", graph)
	}
	return count, nil
}

func (c *Client) post(ctx context.Context, form url.Values, accept string) ([]byte, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	req, err := http.NewRequestWithContext(timeoutCtx, "POST", c.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", c.userAgent)
	if accept != "" {
		req.Header.Set("Accept", accept)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach SPARQL endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("SPARQL endpoint error: %d %s: %s", resp.StatusCode, resp.Status, strings.TrimSpace(string(body)))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return data, nil
}
