package outbox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

var errSubjectNotFound = errors.New("schema subject not found")

// SchemaRegistryClient registers JSON schemas with a Confluent-compatible Schema Registry.
type SchemaRegistryClient struct {
	baseURL    string
	username   string
	password   string
	httpClient *http.Client
}

// RegistryOption configures the SchemaRegistryClient.
type RegistryOption func(*SchemaRegistryClient)

// WithBasicAuth sets credentials sent with every registry request.
func WithBasicAuth(username, password string) RegistryOption {
	return func(c *SchemaRegistryClient) {
		c.username = username
		c.password = password
	}
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client *http.Client) RegistryOption {
	return func(c *SchemaRegistryClient) {
		c.httpClient = client
	}
}

// NewSchemaRegistryClient constructs a client with a ten second timeout.
func NewSchemaRegistryClient(baseURL string, opts ...RegistryOption) *SchemaRegistryClient {
	c := &SchemaRegistryClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// EnsureSchema returns the id of the latest schema for subject, registering schema when
// the subject does not exist yet.
func (c *SchemaRegistryClient) EnsureSchema(ctx context.Context, subject string, schema string) (int, error) {
	id, err := c.fetchLatest(ctx, subject)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, errSubjectNotFound) {
		return 0, err
	}
	return c.register(ctx, subject, schema)
}

func (c *SchemaRegistryClient) fetchLatest(ctx context.Context, subject string) (int, error) {
	endpoint := fmt.Sprintf("%s/subjects/%s/versions/latest", c.baseURL, url.PathEscape(subject))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, err
	}
	return c.doForID(req, func(resp *http.Response) error {
		if resp.StatusCode == http.StatusNotFound {
			return errSubjectNotFound
		}
		return nil
	})
}

func (c *SchemaRegistryClient) register(ctx context.Context, subject string, schema string) (int, error) {
	body, err := json.Marshal(map[string]any{
		"schemaType": "JSON",
		"schema":     schema,
	})
	if err != nil {
		return 0, err
	}

	endpoint := fmt.Sprintf("%s/subjects/%s/versions", c.baseURL, url.PathEscape(subject))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/vnd.schemaregistry.v1+json")
	return c.doForID(req, nil)
}

// doForID executes req and decodes the {"id": n} response body.
func (c *SchemaRegistryClient) doForID(req *http.Request, check func(*http.Response) error) (int, error) {
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if check != nil {
		if err := check(resp); err != nil {
			return 0, err
		}
	}
	if resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		return 0, fmt.Errorf("schema registry %s %s: %d %s", req.Method, req.URL.Path, resp.StatusCode, bytes.TrimSpace(data))
	}

	var payload struct {
		ID int `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return 0, err
	}
	return payload.ID, nil
}
