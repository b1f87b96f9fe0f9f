package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/docindex-go/internal/domain/index"
	"github.com/docindex-go/internal/provisioner/ports"
	"github.com/docindex-go/pkg/resilience"
	es "github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

var _ ports.StoreClient = (*Store)(nil)

const alreadyExistsType = "resource_already_exists_exception"

// baseMapping is applied to every namespace index created as a primary.
const baseMapping = `{
	"mappings": {
		"properties": {
			"id": {"type": "keyword"},
			"kind": {"type": "keyword"},
			"created_at": {"type": "date"},
			"updated_at": {"type": "date"}
		}
	}
}`

// Store provisions on Elasticsearch. A namespace is an index, which doubles
// as the primary index. Secondary indexes are filtered aliases whose filter
// is a JSON query, and views are stored mustache search templates.
//
// Alias and script puts overwrite, so they never answer ErrAlreadyExists:
// provisioners racing on the same alias or view both see it created. Only
// the primary index create detects the loser.
type Store struct {
	client  *es.Client
	mapping string
}

func NewStore(client *es.Client) *Store {
	return &Store{client: client, mapping: baseMapping}
}

// WithMapping replaces the mapping used when a namespace index is created.
func (s *Store) WithMapping(mapping string) *Store {
	s.mapping = mapping
	return s
}

// ScriptID names the search template backing a view.
func ScriptID(namespace, designDocument, viewName string) string {
	return strings.Join([]string{namespace, designDocument, viewName}, ".")
}

func (s *Store) IndexExists(ctx context.Context, namespace, name string) (bool, error) {
	var req esapi.Request
	if name == index.PrimaryName || name == "" {
		req = esapi.IndicesExistsRequest{Index: []string{namespace}}
	} else {
		req = esapi.IndicesExistsAliasRequest{Index: []string{namespace}, Name: []string{name}}
	}
	return s.exists(ctx, req, fmt.Sprintf("index %s/%s", namespace, name))
}

func (s *Store) ViewExists(ctx context.Context, namespace, designDocument, viewName string) (bool, error) {
	id := ScriptID(namespace, designDocument, viewName)
	return s.exists(ctx, esapi.GetScriptRequest{ScriptID: id}, "search template "+id)
}

func (s *Store) CreatePrimaryIndex(ctx context.Context, namespace string) error {
	req := esapi.IndicesCreateRequest{
		Index: namespace,
		Body:  strings.NewReader(s.mapping),
	}
	return s.create(ctx, req, "index "+namespace)
}

func (s *Store) CreateSecondaryIndex(ctx context.Context, namespace, name, filter string) error {
	if !json.Valid([]byte(filter)) {
		return fmt.Errorf("alias %s/%s: filter is not a JSON query", namespace, name)
	}

	var body bytes.Buffer
	body.WriteString(`{"filter":`)
	body.WriteString(filter)
	body.WriteString(`}`)

	req := esapi.IndicesPutAliasRequest{
		Index: []string{namespace},
		Name:  name,
		Body:  &body,
	}
	return s.create(ctx, req, fmt.Sprintf("alias %s/%s", namespace, name))
}

func (s *Store) CreateView(ctx context.Context, namespace, designDocument, viewName string, def index.ViewDefinition) error {
	id := ScriptID(namespace, designDocument, viewName)
	if def.Reduce != "" {
		return fmt.Errorf("search template %s: reduce functions: %w", id, index.ErrUnsupported)
	}

	body, err := json.Marshal(map[string]interface{}{
		"script": map[string]string{
			"lang":   "mustache",
			"source": def.Map,
		},
	})
	if err != nil {
		return err
	}

	req := esapi.PutScriptRequest{
		ScriptID: id,
		Body:     bytes.NewReader(body),
	}
	return s.create(ctx, req, "search template "+id)
}

func (s *Store) exists(ctx context.Context, req esapi.Request, what string) (bool, error) {
	res, err := req.Do(ctx, s.client)
	if err != nil {
		return false, fmt.Errorf("failed to look up %s: %w: %w", what, index.ErrUnavailable, err)
	}
	defer res.Body.Close()
	_, _ = io.Copy(io.Discard, res.Body)

	switch {
	case res.StatusCode == http.StatusOK:
		return true, nil
	case res.StatusCode == http.StatusNotFound:
		return false, nil
	default:
		return false, statusError(res.StatusCode, "look up "+what, "")
	}
}

func (s *Store) create(ctx context.Context, req esapi.Request, what string) error {
	res, err := req.Do(ctx, s.client)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w: %w", what, index.ErrUnavailable, err)
	}
	defer res.Body.Close()

	if !res.IsError() {
		_, _ = io.Copy(io.Discard, res.Body)
		return nil
	}

	errType, reason := decodeError(res.Body)
	if errType == alreadyExistsType {
		return fmt.Errorf("%s: %w", what, index.ErrAlreadyExists)
	}
	return statusError(res.StatusCode, "create "+what, reason)
}

// statusError wraps throttling and server side failures as
// index.ErrUnavailable so they are retried.
func statusError(status int, op, reason string) error {
	msg := fmt.Sprintf("failed to %s: status %d", op, status)
	if reason != "" {
		msg += ": " + reason
	}
	if resilience.IsRetryableHTTPStatus(status) {
		return fmt.Errorf("%s: %w", msg, index.ErrUnavailable)
	}
	return errors.New(msg)
}

type errorResponse struct {
	Error json.RawMessage `json:"error"`
}

type errorCause struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

// decodeError reads the error type and reason of an error response. Some
// endpoints answer with a bare string instead of an object.
func decodeError(body io.Reader) (string, string) {
	var res errorResponse
	if err := json.NewDecoder(body).Decode(&res); err != nil || len(res.Error) == 0 {
		return "", ""
	}

	var cause errorCause
	if err := json.Unmarshal(res.Error, &cause); err == nil {
		return cause.Type, cause.Reason
	}

	var text string
	if err := json.Unmarshal(res.Error, &text); err == nil {
		return "", text
	}
	return "", ""
}
