package status

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/lorekeeper/segmenter/internal/log"
)

// Compile-time interface implementation check.
var _ Reporter = (*GraphQLReporter)(nil)

// defaultTimeout bounds one status write. Status is a side effect; it
// never gets to hold up the run for long.
const defaultTimeout = 30 * time.Second

// Session store operations. The store versions rows for conflict
// resolution, so every update must carry the version it read.
const (
	getSessionQuery = `query GetSession($id: ID!) {
  getSession(id: $id) {
    _version
  }
}`

	updateSessionMutation = `mutation UpdateSession($input: UpdateSessionInput!) {
  updateSession(input: $input) {
    id
    _version
    transcriptionStatus
  }
}`
)

// GraphQLReporter writes session status over a GraphQL HTTP endpoint
// authenticated by API key.
type GraphQLReporter struct {
	endpoint string
	apiKey   string
	client   *http.Client
	timeout  time.Duration
	logger   zerolog.Logger
}

// GraphQLReporterOption configures a GraphQLReporter.
type GraphQLReporterOption func(*GraphQLReporter)

// WithHTTPClient sets the HTTP client (for testing).
func WithHTTPClient(c *http.Client) GraphQLReporterOption {
	return func(r *GraphQLReporter) { r.client = c }
}

// WithTimeout bounds each status write.
func WithTimeout(d time.Duration) GraphQLReporterOption {
	return func(r *GraphQLReporter) { r.timeout = d }
}

// NewGraphQLReporter creates a reporter for the given endpoint.
func NewGraphQLReporter(endpoint, apiKey string, opts ...GraphQLReporterOption) (*GraphQLReporter, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("status endpoint cannot be empty")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("status api key cannot be empty")
	}
	r := &GraphQLReporter{
		endpoint: endpoint,
		apiKey:   apiKey,
		client:   &http.Client{},
		timeout:  defaultTimeout,
		logger:   log.WithComponent("status"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// MarkProcessing records that segmentation has started.
func (r *GraphQLReporter) MarkProcessing(ctx context.Context, sessionID string) {
	r.mark(ctx, sessionID, StatusProcessing)
}

// MarkError records a terminal failure.
func (r *GraphQLReporter) MarkError(ctx context.Context, sessionID, msg string) {
	r.logger.Warn().
		Str("session_id", sessionID).
		Str("error", msg).
		Msg("marking session errored")
	r.mark(ctx, sessionID, StatusError)
}

func (r *GraphQLReporter) mark(ctx context.Context, sessionID, status string) {
	if sessionID == "" {
		r.logger.Debug().Msg("no session id, skipping status write")
		return
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	version, err := r.sessionVersion(ctx, sessionID)
	if err != nil {
		r.logger.Warn().
			Err(err).
			Str("session_id", sessionID).
			Str("status", status).
			Msg("could not read session version, status not written")
		return
	}

	if err := r.updateStatus(ctx, sessionID, version, status); err != nil {
		r.logger.Warn().
			Err(err).
			Str("session_id", sessionID).
			Str("status", status).
			Msg("status write failed")
		return
	}

	r.logger.Debug().
		Str("session_id", sessionID).
		Str("status", status).
		Msg("session status updated")
}

// sessionVersion fetches the current row version for sessionID.
func (r *GraphQLReporter) sessionVersion(ctx context.Context, sessionID string) (int, error) {
	data, err := r.execute(ctx, getSessionQuery, map[string]any{"id": sessionID})
	if err != nil {
		return 0, err
	}

	var payload struct {
		GetSession *struct {
			Version int `json:"_version"`
		} `json:"getSession"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return 0, fmt.Errorf("decode getSession: %w", err)
	}
	if payload.GetSession == nil {
		return 0, fmt.Errorf("session %s not found", sessionID)
	}
	return payload.GetSession.Version, nil
}

// updateStatus writes the status value at the given row version.
func (r *GraphQLReporter) updateStatus(ctx context.Context, sessionID string, version int, status string) error {
	_, err := r.execute(ctx, updateSessionMutation, map[string]any{
		"input": map[string]any{
			"id":                  sessionID,
			"_version":            version,
			"transcriptionStatus": status,
		},
	})
	return err
}

// execute posts one GraphQL operation and returns the data document.
func (r *GraphQLReporter) execute(ctx context.Context, query string, variables map[string]any) (json.RawMessage, error) {
	body, err := json.Marshal(map[string]any{
		"query":     query,
		"variables": variables,
	})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", r.apiKey)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}

	var payload struct {
		Data   json.RawMessage `json:"data"`
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(payload.Errors) > 0 {
		return nil, fmt.Errorf("graphql: %s", payload.Errors[0].Message)
	}
	return payload.Data, nil
}
