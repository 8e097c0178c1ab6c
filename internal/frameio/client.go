package frameio

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/andresuchdata/frameio-archiver/internal/domain"
)

const (
	DefaultBaseURL  = "https://api.frame.io"
	defaultPageSize = 100
)

// Config configures the Frame.io v2 API client.
type Config struct {
	Token             string
	BaseURL           string
	RequestsPerSecond float64
	// Timeout bounds API calls, and the wait for response headers on
	// content downloads.
	Timeout  time.Duration
	PageSize int
}

// Client implements the archive tree provider and content source against
// the Frame.io v2 REST API.
type Client struct {
	api      *http.Client
	content  *http.Client
	baseURL  string
	limiter  *rate.Limiter
	pageSize int
}

// NewClient creates a new Client. API calls carry the bearer token; content
// downloads use the pre-signed asset URLs without it.
func NewClient(cfg Config) (*Client, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("frame.io token must be provided")
	}

	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}

	limit := rate.Inf
	burst := 1
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
		burst = int(cfg.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
	}

	base := &http.Client{Timeout: timeout}
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
	api := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: cfg.Token,
		TokenType:   "Bearer",
	}))
	api.Timeout = timeout

	return &Client{
		api:      api,
		content:  &http.Client{Transport: contentTransport(timeout)},
		baseURL:  baseURL,
		limiter:  rate.NewLimiter(limit, burst),
		pageSize: pageSize,
	}, nil
}

// contentTransport bounds connection setup and the wait for headers but not
// the body, which may take hours for large originals.
func contentTransport(headerTimeout time.Duration) *http.Transport {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.ResponseHeaderTimeout = headerTimeout
	t.IdleConnTimeout = 90 * time.Second
	t.TLSHandshakeTimeout = 10 * time.Second
	return t
}

// LookupAsset fetches a single asset.
func (c *Client) LookupAsset(ctx context.Context, id string) (*domain.AssetNode, error) {
	var a asset
	if _, err := c.doJSON(ctx, http.MethodGet, "/v2/assets/"+url.PathEscape(id), nil, nil, &a); err != nil {
		return nil, err
	}
	node, err := a.toNode()
	if err != nil {
		return nil, fmt.Errorf("asset %s: %w", id, err)
	}
	return node, nil
}

// LookupProject fetches a project.
func (c *Client) LookupProject(ctx context.Context, id string) (*domain.Project, error) {
	var p project
	if _, err := c.doJSON(ctx, http.MethodGet, "/v2/projects/"+url.PathEscape(id), nil, nil, &p); err != nil {
		return nil, err
	}
	if p.ID == "" {
		return nil, fmt.Errorf("project %s: %w", id, domain.ErrNotFound)
	}
	return p.toProject(), nil
}

// ListChildren pages through the children of an asset. Children with an
// unrecognized type are returned with a zero Kind so the caller can record
// them.
func (c *Client) ListChildren(ctx context.Context, id string) ([]*domain.AssetNode, error) {
	var nodes []*domain.AssetNode
	path := childrenPath(id)

	for page := 1; ; page++ {
		query := url.Values{}
		query.Set("page", strconv.Itoa(page))
		query.Set("page_size", strconv.Itoa(c.pageSize))

		var items []asset
		header, err := c.doJSON(ctx, http.MethodGet, path, query, nil, &items)
		if err != nil {
			return nil, err
		}

		for _, item := range items {
			node, err := item.toNode()
			if err != nil {
				log.Warn().Err(err).Str("asset_id", item.ID).Str("name", item.Name).Msg("unrecognized asset type")
				node = &domain.AssetNode{ID: item.ID, Name: item.Name, ProjectID: item.ProjectID, ParentID: item.ParentID}
			}
			nodes = append(nodes, node)
		}

		if lastPage(header, page, len(items), c.pageSize) {
			break
		}
	}
	return nodes, nil
}

func lastPage(header http.Header, page, count, pageSize int) bool {
	if count == 0 {
		return true
	}
	if total, err := strconv.Atoi(header.Get("Total-Pages")); err == nil {
		return page >= total
	}
	return count < pageSize
}

// EnsureFolder returns the folder called name under parentID, creating it
// when no such folder exists.
func (c *Client) EnsureFolder(ctx context.Context, parentID, name string) (*domain.AssetNode, error) {
	children, err := c.ListChildren(ctx, parentID)
	if err != nil {
		return nil, err
	}
	for _, child := range children {
		if child.Kind == domain.KindFolder && child.Name == name {
			return child, nil
		}
	}

	var created asset
	body := createAsset{Name: name, Type: "folder"}
	if _, err := c.doJSON(ctx, http.MethodPost, childrenPath(parentID), nil, body, &created); err != nil {
		return nil, fmt.Errorf("create folder %q: %w", name, err)
	}
	log.Info().Str("parent_id", parentID).Str("folder_id", created.ID).Str("name", name).Msg("created folder")
	return created.toNode()
}

// CreateAssetFromURL creates a file asset that Frame.io ingests from
// sourceURL on its own.
func (c *Client) CreateAssetFromURL(ctx context.Context, parentID, name, sourceURL string, size int64) (*domain.AssetNode, error) {
	var created asset
	body := createAsset{
		Name:     name,
		Type:     "file",
		Filesize: size,
		Source:   &assetSource{URL: sourceURL},
	}
	if _, err := c.doJSON(ctx, http.MethodPost, childrenPath(parentID), nil, body, &created); err != nil {
		return nil, fmt.Errorf("create asset %q: %w", name, err)
	}
	return created.toNode()
}

// OpenContentStream opens the pre-signed original URL of a file.
func (c *Client) OpenContentStream(ctx context.Context, ref string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: content request: %w", domain.ErrPermanent, err)
	}

	resp, err := c.content.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download content: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, statusError("GET content", resp.StatusCode)
	}
	return resp.Body, nil
}

func childrenPath(id string) string {
	return "/v2/assets/" + url.PathEscape(id) + "/children"
}

func (c *Client) doJSON(ctx context.Context, method, path string, query url.Values, in, out any) (http.Header, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("%w: encode request: %w", domain.ErrPermanent, err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %w", domain.ErrPermanent, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.api.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: %s", statusError(method+" "+path, resp.StatusCode), strings.TrimSpace(string(msg)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return nil, decodeError(path, err)
	}
	return resp.Header, nil
}

// decodeError marks malformed payloads as permanent. Read failures while
// decoding stay retryable.
func decodeError(path string, err error) error {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return fmt.Errorf("%w: decode %s: %w", domain.ErrPermanent, path, err)
	}
	return fmt.Errorf("decode %s: %w", path, err)
}

func statusError(op string, status int) error {
	switch {
	case status == http.StatusNotFound:
		return fmt.Errorf("%s: unexpected status %d: %w", op, status, domain.ErrNotFound)
	case status == http.StatusTooManyRequests, status >= 500:
		return fmt.Errorf("%s: unexpected status %d", op, status)
	case status >= 400:
		return fmt.Errorf("%s: unexpected status %d: %w", op, status, domain.ErrPermanent)
	}
	return fmt.Errorf("%s: unexpected status %d", op, status)
}
