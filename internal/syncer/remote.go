package syncer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"walletcore/internal/models"
)

// PullResponse is the server's answer to a delta pull. Rows changed since
// the checkpoint come partitioned by the server into created vs updated,
// plus the ids of rows it soft-deleted. ServerNow is the server-side
// clock reading the next pull should checkpoint from.
type PullResponse struct {
	Created    []json.RawMessage `json:"created"`
	Updated    []json.RawMessage `json:"updated"`
	DeletedIDs []string          `json:"deleted_ids"`
	ServerNow  time.Time         `json:"server_now"`
}

// Remote is the wire boundary to the backend store. The server stamps the
// owner from the authenticated session; owner fields in payloads are
// ignored on its side.
type Remote interface {
	Pull(ctx context.Context, table string, updatedSince time.Time) (*PullResponse, error)
	Push(ctx context.Context, table string, upserts []models.Syncable, deletedIDs []string) error
}

// HTTPRemote talks to the backend's /api/sync endpoints with a bearer
// token.
type HTTPRemote struct {
	BaseURL string
	Token   string
	Client  *http.Client
}

func NewHTTPRemote(baseURL, token string) *HTTPRemote {
	return &HTTPRemote{
		BaseURL: baseURL,
		Token:   token,
		Client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (r *HTTPRemote) post(ctx context.Context, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+r.Token)

	resp, err := r.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("%s: status %d: %s", path, resp.StatusCode, snippet)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

type pullRequest struct {
	UpdatedSince time.Time `json:"updated_since"`
}

type pushRequest struct {
	Upserts    []models.Syncable `json:"upserts"`
	DeletedIDs []string          `json:"deleted_ids"`
}

// envelope matches the backend's {code, data} reply format.
type envelope struct {
	Code int             `json:"code"`
	Data json.RawMessage `json:"data"`
}

func (r *HTTPRemote) Pull(ctx context.Context, table string, updatedSince time.Time) (*PullResponse, error) {
	var env envelope
	err := r.post(ctx, "/api/sync/"+table+"/pull", pullRequest{UpdatedSince: updatedSince}, &env)
	if err != nil {
		return nil, err
	}
	if env.Code != 0 {
		return nil, fmt.Errorf("pull %s: server code %d", table, env.Code)
	}
	var out PullResponse
	if err := json.Unmarshal(env.Data, &out); err != nil {
		return nil, fmt.Errorf("decode pull %s: %w", table, err)
	}
	return &out, nil
}

func (r *HTTPRemote) Push(ctx context.Context, table string, upserts []models.Syncable, deletedIDs []string) error {
	if upserts == nil {
		upserts = []models.Syncable{}
	}
	if deletedIDs == nil {
		deletedIDs = []string{}
	}
	var env envelope
	err := r.post(ctx, "/api/sync/"+table+"/push", pushRequest{Upserts: upserts, DeletedIDs: deletedIDs}, &env)
	if err != nil {
		return err
	}
	if env.Code != 0 {
		return fmt.Errorf("push %s: server code %d", table, env.Code)
	}
	return nil
}
