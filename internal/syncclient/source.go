package syncclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/gosuda/boardsync/internal/domain"
)

// SnapshotSource fetches the authoritative board tree. The relay carries no
// history, so a client loads this on every join and reconnect.
type SnapshotSource interface {
	FetchSnapshot(ctx context.Context, boardID string) (*domain.Snapshot, error)
}

// HTTPSource reads snapshots from GET /api/v1/boards/{boardID}.
type HTTPSource struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

func (s *HTTPSource) FetchSnapshot(ctx context.Context, boardID string) (*domain.Snapshot, error) {
	endpoint := strings.TrimRight(s.BaseURL, "/") + "/api/v1/boards/" + url.PathEscape(boardID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("syncclient.HTTPSource.FetchSnapshot: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if s.Token != "" {
		req.Header.Set("Authorization", "Bearer "+s.Token)
	}

	client := s.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("syncclient.HTTPSource.FetchSnapshot: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, fmt.Errorf("syncclient.HTTPSource.FetchSnapshot: board %q: %w", boardID, domain.ErrNotFound)
	case http.StatusUnauthorized:
		return nil, fmt.Errorf("syncclient.HTTPSource.FetchSnapshot: %w", domain.ErrUnauthorized)
	default:
		return nil, fmt.Errorf("syncclient.HTTPSource.FetchSnapshot: unexpected status %d", resp.StatusCode)
	}

	var snap domain.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return nil, fmt.Errorf("syncclient.HTTPSource.FetchSnapshot: decode: %w", err)
	}
	if snap.Columns == nil {
		snap.Columns = []domain.Column{}
	}
	return &snap, nil
}
