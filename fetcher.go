package deepzoom

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
)

// Fetcher retrieves the raw bytes of one tile. Implementations must be
// safe for concurrent use; the WorkerLoader calls them from background
// goroutines.
type Fetcher func(ctx context.Context, url string) ([]byte, error)

// HTTPFetcher returns a Fetcher that issues GET requests with the given
// client. A nil client uses http.DefaultClient.
func HTTPFetcher(client *http.Client) Fetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return func(ctx context.Context, url string) ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("deepzoom: build request: %w", err)
		}
		req.Header.Set("User-Agent", "gogpu-deepzoom")

		resp, err := client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("deepzoom: fetch %s: %w", url, err)
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("deepzoom: fetch %s: status %d", url, resp.StatusCode)
		}
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("deepzoom: read %s: %w", url, err)
		}
		return data, nil
	}
}

// FileFetcher returns a Fetcher that reads tiles from the filesystem,
// resolving urls relative to root.
func FileFetcher(root string) Fetcher {
	return func(_ context.Context, url string) ([]byte, error) {
		path := filepath.Clean(filepath.Join(root, filepath.FromSlash(url)))
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("deepzoom: read tile file: %w", err)
		}
		return data, nil
	}
}
