package dataserver

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

func (w *worker) upstreamZipURL(code string) string {
	return fmt.Sprintf("%s/%s.zip", w.factory.cfg.UpstreamBase, code)
}

// headUpstreamZipEtag fetches only the upstream validator token, used to
// decide whether a stale-by-age cache file is still current.
func (w *worker) headUpstreamZipEtag(ctx context.Context, code string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, w.upstreamZipURL(code), nil)
	if err != nil {
		return "", err
	}
	resp, err := w.factory.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d from HEAD %s", resp.StatusCode, req.URL)
	}
	return resp.Header.Get("ETag"), nil
}

// downloadWithRetry implements the country_file_download stage's fixed
// backoff retry: up to RetryLimit attempts, RetryWait between them.
func (w *worker) downloadWithRetry(ctx context.Context, stopCh <-chan struct{}, code string) (zipPath, etag string, err error) {
	limit := w.factory.cfg.RetryLimit
	wait := w.factory.cfg.RetryWait

	var lastErr error
	for attempt := 1; attempt <= limit; attempt++ {
		zipPath, etag, err = w.downloadOnce(ctx, code)
		if err == nil {
			return zipPath, etag, nil
		}
		lastErr = err
		w.log.Warn().Err(err).Int("attempt", attempt).Msg("country zip download failed")

		if attempt == limit {
			break
		}
		select {
		case <-time.After(wait):
		case <-stopCh:
			return "", "", fmt.Errorf("download cancelled: %w", ctx.Err())
		case <-ctx.Done():
			return "", "", ctx.Err()
		}
	}
	return "", "", fmt.Errorf("exhausted %d attempts: %w", limit, lastErr)
}

func (w *worker) downloadOnce(ctx context.Context, code string) (zipPath, etag string, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.upstreamZipURL(code), nil)
	if err != nil {
		return "", "", err
	}
	resp, err := w.factory.httpClient.Do(req)
	if err != nil {
		return "", "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	f, err := os.CreateTemp("", code+"-*.zip")
	if err != nil {
		return "", "", err
	}
	defer f.Close()

	if _, err := io.Copy(f, resp.Body); err != nil {
		os.Remove(f.Name())
		return "", "", err
	}
	return f.Name(), resp.Header.Get("ETag"), nil
}

// extractSingleMember pulls the one text member of interest out of the
// downloaded archive; when more than one file is present (a readme
// alongside the dump, say) the largest is assumed to be the dump.
func extractSingleMember(zipPath string) ([]byte, error) {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	if len(r.File) == 0 {
		return nil, fmt.Errorf("zip archive %s has no members", zipPath)
	}
	member := r.File[0]
	for _, f := range r.File[1:] {
		if f.UncompressedSize64 > member.UncompressedSize64 {
			member = f
		}
	}

	rc, err := member.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	return io.ReadAll(rc)
}
