// pkg/download/download.go - fetches installers over HTTPS or copies them from
// a file share into a scratch directory.

package download

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/windowsadmins/agentrepair/pkg/logging"
	"github.com/windowsadmins/agentrepair/pkg/progress"
)

// Timeout is the default whole-transfer limit for installer downloads.
const Timeout = 10 * time.Minute

// NewClient returns the HTTP client used for installer and manifest transfers.
func NewClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = Timeout
	}
	return &http.Client{Timeout: timeout}
}

// File downloads rawURL into destDir and returns the written path. The file
// name is taken from the last URL path segment unless name is non-empty.
// Only https URLs are accepted. A partial file is removed on failure.
func File(ctx context.Context, client *http.Client, rawURL, destDir, name string) (string, error) {
	if rawURL == "" {
		return "", fmt.Errorf("invalid parameters: url cannot be empty")
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid download URL: %w", err)
	}
	if !strings.EqualFold(u.Scheme, "https") {
		return "", fmt.Errorf("unsupported URL scheme %q: installers are only downloaded over https", u.Scheme)
	}
	if name == "" {
		name = path.Base(u.Path)
	}
	if name == "" || name == "/" || name == "." {
		return "", fmt.Errorf("cannot derive a file name from %s", rawURL)
	}
	if client == nil {
		client = NewClient(0)
	}

	dest := filepath.Join(destDir, filepath.Base(name))
	logging.Info("Starting download", "url", rawURL, "destination", dest)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to prepare HTTP request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to perform HTTP request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected HTTP status code: %d", resp.StatusCode)
	}

	out, err := os.Create(dest)
	if err != nil {
		return "", fmt.Errorf("failed to open destination file: %w", err)
	}
	n, err := io.Copy(out, progress.NewReader(resp.Body, resp.ContentLength, filepath.Base(dest)))
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(dest)
		return "", fmt.Errorf("failed to write downloaded data: %w", err)
	}

	logging.Info("Download completed successfully", "file", dest, "bytes", n)
	return dest, nil
}

// Copy copies src (typically a UNC path) into destDir.
func Copy(src, destDir string) (string, error) {
	in, err := os.Open(src)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer in.Close()

	dest := filepath.Join(destDir, filepath.Base(src))
	out, err := os.Create(dest)
	if err != nil {
		return "", fmt.Errorf("failed to open destination file: %w", err)
	}
	n, err := io.Copy(out, in)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(dest)
		return "", fmt.Errorf("failed to copy %s: %w", src, err)
	}
	logging.Info("Copied installer from share", "source", src, "file", dest, "bytes", n)
	return dest, nil
}

// Verify checks if the given file matches the expected SHA256 hash.
func Verify(file string, expectedHash string) (bool, error) {
	actual, err := FileSHA256(file)
	if err != nil {
		return false, err
	}
	return strings.EqualFold(actual, expectedHash), nil
}

// FileSHA256 returns the hex SHA256 of a file.
func FileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
