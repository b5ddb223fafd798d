// Package media downloads remote attachments for outbound messages.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/alfredjeanlab/wagate/internal/errs"
	"github.com/alfredjeanlab/wagate/internal/model"
)

const (
	DefaultTimeout  = 30 * time.Second
	DefaultMaxBytes = 16 << 20
)

// Fetcher retrieves the attachment at rawURL.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (*model.Media, error)
}

// HTTPFetcher fetches attachments over HTTP(S).
type HTTPFetcher struct {
	client   *http.Client
	maxBytes int64
}

// NewHTTPFetcher returns a fetcher with the given per-request timeout and
// size limit. Zero values select the defaults.
func NewHTTPFetcher(timeout time.Duration, maxBytes int64) *HTTPFetcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &HTTPFetcher{
		client:   &http.Client{Timeout: timeout},
		maxBytes: maxBytes,
	}
}

// Fetch downloads rawURL. Only image and application content is accepted.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) (*model.Media, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, errs.Newf(errs.KindValidation, "invalid attachment URL %q", rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, errs.Wrap(errs.KindInternal, err, "Failed to fetch attachment")
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, errs.Wrap(errs.KindInternal, err, "Failed to fetch attachment")
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, errs.New(errs.KindAttachmentNotFound, "File not found")
	case resp.StatusCode >= 300:
		return nil, errs.Wrap(errs.KindInternal, fmt.Errorf("unexpected status %d", resp.StatusCode), "Failed to fetch attachment")
	}

	mimeType := resp.Header.Get("Content-Type")
	if !Supported(mimeType) {
		return nil, errs.New(errs.KindInvalidAttachment, "Invalid file type")
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, errs.Wrap(errs.KindInternal, err, "Failed to fetch attachment")
	}
	if int64(len(data)) > f.maxBytes {
		return nil, errs.Newf(errs.KindInvalidAttachment, "File exceeds %d bytes", f.maxBytes)
	}

	return &model.Media{
		MimeType: mimeType,
		Data:     data,
		Filename: BaseName(u),
	}, nil
}

// Supported reports whether an attachment with the given Content-Type may be
// sent: images and application documents only.
func Supported(contentType string) bool {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	return strings.HasPrefix(ct, "image") || strings.HasPrefix(ct, "application")
}

// BaseName returns the last path element of u, or "" when the URL has none.
func BaseName(u *url.URL) string {
	base := path.Base(u.Path)
	if base == "/" || base == "." {
		return ""
	}
	return base
}

// IsNotFound reports whether err is a missing-attachment failure.
func IsNotFound(err error) bool {
	var e *errs.Error
	return errors.As(err, &e) && e.Kind == errs.KindAttachmentNotFound
}
