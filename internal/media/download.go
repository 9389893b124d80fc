// Package media downloads provider-hosted media, stores it where the rest of
// the system can reach it and turns recorded answers into text.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

const (
	defaultDownloadTimeout = 30 * time.Second
	// WhatsApp caps documents at 100MB.
	maxDownloadSize = 100 << 20
	userAgent       = "worky-media/1.0"
)

// DownloadError is returned when provider media cannot be fetched.
type DownloadError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *DownloadError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("download media: bad status %d", e.StatusCode)
	}
	return fmt.Sprintf("download media: %v", e.Err)
}

func (e *DownloadError) Unwrap() error {
	return e.Err
}

// Timeout reports whether the download failed on a deadline.
func (e *DownloadError) Timeout() bool {
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(e.Err, &netErr) && netErr.Timeout()
}

// NotFound reports whether the provider no longer has the media.
func (e *DownloadError) NotFound() bool {
	return e.StatusCode == http.StatusNotFound || e.StatusCode == http.StatusGone
}

// Downloader fetches media with the messaging provider's bearer token.
type Downloader struct {
	HTTPClient *http.Client
	Token      string
	UserAgent  string
}

func NewDownloader(token string, timeout time.Duration) *Downloader {
	if timeout <= 0 {
		timeout = defaultDownloadTimeout
	}
	return &Downloader{
		HTTPClient: &http.Client{Timeout: timeout},
		Token:      token,
		UserAgent:  userAgent,
	}
}

// Fetch downloads url. Every failure is a *DownloadError.
func (d *Downloader) Fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &DownloadError{URL: url, Err: err}
	}
	if d.Token != "" {
		req.Header.Set("Authorization", "Bearer "+d.Token)
	}
	req.Header.Set("User-Agent", d.UserAgent)

	resp, err := d.HTTPClient.Do(req)
	if err != nil {
		return nil, &DownloadError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return nil, &DownloadError{URL: url, StatusCode: resp.StatusCode, Err: fmt.Errorf("bad status: %s", resp.Status)}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDownloadSize+1))
	if err != nil {
		return nil, &DownloadError{URL: url, Err: err}
	}
	if len(data) > maxDownloadSize {
		return nil, &DownloadError{URL: url, Err: fmt.Errorf("media exceeds %d bytes", maxDownloadSize)}
	}
	if len(data) == 0 {
		return nil, &DownloadError{URL: url, Err: errors.New("empty media body")}
	}

	return data, nil
}
