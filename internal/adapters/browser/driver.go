package browser

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/manthysbr/placeharvest/internal/core/ports"
)

var ErrNotOpen = errors.New("browser driver is not open")

// Driver talks to one browserless instance over its REST API.
type Driver struct {
	logger *slog.Logger
	host   host // nil when attached to a remote endpoint
	config ports.BrowserConfig
	client *http.Client

	mu          sync.RWMutex
	endpoint    string
	containerID string
	pageURL     string
}

var _ ports.BrowserDriver = (*Driver)(nil)

// Open starts the container (or attaches to the remote endpoint) and waits
// until the browser answers.
func (d *Driver) Open(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.host != nil {
		inst, err := d.host.Start(ctx, []string{
			"TIMEOUT=" + fmt.Sprint(d.config.Timeout*1000),
			"CONCURRENT=1",
		})
		if err != nil {
			return err
		}
		d.endpoint = inst.Endpoint
		d.containerID = inst.ContainerID
	}
	if d.endpoint == "" {
		return fmt.Errorf("%w: no endpoint", ErrNotOpen)
	}

	if err := d.waitReady(ctx); err != nil {
		if d.host != nil {
			_ = d.host.Remove(context.WithoutCancel(ctx), d.containerID)
			d.containerID = ""
		}
		return err
	}
	return nil
}

func (d *Driver) waitReady(ctx context.Context) error {
	deadline := time.Now().Add(time.Duration(d.config.Timeout) * time.Second)
	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.endpoint+"/json/version", nil)
		if err != nil {
			return err
		}
		resp, err := d.client.Do(req)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("browser at %s not ready after %ds", d.endpoint, d.config.Timeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(250 * time.Millisecond):
		}
	}
}

// Close removes the container. Closing twice is a no-op.
func (d *Driver) Close(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	id := d.containerID
	d.containerID = ""
	if d.host == nil || id == "" {
		return nil
	}
	return d.host.Remove(ctx, id)
}

type gotoOptions struct {
	WaitUntil string `json:"waitUntil"`
	Timeout   int    `json:"timeout"`
}

type contentRequest struct {
	URL         string      `json:"url"`
	GotoOptions gotoOptions `json:"gotoOptions"`
}

type screenshotRequest struct {
	URL         string            `json:"url"`
	GotoOptions gotoOptions       `json:"gotoOptions"`
	Options     screenshotOptions `json:"options"`
}

type screenshotOptions struct {
	Type     string `json:"type"`
	FullPage bool   `json:"fullPage"`
}

// NavigateTo loads the page and remembers it as the current page.
func (d *Driver) NavigateTo(ctx context.Context, target string) error {
	body := contentRequest{URL: target, GotoOptions: d.gotoOptions()}
	resp, err := d.post(ctx, "/content", body)
	if err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", target, err)
	}
	_, _ = io.Copy(io.Discard, resp)
	resp.Close()

	d.mu.Lock()
	d.pageURL = target
	d.mu.Unlock()
	return nil
}

// TakeScreenshot renders the current page as PNG.
func (d *Driver) TakeScreenshot(ctx context.Context) ([]byte, error) {
	current := d.PageURL()
	if current == "" {
		return nil, errors.New("no page loaded")
	}
	body := screenshotRequest{
		URL:         current,
		GotoOptions: d.gotoOptions(),
		Options:     screenshotOptions{Type: "png"},
	}
	resp, err := d.post(ctx, "/screenshot", body)
	if err != nil {
		return nil, fmt.Errorf("failed to take screenshot: %w", err)
	}
	defer resp.Close()
	return io.ReadAll(resp)
}

func (d *Driver) PageURL() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.pageURL
}

func (d *Driver) gotoOptions() gotoOptions {
	return gotoOptions{WaitUntil: "networkidle2", Timeout: d.config.Timeout * 1000}
}

func (d *Driver) post(ctx context.Context, path string, body any) (io.ReadCloser, error) {
	d.mu.RLock()
	endpoint := d.endpoint
	d.mu.RUnlock()
	if endpoint == "" {
		return nil, ErrNotOpen
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	u, err := url.Parse(endpoint + path)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	launch, _ := json.Marshal(map[string]any{
		"headless": d.config.Headless,
		"args":     []string{"--lang=" + d.config.Locale},
	})
	q.Set("launch", string(launch))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept-Language", d.config.Locale)

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, fmt.Errorf("browser returned %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}
	return resp.Body, nil
}
