package browser

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/manthysbr/placeharvest/internal/core/ports"
)

// Factory builds unopened drivers. With a remote endpoint every driver
// shares that browser; otherwise each one gets its own container.
type Factory struct {
	logger   *slog.Logger
	host     host
	endpoint string
}

var _ ports.BrowserDriverFactory = (*Factory)(nil)

func NewDockerFactory(logger *slog.Logger, h *DockerHost) *Factory {
	return &Factory{logger: logger, host: h}
}

func NewRemoteFactory(logger *slog.Logger, endpoint string) *Factory {
	return &Factory{logger: logger, endpoint: endpoint}
}

func (f *Factory) Create(cfg ports.BrowserConfig) (ports.BrowserDriver, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30
	}
	return &Driver{
		logger:   f.logger,
		host:     f.host,
		config:   cfg,
		endpoint: f.endpoint,
		// navigation itself is bounded by the browser-side timeout
		client: &http.Client{Timeout: time.Duration(cfg.Timeout+10) * time.Second},
	}, nil
}
