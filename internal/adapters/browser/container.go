package browser

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
	"github.com/google/uuid"
)

const (
	DefaultImage    = "ghcr.io/browserless/chromium:latest"
	browserPort     = nat.Port("3000/tcp")
	managedLabel    = "placeharvest.managed"
	instanceLabel   = "placeharvest.instance"
	containerPrefix = "placeharvest-browser-"
)

// instance is one running browser container.
type instance struct {
	ContainerID string
	Endpoint    string // http://127.0.0.1:<port>
}

// host starts and removes browser containers.
type host interface {
	Start(ctx context.Context, env []string) (instance, error)
	Remove(ctx context.Context, containerID string) error
}

// DockerHost runs one browserless container per bot on the local Docker
// daemon, published on a random loopback port.
type DockerHost struct {
	logger *slog.Logger
	cli    *client.Client
	image  string
}

func NewDockerHost(logger *slog.Logger, image string) (*DockerHost, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	if image == "" {
		image = DefaultImage
	}
	return &DockerHost{logger: logger, cli: cli, image: image}, nil
}

func (h *DockerHost) Start(ctx context.Context, env []string) (instance, error) {
	name := containerPrefix + uuid.NewString()

	cfg := &container.Config{
		Image:        h.image,
		Env:          env,
		ExposedPorts: nat.PortSet{browserPort: struct{}{}},
		Labels: map[string]string{
			managedLabel:  "true",
			instanceLabel: name,
		},
	}
	hostCfg := &container.HostConfig{
		PortBindings: nat.PortMap{
			browserPort: []nat.PortBinding{{HostIP: "127.0.0.1", HostPort: ""}},
		},
		ShmSize:    512 << 20, // chromium crashes with the default 64m /dev/shm
		AutoRemove: true,
	}

	resp, err := h.cli.ContainerCreate(ctx, cfg, hostCfg, &network.NetworkingConfig{}, nil, name)
	if client.IsErrNotFound(err) {
		h.logger.Info("pulling browser image", "image", h.image)
		reader, pullErr := h.cli.ImagePull(ctx, h.image, image.PullOptions{})
		if pullErr != nil {
			return instance{}, fmt.Errorf("failed to pull image %s: %w", h.image, pullErr)
		}
		_, _ = io.Copy(io.Discard, reader)
		reader.Close()
		resp, err = h.cli.ContainerCreate(ctx, cfg, hostCfg, &network.NetworkingConfig{}, nil, name)
	}
	if err != nil {
		return instance{}, fmt.Errorf("failed to create container: %w", err)
	}

	if err := h.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		_ = h.cli.ContainerRemove(ctx, resp.ID, container.RemoveOptions{Force: true})
		return instance{}, fmt.Errorf("failed to start container: %w", err)
	}

	inspect, err := h.cli.ContainerInspect(ctx, resp.ID)
	if err != nil {
		_ = h.cli.ContainerRemove(ctx, resp.ID, container.RemoveOptions{Force: true})
		return instance{}, fmt.Errorf("failed to inspect container: %w", err)
	}
	bindings := inspect.NetworkSettings.Ports[browserPort]
	if len(bindings) == 0 || bindings[0].HostPort == "" {
		_ = h.cli.ContainerRemove(ctx, resp.ID, container.RemoveOptions{Force: true})
		return instance{}, fmt.Errorf("container %s published no port for %s", name, browserPort)
	}

	h.logger.Info("browser container started", "container", name, "host_port", bindings[0].HostPort)
	return instance{
		ContainerID: resp.ID,
		Endpoint:    "http://127.0.0.1:" + bindings[0].HostPort,
	}, nil
}

func (h *DockerHost) Remove(ctx context.Context, containerID string) error {
	err := h.cli.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: true})
	if err != nil && !client.IsErrNotFound(err) {
		return fmt.Errorf("failed to remove container: %w", err)
	}
	return nil
}

// PruneStale removes browser containers left behind by a crashed run.
func (h *DockerHost) PruneStale(ctx context.Context, olderThan time.Duration) (int, error) {
	args := filters.NewArgs()
	args.Add("label", managedLabel+"=true")
	containers, err := h.cli.ContainerList(ctx, container.ListOptions{All: true, Filters: args})
	if err != nil {
		return 0, err
	}

	removed := 0
	cutoff := time.Now().Add(-olderThan).Unix()
	for _, c := range containers {
		if c.Created > cutoff {
			continue
		}
		if err := h.Remove(ctx, c.ID); err != nil {
			h.logger.Warn("failed to prune browser container", "container", c.Labels[instanceLabel], "error", err)
			continue
		}
		removed++
	}
	return removed, nil
}

func (h *DockerHost) Close() error {
	return h.cli.Close()
}
