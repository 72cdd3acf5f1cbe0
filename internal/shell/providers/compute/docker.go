package compute

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
)

// DockerBackend runs pool instances as local containers. Meant for
// development runs: an "instance" is a container with port 22 published on
// an ephemeral host port, addressed as 127.0.0.1.
type DockerBackend struct {
	cli    *client.Client
	logger *slog.Logger
}

// NewDockerBackend connects to the local Docker daemon. An empty host uses
// the environment default.
func NewDockerBackend(host string, logger *slog.Logger) (*DockerBackend, error) {
	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if host != "" {
		opts = append(opts, client.WithHost(host))
	}
	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	return &DockerBackend{cli: cli, logger: logger.With("backend", "docker")}, nil
}

func (b *DockerBackend) Name() string { return "docker" }

// CreateInstance pulls the image and starts one container.
func (b *DockerBackend) CreateInstance(ctx context.Context, req InstanceRequest) (*Instance, error) {
	if err := b.pullImage(ctx, req.Image); err != nil {
		b.logger.Warn("image pull failed, trying local image", "image", req.Image, "error", err)
	}

	labels := map[string]string{
		"managed-by":    "weld",
		"weld.instance": req.Name,
		"weld.size":     req.Size,
	}
	for k, v := range req.Tags {
		labels["weld.tag."+k] = v
	}

	sshPort := nat.Port("22/tcp")
	config := &container.Config{
		Image:        req.Image,
		Labels:       labels,
		Env:          []string{"WELD_SSH_AUTHORIZED_KEY=" + req.SSHPublicKey},
		ExposedPorts: nat.PortSet{sshPort: struct{}{}},
	}
	hostConfig := &container.HostConfig{
		PortBindings: nat.PortMap{
			// Ephemeral host port; the daemon picks one.
			sshPort: []nat.PortBinding{{HostIP: "127.0.0.1"}},
		},
	}

	resp, err := b.cli.ContainerCreate(ctx, config, hostConfig, nil, nil, req.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to create container %s: %w", req.Name, err)
	}

	if err := b.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return nil, fmt.Errorf("failed to start container %s: %w", req.Name, err)
	}

	b.logger.Info("container started", "container_id", resp.ID, "name", req.Name)

	return &Instance{ID: resp.ID, Name: req.Name, PublicIP: "127.0.0.1"}, nil
}

func (b *DockerBackend) pullImage(ctx context.Context, imageName string) error {
	reader, err := b.cli.ImagePull(ctx, imageName, image.PullOptions{})
	if err != nil {
		return err
	}
	defer reader.Close()

	// The pull completes only once the response stream is drained.
	_, err = io.Copy(io.Discard, reader)
	return err
}
