package compute

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/hetznercloud/hcloud-go/v2/hcloud"
)

// HetznerBackend creates pool instances as Hetzner Cloud servers.
type HetznerBackend struct {
	client *hcloud.Client
	logger *slog.Logger
}

// NewHetznerBackend creates a Hetzner Cloud instance backend.
func NewHetznerBackend(apiToken string, logger *slog.Logger) *HetznerBackend {
	return &HetznerBackend{
		client: hcloud.NewClient(hcloud.WithToken(apiToken)),
		logger: logger.With("backend", "hetzner"),
	}
}

func (b *HetznerBackend) Name() string { return "hetzner" }

// CreateInstance uploads the pool key and creates one server.
func (b *HetznerBackend) CreateInstance(ctx context.Context, req InstanceRequest) (*Instance, error) {
	// Upload the pool key (idempotent: replace an existing key of the same name).
	keyName := fmt.Sprintf("weld-%s", req.Name)
	if existing, _, _ := b.client.SSHKey.GetByName(ctx, keyName); existing != nil {
		b.client.SSHKey.Delete(ctx, existing)
	}
	key, _, err := b.client.SSHKey.Create(ctx, hcloud.SSHKeyCreateOpts{
		Name:      keyName,
		PublicKey: req.SSHPublicKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload SSH key: %w", err)
	}

	serverType, _, err := b.client.ServerType.GetByName(ctx, req.Size)
	if err != nil || serverType == nil {
		return nil, fmt.Errorf("invalid server type %s: %w", req.Size, err)
	}

	location, _, err := b.client.Location.GetByName(ctx, req.Region)
	if err != nil || location == nil {
		return nil, fmt.Errorf("invalid location %s: %w", req.Region, err)
	}

	image, _, err := b.client.Image.GetByNameAndArchitecture(ctx, req.Image, hcloud.ArchitectureX86)
	if err != nil || image == nil {
		return nil, fmt.Errorf("failed to find image %s: %w", req.Image, err)
	}

	labels := map[string]string{"managed-by": "weld"}
	for k, v := range req.Tags {
		labels[k] = v
	}

	result, _, err := b.client.Server.Create(ctx, hcloud.ServerCreateOpts{
		Name:       req.Name,
		ServerType: serverType,
		Image:      image,
		Location:   location,
		SSHKeys:    []*hcloud.SSHKey{key},
		Labels:     labels,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create server: %w", err)
	}

	b.logger.Info("Hetzner server created", "server_id", result.Server.ID, "location", req.Region)

	publicIP, err := b.waitForPublicIP(ctx, result.Server.ID)
	if err != nil {
		return nil, fmt.Errorf("failed waiting for public IP: %w", err)
	}

	return &Instance{
		ID:       strconv.FormatInt(result.Server.ID, 10),
		Name:     req.Name,
		PublicIP: publicIP,
	}, nil
}

func (b *HetznerBackend) waitForPublicIP(ctx context.Context, serverID int64) (string, error) {
	for i := 0; i < 60; i++ {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(5 * time.Second):
		}

		server, _, err := b.client.Server.GetByID(ctx, serverID)
		if err != nil || server == nil {
			continue
		}

		if server.Status == hcloud.ServerStatusRunning && !server.PublicNet.IPv4.IP.IsUnspecified() {
			return server.PublicNet.IPv4.IP.String(), nil
		}
	}
	return "", errors.New("timed out waiting for server public IP")
}
