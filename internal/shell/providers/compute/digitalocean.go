package compute

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/digitalocean/godo"
)

// DigitalOceanBackend creates pool instances as Droplets.
type DigitalOceanBackend struct {
	client *godo.Client
	logger *slog.Logger
}

// NewDigitalOceanBackend creates a DigitalOcean instance backend.
func NewDigitalOceanBackend(apiToken string, logger *slog.Logger) *DigitalOceanBackend {
	return &DigitalOceanBackend{
		client: godo.NewFromToken(apiToken),
		logger: logger.With("backend", "digitalocean"),
	}
}

func (b *DigitalOceanBackend) Name() string { return "digitalocean" }

// CreateInstance uploads the pool key and creates one Droplet.
func (b *DigitalOceanBackend) CreateInstance(ctx context.Context, req InstanceRequest) (*Instance, error) {
	key, _, err := b.client.Keys.Create(ctx, &godo.KeyCreateRequest{
		Name:      fmt.Sprintf("weld-%s", req.Name),
		PublicKey: req.SSHPublicKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload SSH key: %w", err)
	}

	tags := []string{"weld"}
	for k, v := range req.Tags {
		tags = append(tags, fmt.Sprintf("%s:%s", k, v))
	}

	droplet, _, err := b.client.Droplets.Create(ctx, &godo.DropletCreateRequest{
		Name:   req.Name,
		Region: req.Region,
		Size:   req.Size,
		Image:  godo.DropletCreateImage{Slug: req.Image},
		SSHKeys: []godo.DropletCreateSSHKey{
			{ID: key.ID},
		},
		Tags: tags,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create droplet: %w", err)
	}

	b.logger.Info("droplet created", "droplet_id", droplet.ID, "region", req.Region)

	publicIP, err := b.waitForPublicIP(ctx, droplet.ID)
	if err != nil {
		return nil, fmt.Errorf("failed waiting for public IP: %w", err)
	}

	return &Instance{
		ID:       fmt.Sprintf("%d", droplet.ID),
		Name:     req.Name,
		PublicIP: publicIP,
	}, nil
}

func (b *DigitalOceanBackend) waitForPublicIP(ctx context.Context, dropletID int) (string, error) {
	for i := 0; i < 60; i++ {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(5 * time.Second):
		}

		droplet, _, err := b.client.Droplets.Get(ctx, dropletID)
		if err != nil {
			continue
		}

		if droplet.Status == "active" {
			ip, err := droplet.PublicIPv4()
			if err == nil && ip != "" {
				return ip, nil
			}
		}
	}
	return "", errors.New("timed out waiting for droplet public IP")
}
