package compute

import "context"

// =============================================================================
// Instance Backend Contract
// =============================================================================

// InstanceRequest describes one instance to create in a pool.
type InstanceRequest struct {
	Name         string
	Size         string
	Image        string
	Region       string
	SSHPublicKey string
	Tags         map[string]string
}

// Instance is the created instance as reported by the backend.
type Instance struct {
	ID       string
	Name     string
	PublicIP string
}

// Backend creates compute instances on one infrastructure target. The
// provider decides pool layout and naming; the backend only turns one
// request into one running instance.
type Backend interface {
	Name() string
	CreateInstance(ctx context.Context, req InstanceRequest) (*Instance, error)
}
