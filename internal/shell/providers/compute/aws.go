package compute

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	smithy "github.com/aws/smithy-go"
)

// AWSBackend creates pool instances as EC2 instances.
type AWSBackend struct {
	accessKeyID     string
	secretAccessKey string
	logger          *slog.Logger
}

// NewAWSBackend creates an AWS EC2 instance backend.
func NewAWSBackend(accessKeyID, secretAccessKey string, logger *slog.Logger) *AWSBackend {
	return &AWSBackend{
		accessKeyID:     accessKeyID,
		secretAccessKey: secretAccessKey,
		logger:          logger.With("backend", "aws"),
	}
}

func (b *AWSBackend) Name() string { return "aws" }

func (b *AWSBackend) newClient(region string) *ec2.Client {
	return ec2.New(ec2.Options{
		Region:      region,
		Credentials: credentials.NewStaticCredentialsProvider(b.accessKeyID, b.secretAccessKey, ""),
	})
}

// CreateInstance imports the pool key, resolves the AMI, and launches one
// EC2 instance tagged with the deployment scope.
func (b *AWSBackend) CreateInstance(ctx context.Context, req InstanceRequest) (*Instance, error) {
	client := b.newClient(req.Region)

	// Import the pool key (idempotent: re-runs replace the key).
	keyName := fmt.Sprintf("weld-%s", req.Name)
	if _, err := client.DeleteKeyPair(ctx, &ec2.DeleteKeyPairInput{KeyName: aws.String(keyName)}); err != nil {
		var apiErr smithy.APIError
		if !errors.As(err, &apiErr) || apiErr.ErrorCode() != "InvalidKeyPair.NotFound" {
			b.logger.Warn("failed to delete existing key pair", "key_name", keyName, "error", err)
		}
	}
	if _, err := client.ImportKeyPair(ctx, &ec2.ImportKeyPairInput{
		KeyName:           aws.String(keyName),
		PublicKeyMaterial: []byte(req.SSHPublicKey),
	}); err != nil {
		return nil, fmt.Errorf("failed to import SSH key: %w", err)
	}

	imageID, err := b.resolveImage(ctx, client, req.Image)
	if err != nil {
		return nil, err
	}

	tags := []ec2types.Tag{
		{Key: aws.String("Name"), Value: aws.String(req.Name)},
		{Key: aws.String("ManagedBy"), Value: aws.String("weld")},
	}
	for k, v := range req.Tags {
		tags = append(tags, ec2types.Tag{Key: aws.String(k), Value: aws.String(v)})
	}

	runOut, err := client.RunInstances(ctx, &ec2.RunInstancesInput{
		ImageId:      aws.String(imageID),
		InstanceType: ec2types.InstanceType(req.Size),
		KeyName:      aws.String(keyName),
		MinCount:     aws.Int32(1),
		MaxCount:     aws.Int32(1),
		TagSpecifications: []ec2types.TagSpecification{
			{ResourceType: ec2types.ResourceTypeInstance, Tags: tags},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to launch instance: %w", err)
	}
	if len(runOut.Instances) == 0 {
		return nil, errors.New("no instance returned from RunInstances")
	}

	instanceID := aws.ToString(runOut.Instances[0].InstanceId)
	b.logger.Info("EC2 instance launched", "instance_id", instanceID, "region", req.Region)

	publicIP, err := b.waitForPublicIP(ctx, client, instanceID)
	if err != nil {
		return nil, fmt.Errorf("failed waiting for public IP: %w", err)
	}

	return &Instance{ID: instanceID, Name: req.Name, PublicIP: publicIP}, nil
}

// resolveImage maps an image slug to the latest matching AMI. Anything that
// already looks like an AMI ID passes through.
func (b *AWSBackend) resolveImage(ctx context.Context, client *ec2.Client, image string) (string, error) {
	if len(image) > 4 && image[:4] == "ami-" {
		return image, nil
	}

	pattern := "ubuntu/images/hvm-ssd/ubuntu-jammy-22.04-amd64-server-*"
	out, err := client.DescribeImages(ctx, &ec2.DescribeImagesInput{
		Filters: []ec2types.Filter{
			{Name: aws.String("name"), Values: []string{pattern}},
			{Name: aws.String("state"), Values: []string{"available"}},
		},
		Owners: []string{"099720109477"}, // Canonical
	})
	if err != nil {
		return "", fmt.Errorf("failed to find AMI for %q: %w", image, err)
	}
	if len(out.Images) == 0 {
		return "", fmt.Errorf("no AMI found for %q", image)
	}

	latest := out.Images[0]
	for _, img := range out.Images[1:] {
		if aws.ToString(img.CreationDate) > aws.ToString(latest.CreationDate) {
			latest = img
		}
	}
	return aws.ToString(latest.ImageId), nil
}

func (b *AWSBackend) waitForPublicIP(ctx context.Context, client *ec2.Client, instanceID string) (string, error) {
	for i := 0; i < 60; i++ {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(5 * time.Second):
		}

		out, err := client.DescribeInstances(ctx, &ec2.DescribeInstancesInput{
			InstanceIds: []string{instanceID},
		})
		if err != nil {
			continue
		}

		for _, res := range out.Reservations {
			for _, inst := range res.Instances {
				if inst.PublicIpAddress != nil && *inst.PublicIpAddress != "" {
					return *inst.PublicIpAddress, nil
				}
			}
		}
	}
	return "", errors.New("timed out waiting for public IP")
}
