package config

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/mitchellh/mapstructure"

	"github.com/corvfs/corvfs/internal/logger"
	"github.com/corvfs/corvfs/pkg/driver/badgerfs"
	"github.com/corvfs/corvfs/pkg/driver/dev"
	"github.com/corvfs/corvfs/pkg/driver/fifo"
	"github.com/corvfs/corvfs/pkg/driver/memory"
	"github.com/corvfs/corvfs/pkg/driver/s3fs"
	"github.com/corvfs/corvfs/pkg/metrics"
	"github.com/corvfs/corvfs/pkg/vfs"
)

// driverGroupName maps a driver type to the group it registers in.
func driverGroupName(driverType string) string {
	switch driverType {
	case "dev":
		return vfs.GroupDevice.String()
	case "fifo":
		return vfs.GroupFifo.String()
	default:
		return vfs.GroupFilesystem.String()
	}
}

// driverGroup maps a driver type to its vfs group.
func driverGroup(driverType string) vfs.DriverGroup {
	switch driverType {
	case "dev":
		return vfs.GroupDevice
	case "fifo":
		return vfs.GroupFifo
	default:
		return vfs.GroupFilesystem
	}
}

// BuildVFS materializes the configured graph: metrics, the VFS instance,
// every declared driver, and the mount table. The returned mount nodes
// are what a graceful shutdown unmounts.
//
// The buffer driver that backs mountless nodes is always registered, so a
// configuration without any drivers still yields a usable in-memory tree.
func BuildVFS(ctx context.Context, cfg *Config) (*vfs.VFS, []*vfs.Node, error) {
	var vfsMetrics *metrics.VFSMetrics
	var driverMetrics *metrics.DriverMetrics
	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
		vfsMetrics = metrics.NewVFSMetrics()
		driverMetrics = metrics.NewDriverMetrics()
	}

	v := vfs.New(vfs.Options{
		EvictionCacheSize: cfg.Cache.EvictionSize,
		Metrics:           vfsMetrics,
	})

	// The mountless buffer driver is not optional.
	if err := v.RegisterDriver(vfs.GroupBuffer, vfs.BufferFile, memory.New(driverMetrics)); err != nil {
		return nil, nil, fmt.Errorf("failed to register buffer driver: %w", err)
	}

	drivers := make(map[string]*vfs.Resource)

	for _, dc := range cfg.Drivers {
		driver, err := CreateDriver(ctx, &dc, driverMetrics)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create driver %q: %w", dc.Name, err)
		}

		group := driverGroup(dc.Type)
		if err := v.RegisterDriver(group, dc.Index, driver); err != nil {
			return nil, nil, fmt.Errorf("failed to register driver %q: %w", dc.Name, err)
		}

		drivers[dc.Name] = vfs.NewResource(group, dc.Index, driver)
		logger.Info("registered %s driver %q at %s/%d", dc.Type, dc.Name, group, dc.Index)
	}

	var mounts []*vfs.Node
	for _, mc := range cfg.Mounts {
		res, ok := drivers[mc.Driver]
		if !ok {
			return nil, nil, fmt.Errorf("mount %q references unknown driver %q", mc.Path, mc.Driver)
		}
		mount, err := v.Mount(ctx, mc.Path, res)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to mount %q at %q: %w", mc.Driver, mc.Path, err)
		}
		mounts = append(mounts, mount)
	}

	return v, mounts, nil
}

// CreateDriver creates a driver instance from its configuration.
//
// This factory uses the Type field to pick the implementation, then
// decodes the type-specific Options map and passes it to the driver's
// constructor.
func CreateDriver(ctx context.Context, dc *DriverConfig, m *metrics.DriverMetrics) (vfs.Driver, error) {
	switch dc.Type {
	case "memory":
		return memory.New(m), nil
	case "badger":
		return createBadgerDriver(dc.Options, m)
	case "s3":
		return createS3Driver(ctx, dc.Options, m)
	case "dev":
		return dev.New(), nil
	case "fifo":
		return fifo.New(), nil
	default:
		return nil, fmt.Errorf("unknown driver type: %q", dc.Type)
	}
}

// createBadgerDriver creates a BadgerDB-backed filesystem driver.
func createBadgerDriver(options map[string]any, m *metrics.DriverMetrics) (vfs.Driver, error) {
	type BadgerDriverConfig struct {
		Path       string `mapstructure:"path"`
		InMemory   bool   `mapstructure:"in_memory"`
		SyncWrites bool   `mapstructure:"sync_writes"`
	}

	var driverCfg BadgerDriverConfig
	if err := mapstructure.Decode(options, &driverCfg); err != nil {
		return nil, fmt.Errorf("failed to decode badger driver config: %w", err)
	}

	if driverCfg.Path == "" && !driverCfg.InMemory {
		return nil, fmt.Errorf("badger driver: path is required")
	}

	return badgerfs.New(badgerfs.Config{
		Path:       driverCfg.Path,
		InMemory:   driverCfg.InMemory,
		SyncWrites: driverCfg.SyncWrites,
	}, m)
}

// createS3Driver creates an S3-backed filesystem driver.
func createS3Driver(ctx context.Context, options map[string]any, m *metrics.DriverMetrics) (vfs.Driver, error) {
	type S3DriverConfig struct {
		Region          string `mapstructure:"region"`
		Bucket          string `mapstructure:"bucket"`
		KeyPrefix       string `mapstructure:"key_prefix"`
		Endpoint        string `mapstructure:"endpoint"`
		AccessKeyID     string `mapstructure:"access_key_id"`
		SecretAccessKey string `mapstructure:"secret_access_key"`
		MaxRetries      int    `mapstructure:"max_retries"`
	}

	var driverCfg S3DriverConfig
	if err := mapstructure.Decode(options, &driverCfg); err != nil {
		return nil, fmt.Errorf("failed to decode s3 driver config: %w", err)
	}

	if driverCfg.Bucket == "" {
		return nil, fmt.Errorf("s3 driver: bucket is required")
	}
	if driverCfg.Region == "" {
		return nil, fmt.Errorf("s3 driver: region is required")
	}

	var configOptions []func(*awsConfig.LoadOptions) error
	configOptions = append(configOptions, awsConfig.WithRegion(driverCfg.Region))

	// Custom endpoint for MinIO, Localstack, etc.
	if driverCfg.Endpoint != "" {
		//nolint:staticcheck // TODO: migrate to BaseEndpoint when AWS SDK v2 stabilizes the new API
		customResolver := aws.EndpointResolverWithOptionsFunc(
			func(service, region string, options ...interface{}) (aws.Endpoint, error) {
				//nolint:staticcheck // TODO: migrate to BaseEndpoint when AWS SDK v2 stabilizes the new API
				return aws.Endpoint{
					URL:               driverCfg.Endpoint,
					HostnameImmutable: true,
					Source:            aws.EndpointSourceCustom,
				}, nil
			},
		)
		//nolint:staticcheck // TODO: migrate to BaseEndpoint when AWS SDK v2 stabilizes the new API
		configOptions = append(configOptions, awsConfig.WithEndpointResolverWithOptions(customResolver))
	}

	if driverCfg.AccessKeyID != "" && driverCfg.SecretAccessKey != "" {
		credProvider := credentials.NewStaticCredentialsProvider(
			driverCfg.AccessKeyID,
			driverCfg.SecretAccessKey,
			"", // session token (empty for static credentials)
		)
		configOptions = append(configOptions, awsConfig.WithCredentialsProvider(credProvider))
	}

	maxRetries := driverCfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = 10
	}
	configOptions = append(configOptions, awsConfig.WithRetryer(func() aws.Retryer {
		return retry.NewStandard(func(o *retry.StandardOptions) {
			o.MaxAttempts = maxRetries
		})
	}))

	awsCfg, err := awsConfig.LoadDefaultConfig(ctx, configOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = driverCfg.Endpoint != ""
	})

	return s3fs.New(client, s3fs.Config{
		Bucket:    driverCfg.Bucket,
		KeyPrefix: driverCfg.KeyPrefix,
	}, m)
}
