// Package dockerrun provides an engine.Operation that runs a task's
// work as a one-shot Docker container: create, start, wait, collect
// logs, remove.
package dockerrun

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"go.uber.org/zap"

	"github.com/kandev/taskscheduler/internal/common/logger"
)

// Config configures the Docker client the operation runs containers
// through.
type Config struct {
	Host       string
	APIVersion string
}

// dockerAPI is the slice of the Docker client the operation actually
// calls, so tests can substitute a fake daemon.
type dockerAPI interface {
	ImagePull(ctx context.Context, refStr string, options image.PullOptions) (io.ReadCloser, error)
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerWait(ctx context.Context, containerID string, condition container.WaitCondition) (<-chan container.WaitResponse, <-chan error)
	ContainerLogs(ctx context.Context, containerID string, options container.LogsOptions) (io.ReadCloser, error)
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
	Close() error
}

// Operation runs task.Operation.Parameters as a container: "image" (the
// image to run, pulled before every run) and "cmd" (an optional []any of
// strings) are read from params. Its result is the container's
// trimmed stdout/stderr combined, and it fails if the container exits
// non-zero.
type Operation struct {
	cli dockerAPI
	log *logger.Logger
}

// New connects to the Docker daemon described by cfg.
func New(cfg Config, log *logger.Logger) (*Operation, error) {
	opts := []client.Opt{client.WithAPIVersionNegotiation()}
	if cfg.Host != "" {
		opts = append(opts, client.WithHost(cfg.Host))
	}
	if cfg.APIVersion != "" {
		opts = append(opts, client.WithVersion(cfg.APIVersion))
	}
	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	return &Operation{cli: cli, log: log}, nil
}

// Close closes the underlying Docker client.
func (o *Operation) Close() error {
	return o.cli.Close()
}

func (o *Operation) Run(ctx context.Context, params map[string]any, _ map[string]any) (any, error) {
	imageName, _ := params["image"].(string)
	if imageName == "" {
		return nil, fmt.Errorf("dockerrun: params.image is required")
	}
	var cmd []string
	if raw, ok := params["cmd"].([]any); ok {
		for _, v := range raw {
			if s, ok := v.(string); ok {
				cmd = append(cmd, s)
			}
		}
	}

	if err := o.pullImage(ctx, imageName); err != nil {
		return nil, err
	}

	resp, err := o.cli.ContainerCreate(ctx, &container.Config{
		Image: imageName,
		Cmd:   cmd,
	}, &container.HostConfig{AutoRemove: false}, nil, nil, "")
	if err != nil {
		return nil, fmt.Errorf("dockerrun: create container: %w", err)
	}
	id := resp.ID
	defer func() {
		_ = o.cli.ContainerRemove(context.Background(), id, container.RemoveOptions{Force: true})
	}()

	if err := o.cli.ContainerStart(ctx, id, container.StartOptions{}); err != nil {
		return nil, fmt.Errorf("dockerrun: start container: %w", err)
	}

	statusCh, errCh := o.cli.ContainerWait(ctx, id, container.WaitConditionNotRunning)
	var exitCode int64
	select {
	case err := <-errCh:
		if err != nil {
			return nil, fmt.Errorf("dockerrun: wait container: %w", err)
		}
	case status := <-statusCh:
		exitCode = status.StatusCode
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	output, err := o.containerOutput(ctx, id)
	if err != nil {
		o.log.Warn("dockerrun: failed to read container output", zap.Error(err), zap.String("container_id", id))
	}

	if exitCode != 0 {
		return nil, fmt.Errorf("dockerrun: container exited with code %d: %s", exitCode, output)
	}
	return output, nil
}

func (o *Operation) pullImage(ctx context.Context, imageName string) error {
	reader, err := o.cli.ImagePull(ctx, imageName, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("dockerrun: pull image %s: %w", imageName, err)
	}
	defer reader.Close()
	_, _ = io.Copy(io.Discard, reader)
	return nil
}

func (o *Operation) containerOutput(ctx context.Context, id string) (string, error) {
	reader, err := o.cli.ContainerLogs(ctx, id, container.LogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		return "", err
	}
	defer reader.Close()
	var sb strings.Builder
	if _, err := io.Copy(&sb, reader); err != nil {
		return "", err
	}
	return strings.TrimSpace(sb.String()), nil
}
