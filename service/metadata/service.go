// Package metadata publishes the execution runtime description so that the
// client can validate a runtime before submitting jobs to it.
package metadata

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/afs/url"
	"github.com/viant/podwork/model"
	"github.com/viant/podwork/service/executor"
)

// JobsPrefix is the storage folder holding runtime metadata.
const JobsPrefix = "lithops.jobs"

// Service extracts and stores runtime metadata
type Service struct {
	fs       afs.Service
	baseURL  string
	executor executor.Service
}

// New creates a metadata service storing under baseURL
func New(fs afs.Service, baseURL string, executor executor.Service) *Service {
	return &Service{fs: fs, baseURL: baseURL, executor: executor}
}

// Key returns the object URL of the runtime's metadata
func (s *Service) Key(runtimeName string) string {
	return url.Join(s.baseURL, JobsPrefix, runtimeName+".meta")
}

// Extract asks the engine for its metadata and stores it as JSON
func (s *Service) Extract(ctx context.Context, job *model.Job) (string, error) {
	if job == nil || job.RuntimeName == "" {
		return "", fmt.Errorf("%w: runtime_name is required", model.ErrInvalidPayload)
	}
	if s.baseURL == "" {
		return "", fmt.Errorf("storage base url is required")
	}
	meta, err := s.executor.Metadata(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to get runtime metadata: %w", err)
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return "", fmt.Errorf("failed to marshal runtime metadata: %w", err)
	}
	key := s.Key(job.RuntimeName)
	logrus.WithField("key", key).Info("storing runtime metadata")
	if err := s.fs.Upload(ctx, key, file.DefaultFileOsMode, bytes.NewReader(data)); err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", key, err)
	}
	return key, nil
}
