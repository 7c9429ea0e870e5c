// Package meta loads YAML resources through afs, expanding ${env.NAME}
// expressions before decoding.
package meta

import (
	"context"
	"fmt"

	"github.com/viant/afs"
	"github.com/viant/afs/storage"
	"gopkg.in/yaml.v3"
)

// Service loads YAML resources from any afs-supported location
type Service struct {
	fs      afs.Service
	options []storage.Option
}

// New creates a meta service
func New(fs afs.Service, options ...storage.Option) *Service {
	return &Service{fs: fs, options: options}
}

// Load downloads URL, expands environment expressions and decodes the YAML into dest.
func (s *Service) Load(ctx context.Context, URL string, dest interface{}) error {
	data, err := s.fs.DownloadWithURL(ctx, URL, s.options...)
	if err != nil {
		return fmt.Errorf("failed to download %s: %w", URL, err)
	}
	if err := yaml.Unmarshal([]byte(ExpandEnv(string(data))), dest); err != nil {
		return fmt.Errorf("failed to decode %s: %w", URL, err)
	}
	return nil
}
