// Package fs persists dispenser counters as JSON files on any afs-supported
// storage, so that a restarted master resumes where it left off.
package fs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/afs/url"
	"github.com/viant/podwork/model"
	"github.com/viant/podwork/service/dao"
)

// Service implements a filesystem-based counter storage
type Service struct {
	basePath string
	fs       afs.Service
	mu       sync.RWMutex
}

var _ dao.Service[string, model.Counter] = (*Service)(nil)

// Save persists a counter
func (s *Service) Save(ctx context.Context, counter *model.Counter) error {
	if counter == nil {
		return dao.ErrNilEntity
	}
	if !validKey(counter.JobKey) {
		return dao.ErrInvalidID
	}
	data, err := json.Marshal(counter)
	if err != nil {
		return fmt.Errorf("failed to marshal counter: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	filePath := s.counterPath(counter.JobKey)
	if err := s.fs.Upload(ctx, filePath, file.DefaultFileOsMode, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to save counter to file %s: %w", filePath, err)
	}
	return nil
}

// Load retrieves a counter or dao.ErrNotFound
func (s *Service) Load(ctx context.Context, jobKey string) (*model.Counter, error) {
	if !validKey(jobKey) {
		return nil, dao.ErrInvalidID
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	filePath := s.counterPath(jobKey)
	exists, err := s.fs.Exists(ctx, filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to check if counter exists: %w", err)
	}
	if !exists {
		return nil, dao.ErrNotFound
	}
	data, err := s.fs.DownloadWithURL(ctx, filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read counter file: %w", err)
	}
	var counter model.Counter
	if err := json.Unmarshal(data, &counter); err != nil {
		return nil, fmt.Errorf("failed to unmarshal counter %s: %w", filePath, err)
	}
	return &counter, nil
}

// Delete removes a counter
func (s *Service) Delete(ctx context.Context, jobKey string) error {
	if !validKey(jobKey) {
		return dao.ErrInvalidID
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	filePath := s.counterPath(jobKey)
	exists, err := s.fs.Exists(ctx, filePath)
	if err != nil {
		return fmt.Errorf("failed to check if counter exists: %w", err)
	}
	if !exists {
		return dao.ErrNotFound
	}
	if err := s.fs.Delete(ctx, filePath); err != nil {
		return fmt.Errorf("failed to delete counter file: %w", err)
	}
	return nil
}

// List returns every stored counter; unreadable files are skipped.
func (s *Service) List(ctx context.Context) ([]*model.Counter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	objects, err := s.fs.List(ctx, s.basePath)
	if err != nil {
		return nil, fmt.Errorf("failed to list counter files: %w", err)
	}
	var counters []*model.Counter
	for _, object := range objects {
		if object.IsDir() || !strings.HasSuffix(object.Name(), ".json") {
			continue
		}
		data, err := s.fs.Download(ctx, object)
		if err != nil {
			continue
		}
		counter := &model.Counter{}
		if err := json.Unmarshal(data, counter); err != nil {
			continue
		}
		counters = append(counters, counter)
	}
	return counters, nil
}

func (s *Service) counterPath(jobKey string) string {
	return url.Join(s.basePath, jobKey+".json")
}

func validKey(jobKey string) bool {
	return jobKey != "" && !strings.ContainsAny(jobKey, `/\`) && jobKey != "." && jobKey != ".."
}

// New creates a counter store rooted at basePath, a local path or any afs URL
func New(fs afs.Service, basePath string) (*Service, error) {
	if basePath == "" {
		return nil, fmt.Errorf("base path cannot be empty")
	}
	if fs == nil {
		fs = afs.New()
	}
	ctx := context.Background()
	if exists, _ := fs.Exists(ctx, basePath); !exists {
		if err := fs.Create(ctx, basePath, file.DefaultDirOsMode, true); err != nil {
			return nil, fmt.Errorf("failed to create base directory: %w", err)
		}
	}
	return &Service{basePath: url.Normalize(basePath, file.Scheme), fs: fs}, nil
}
