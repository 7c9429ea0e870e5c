package fs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/afs/storage"
	"github.com/viant/afs/url"
	"github.com/viant/podwork/internal/idgen"
	"github.com/viant/podwork/service/messaging"
)

// MessageState represents the state of a message in the filesystem queue
type MessageState string

const (
	// MessageStatePending indicates a message is waiting to be processed
	MessageStatePending MessageState = "pending"

	// MessageStateProcessing indicates a message is being processed
	MessageStateProcessing MessageState = "processing"

	// MessageStateCompleted indicates a message was successfully processed
	MessageStateCompleted MessageState = "completed"

	// MessageStateFailed indicates a message failed processing
	MessageStateFailed MessageState = "failed"
)

// Message implements messaging.Message for the filesystem queue
type Message[T any] struct {
	ID        string       `json:"id"`
	Data      T            `json:"data"`
	State     MessageState `json:"state"`
	Error     string       `json:"error,omitempty"`
	CreatedAt time.Time    `json:"createdAt"`
	UpdatedAt time.Time    `json:"updatedAt"`
	Retries   int          `json:"retries"`

	filename  string
	queue     *Queue[T]
	processed bool
	mu        sync.Mutex
}

// T returns the message payload
func (m *Message[T]) T() *T {
	return &m.Data
}

// Ack acknowledges that the message was processed successfully
func (m *Message[T]) Ack() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.processed {
		return fmt.Errorf("message already processed")
	}
	m.processed = true
	m.State = MessageStateCompleted
	m.UpdatedAt = time.Now()
	return m.queue.settle(context.Background(), m, m.queue.completedDir)
}

// Nack indicates that the message processing failed; the message returns to
// the failed directory for retry, or to the dead letter directory once
// MaxRetries is exceeded.
func (m *Message[T]) Nack(err error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.processed {
		return fmt.Errorf("message already processed")
	}
	m.processed = true
	m.State = MessageStateFailed
	if err != nil {
		m.Error = err.Error()
	}
	m.Retries++
	m.UpdatedAt = time.Now()
	dest := m.queue.failedDir
	if m.Retries > m.queue.config.MaxRetries {
		dest = m.queue.dlqDir
	}
	return m.queue.settle(context.Background(), m, dest)
}

// Config holds configuration for filesystem queue
type Config struct {
	BasePath     string        // Base directory for queue files
	MaxRetries   int           // Maximum number of retry attempts
	RetryDelay   time.Duration // Minimum age of a failed message before it is retried
	PollInterval time.Duration // Delay between scans of an empty queue
}

// DefaultConfig returns a default queue configuration
func DefaultConfig() Config {
	return Config{
		BasePath:     "/tmp/podwork/queue",
		MaxRetries:   3,
		RetryDelay:   time.Second,
		PollInterval: 50 * time.Millisecond,
	}
}

// Queue implements a filesystem-based messaging.Queue. Consume polls the
// pending directory, so producers and consumers may live in different
// processes sharing a file system.
type Queue[T any] struct {
	fs            afs.Service
	config        Config
	pendingDir    string
	processingDir string
	completedDir  string
	failedDir     string
	dlqDir        string
	mu            sync.Mutex
}

// NewQueue creates a new filesystem-based queue
func NewQueue[T any](fs afs.Service, config Config) (*Queue[T], error) {
	if config.BasePath == "" {
		return nil, fmt.Errorf("base path cannot be empty")
	}
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultConfig().PollInterval
	}
	q := &Queue[T]{
		fs:            fs,
		config:        config,
		pendingDir:    url.Join(config.BasePath, "pending"),
		processingDir: url.Join(config.BasePath, "processing"),
		completedDir:  url.Join(config.BasePath, "completed"),
		failedDir:     url.Join(config.BasePath, "failed"),
		dlqDir:        url.Join(config.BasePath, "dlq"),
	}
	ctx := context.Background()
	for _, dir := range []string{q.pendingDir, q.processingDir, q.completedDir, q.failedDir, q.dlqDir} {
		if err := ensureDir(ctx, fs, dir); err != nil {
			return nil, err
		}
	}
	return q, nil
}

// Publish adds a new message to the queue
func (q *Queue[T]) Publish(ctx context.Context, t *T) error {
	now := time.Now()
	message := &Message[T]{
		ID:        idgen.New(),
		Data:      *t,
		State:     MessageStatePending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	data, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	filename := fmt.Sprintf("%020d-%s.json", now.UnixNano(), message.ID)
	return q.upload(ctx, url.Join(q.pendingDir, filename), data)
}

// Consume blocks until a message is available or the context is done.
// Failed messages older than RetryDelay take precedence over pending ones.
func (q *Queue[T]) Consume(ctx context.Context) (messaging.Message[T], error) {
	for {
		msg, err := q.poll(ctx)
		if err != nil || msg != nil {
			return msg, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(q.config.PollInterval):
		}
	}
}

func (q *Queue[T]) poll(ctx context.Context) (*Message[T], error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	retry, err := q.claimOldest(ctx, q.failedDir, func(obj storage.Object) bool {
		return time.Since(obj.ModTime()) >= q.config.RetryDelay
	})
	if err != nil || retry != nil {
		return retry, err
	}
	return q.claimOldest(ctx, q.pendingDir, nil)
}

// claimOldest moves the oldest eligible message of dir to the processing directory.
func (q *Queue[T]) claimOldest(ctx context.Context, dir string, eligible func(storage.Object) bool) (*Message[T], error) {
	objects, err := q.fs.List(ctx, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}
	var candidates []storage.Object
	for _, obj := range objects {
		if obj.IsDir() || !strings.HasSuffix(obj.Name(), ".json") {
			continue
		}
		if eligible != nil && !eligible(obj) {
			continue
		}
		candidates = append(candidates, obj)
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Name() < candidates[j].Name() })
	obj := candidates[0]

	message, err := q.read(ctx, obj.URL())
	if err != nil {
		_ = q.fs.Move(ctx, obj.URL(), url.Join(q.dlqDir, "invalid-"+obj.Name()))
		return nil, err
	}
	message.filename = obj.Name()
	message.queue = q
	message.State = MessageStateProcessing
	message.UpdatedAt = time.Now()

	data, err := json.Marshal(message)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal message: %w", err)
	}
	if err := q.upload(ctx, url.Join(q.processingDir, obj.Name()), data); err != nil {
		return nil, fmt.Errorf("failed to move message to processing directory: %w", err)
	}
	if err := q.fs.Delete(ctx, obj.URL()); err != nil {
		return nil, fmt.Errorf("failed to delete message %s: %w", obj.URL(), err)
	}
	return message, nil
}

// settle writes the message to dest and removes it from processing.
func (q *Queue[T]) settle(ctx context.Context, m *Message[T], dest string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	if err := q.upload(ctx, url.Join(dest, m.filename), data); err != nil {
		return fmt.Errorf("failed to write message to %s: %w", dest, err)
	}
	processingPath := url.Join(q.processingDir, m.filename)
	if exists, _ := q.fs.Exists(ctx, processingPath); exists {
		if err := q.fs.Delete(ctx, processingPath); err != nil {
			return fmt.Errorf("failed to delete message from processing directory: %w", err)
		}
	}
	return nil
}

func (q *Queue[T]) upload(ctx context.Context, URL string, data []byte) error {
	return q.fs.Upload(ctx, URL, file.DefaultFileOsMode, bytes.NewReader(data))
}

func (q *Queue[T]) read(ctx context.Context, URL string) (*Message[T], error) {
	data, err := q.fs.DownloadWithURL(ctx, URL)
	if err != nil {
		return nil, fmt.Errorf("failed to read message %s: %w", URL, err)
	}
	var message Message[T]
	if err := json.Unmarshal(data, &message); err != nil {
		return nil, fmt.Errorf("failed to unmarshal message %s: %w", URL, err)
	}
	return &message, nil
}

func ensureDir(ctx context.Context, fs afs.Service, dir string) error {
	if exists, _ := fs.Exists(ctx, dir); exists {
		return nil
	}
	if err := fs.Create(ctx, dir, file.DefaultDirOsMode, true); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	return nil
}

// ensure Queue implements messaging.Queue interface
var _ messaging.Queue[any] = (*Queue[any])(nil)
