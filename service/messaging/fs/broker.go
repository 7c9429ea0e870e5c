package fs

import (
	"context"
	"fmt"
	"path"

	"github.com/viant/afs"
	"github.com/viant/afs/url"
	"github.com/viant/podwork/internal/idgen"
	"github.com/viant/podwork/service/messaging"
)

// Broker is a messaging.Broker persisted on any afs-supported file system.
// Named queues live under <BasePath>/queues/<name>; every exchange subscriber
// owns a queue under <BasePath>/exchanges/<exchange>/<id>.
type Broker struct {
	fs     afs.Service
	config Config
}

// NewBroker creates a file system broker rooted at config.BasePath
func NewBroker(fs afs.Service, config Config) (*Broker, error) {
	if config.BasePath == "" {
		return nil, fmt.Errorf("base path cannot be empty")
	}
	return &Broker{fs: fs, config: config}, nil
}

// Queue declares (or attaches to) the named queue
func (b *Broker) Queue(_ context.Context, name string) (messaging.Queue[messaging.Body], error) {
	return b.queueAt(url.Join(b.config.BasePath, "queues", name))
}

// Declare creates the named queue directories
func (b *Broker) Declare(ctx context.Context, name string) error {
	_, err := b.Queue(ctx, name)
	return err
}

// Publish writes body to the named queue
func (b *Broker) Publish(ctx context.Context, queue string, body *messaging.Body) error {
	q, err := b.Queue(ctx, queue)
	if err != nil {
		return err
	}
	return q.Publish(ctx, body)
}

// ExclusiveQueue declares a uniquely named queue
func (b *Broker) ExclusiveQueue(ctx context.Context) (string, messaging.Queue[messaging.Body], error) {
	name := "gen-" + idgen.New()
	queue, err := b.Queue(ctx, name)
	return name, queue, err
}

// Subscribe creates a subscriber directory under the exchange
func (b *Broker) Subscribe(_ context.Context, exchange string) (messaging.Queue[messaging.Body], error) {
	return b.queueAt(url.Join(b.exchangeDir(exchange), idgen.New()))
}

// Broadcast publishes body to every subscriber directory of the exchange
func (b *Broker) Broadcast(ctx context.Context, exchange string, body *messaging.Body) error {
	dir := b.exchangeDir(exchange)
	if exists, _ := b.fs.Exists(ctx, dir); !exists {
		return nil
	}
	objects, err := b.fs.List(ctx, dir)
	if err != nil {
		return fmt.Errorf("failed to list subscribers of %s: %w", exchange, err)
	}
	for _, obj := range objects {
		if !obj.IsDir() || path.Base(obj.URL()) == path.Base(dir) {
			continue
		}
		queue, err := b.queueAt(url.Join(dir, obj.Name()))
		if err != nil {
			return err
		}
		if err := queue.Publish(ctx, body); err != nil {
			return err
		}
	}
	return nil
}

// Close is a no-op; messages stay on the file system.
func (b *Broker) Close() error {
	return nil
}

func (b *Broker) exchangeDir(exchange string) string {
	return url.Join(b.config.BasePath, "exchanges", exchange)
}

func (b *Broker) queueAt(dir string) (*Queue[messaging.Body], error) {
	config := b.config
	config.BasePath = dir
	return NewQueue[messaging.Body](b.fs, config)
}

// ensure Broker implements messaging.Broker interface
var _ messaging.Broker = (*Broker)(nil)
