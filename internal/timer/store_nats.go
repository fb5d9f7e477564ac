package timer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

const keyPrefix = "timer."

type NATSConfig struct {
	URL    string
	Bucket string
	// FileStorage keeps the bucket on disk so timers survive a NATS restart.
	FileStorage bool
}

// NATSStore keeps records in a JetStream key-value bucket, one JSON value
// per task under "timer.<task id>".
type NATSStore struct {
	nc *nats.Conn
	kv jetstream.KeyValue
}

func OpenNATS(ctx context.Context, cfg NATSConfig) (*NATSStore, error) {
	url := strings.TrimSpace(cfg.URL)
	if url == "" {
		url = nats.DefaultURL
	}
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		bucket = "active_timers"
	}

	nc, err := nats.Connect(url, nats.Name("focusbot"), nats.MaxReconnects(-1))
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream init: %w", err)
	}
	storage := jetstream.MemoryStorage
	if cfg.FileStorage {
		storage = jetstream.FileStorage
	}
	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      bucket,
		Description: "focusbot active timers",
		Storage:     storage,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream kv %q: %w", bucket, err)
	}
	return &NATSStore{nc: nc, kv: kv}, nil
}

// NewNATSStore wraps an existing bucket. Close is then a no-op.
func NewNATSStore(kv jetstream.KeyValue) *NATSStore {
	return &NATSStore{kv: kv}
}

func storeKey(taskID int64) string { return keyPrefix + strconv.FormatInt(taskID, 10) }

func parseKey(key string) (int64, bool) {
	rest, ok := strings.CutPrefix(key, keyPrefix)
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseInt(rest, 10, 64)
	return id, err == nil && id > 0
}

func (s *NATSStore) Get(ctx context.Context, taskID int64) (Record, bool, error) {
	entry, err := s.kv.Get(ctx, storeKey(taskID))
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return Record{}, false, nil
		}
		return Record{}, false, err
	}
	r, err := decodeRecord(entry.Value())
	if err != nil {
		return Record{}, false, err
	}
	r.TaskID = taskID
	return r, true, nil
}

func (s *NATSStore) Set(ctx context.Context, r Record) error {
	b, err := encodeRecord(r)
	if err != nil {
		return err
	}
	_, err = s.kv.Put(ctx, storeKey(r.TaskID), b)
	return err
}

func (s *NATSStore) Delete(ctx context.Context, taskID int64) error {
	err := s.kv.Delete(ctx, storeKey(taskID))
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return nil
	}
	return err
}

func (s *NATSStore) ListActive(ctx context.Context) ([]int64, error) {
	lister, err := s.kv.ListKeys(ctx)
	if err != nil {
		if errors.Is(err, jetstream.ErrNoKeysFound) {
			return nil, nil
		}
		return nil, err
	}
	defer func() { _ = lister.Stop() }()

	var ids []int64
	for key := range lister.Keys() {
		if id, ok := parseKey(key); ok {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (s *NATSStore) Close() error {
	if s.nc == nil {
		return nil
	}
	return s.nc.Drain()
}
