package metrics

import (
	"context"
	"time"

	"github.com/aegisshield/compliance-tracker/internal/store"
)

// instrumentedStore records every call of the wrapped store
type instrumentedStore struct {
	next      store.Store
	collector *Collector
}

// InstrumentStore wraps s so that each call is counted and timed
func InstrumentStore(s store.Store, c *Collector) store.Store {
	return &instrumentedStore{next: s, collector: c}
}

func (s *instrumentedStore) Create(ctx context.Context, collection, id string, data interface{}) (string, error) {
	start := time.Now()
	newID, err := s.next.Create(ctx, collection, id, data)
	s.collector.RecordStoreOperation("create", collection, err, time.Since(start))
	return newID, err
}

func (s *instrumentedStore) Get(ctx context.Context, collection, id string) (*store.Document, error) {
	start := time.Now()
	doc, err := s.next.Get(ctx, collection, id)
	s.collector.RecordStoreOperation("get", collection, err, time.Since(start))
	return doc, err
}

func (s *instrumentedStore) Query(ctx context.Context, collection string, q store.Query) ([]*store.Document, error) {
	start := time.Now()
	docs, err := s.next.Query(ctx, collection, q)
	s.collector.RecordStoreOperation("query", collection, err, time.Since(start))
	return docs, err
}

func (s *instrumentedStore) Update(ctx context.Context, collection, id string, patch map[string]interface{}, ifVersion int64) (int64, error) {
	start := time.Now()
	version, err := s.next.Update(ctx, collection, id, patch, ifVersion)
	s.collector.RecordStoreOperation("update", collection, err, time.Since(start))
	return version, err
}

func (s *instrumentedStore) Delete(ctx context.Context, collection, id string) error {
	start := time.Now()
	err := s.next.Delete(ctx, collection, id)
	s.collector.RecordStoreOperation("delete", collection, err, time.Since(start))
	return err
}
