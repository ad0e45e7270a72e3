package usecase

import (
	"context"
	"errors"
)

// failingStore simulates a broken durable store; every operation reports the
// same I/O fault.
type failingStore struct {
	err error
}

func newFailingStore() *failingStore {
	return &failingStore{err: errors.New("disk unavailable")}
}

func (s *failingStore) Get(context.Context, string) (string, error) { return "", s.err }
func (s *failingStore) Set(context.Context, string, string) error   { return s.err }
func (s *failingStore) Delete(context.Context, string) error        { return s.err }
func (s *failingStore) Keys(context.Context, string) ([]string, error) {
	return nil, s.err
}
func (s *failingStore) DeleteMany(context.Context, []string) error { return s.err }
