// Package apitest provides an in-memory remote data endpoint for tests.
package apitest

import (
	"context"
	"fmt"
	"sync"

	"github.com/iudanet/runsync/internal/client/api"
	"github.com/iudanet/runsync/internal/models"
)

// Operation names used by Calls and FailNext
const (
	OpFetchAll = "fetch_all"
	OpFetch    = "fetch"
	OpInsert   = "insert"
	OpUpdate   = "update"
	OpDelete   = "delete"
	OpHealth   = "health"
)

// Fake is an in-memory collection server implementing api.ClientAPI.
// Inserted records without an id, or with a temporary one, get ids srv-1,
// srv-2 and so on.
type Fake struct {
	data   map[string]map[string]*models.Record
	fail   map[string][]error // ошибки, возвращаемые по очереди для операции
	calls  []string
	mu     sync.Mutex
	nextID int
}

var _ api.ClientAPI = (*Fake)(nil)

// NewFake creates an empty fake remote
func NewFake() *Fake {
	return &Fake{
		data: make(map[string]map[string]*models.Record),
		fail: make(map[string][]error),
	}
}

// NotFound returns the error the real client reports for a 404
func NotFound() error {
	return &api.RemoteError{Kind: api.KindNotFound, StatusCode: 404, Message: "record not found"}
}

// Transient returns the error the real client reports for a 503
func Transient() error {
	return &api.RemoteError{Kind: api.KindTransient, StatusCode: 503, Message: "service unavailable"}
}

// Permanent returns the error the real client reports for a 400
func Permanent() error {
	return &api.RemoteError{Kind: api.KindPermanent, StatusCode: 400, Message: "invalid record"}
}

// Seed stores r as if it had been written by someone else
func (f *Fake) Seed(collection string, r *models.Record) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.data[collection] == nil {
		f.data[collection] = make(map[string]*models.Record)
	}
	f.data[collection][r.ID()] = r.Clone()
}

// Remove deletes a record behind the client's back
func (f *Fake) Remove(collection, id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.data[collection], id)
}

// Get returns a copy of the stored record or nil
func (f *Fake) Get(collection, id string) *models.Record {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.data[collection][id].Clone()
}

// Len returns the number of records stored in collection
func (f *Fake) Len(collection string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.data[collection])
}

// FailNext makes the next calls of op return errs, one per call
func (f *Fake) FailNext(op string, errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[op] = append(f.fail[op], errs...)
}

// Calls returns the calls made so far as "op collection/id"
func (f *Fake) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// CountCalls returns how many times op was called
func (f *Fake) CountCalls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if len(c) > len(op) && c[:len(op)+1] == op+" " {
			n++
		}
	}
	return n
}

// enter records the call and pops an injected failure; mu must be held
func (f *Fake) enter(op, collection, id string) error {
	f.calls = append(f.calls, fmt.Sprintf("%s %s/%s", op, collection, id))
	if errs := f.fail[op]; len(errs) > 0 {
		f.fail[op] = errs[1:]
		return errs[0]
	}
	return nil
}

func (f *Fake) FetchAll(ctx context.Context, collection string) ([]*models.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(OpFetchAll, collection, ""); err != nil {
		return nil, err
	}
	out := make([]*models.Record, 0, len(f.data[collection]))
	for _, r := range f.data[collection] {
		out = append(out, r.Clone())
	}
	return out, nil
}

func (f *Fake) FetchByID(ctx context.Context, collection, id string) (*models.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(OpFetch, collection, id); err != nil {
		return nil, err
	}
	r, ok := f.data[collection][id]
	if !ok {
		return nil, NotFound()
	}
	return r.Clone(), nil
}

func (f *Fake) Insert(ctx context.Context, collection string, record *models.Record) (*models.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(OpInsert, collection, record.ID()); err != nil {
		return nil, err
	}
	stored := record.Clone()
	if stored.ID() == "" || models.IsTempID(stored.ID()) {
		f.nextID++
		stored.SetID(fmt.Sprintf("srv-%d", f.nextID))
	}
	if f.data[collection] == nil {
		f.data[collection] = make(map[string]*models.Record)
	}
	f.data[collection][stored.ID()] = stored.Clone()
	return stored, nil
}

func (f *Fake) Update(ctx context.Context, collection, id string, record *models.Record) (*models.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(OpUpdate, collection, id); err != nil {
		return nil, err
	}
	if _, ok := f.data[collection][id]; !ok {
		return nil, NotFound()
	}
	stored := record.Clone()
	stored.SetID(id)
	f.data[collection][id] = stored.Clone()
	return stored, nil
}

func (f *Fake) Delete(ctx context.Context, collection, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(OpDelete, collection, id); err != nil {
		return err
	}
	if _, ok := f.data[collection][id]; !ok {
		return NotFound()
	}
	delete(f.data[collection], id)
	return nil
}

func (f *Fake) Health(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.enter(OpHealth, "", "")
}
