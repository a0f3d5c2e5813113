package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"groupage/core"
)

// fakeStore is an in-memory AnnouncementStore for service tests.
type fakeStore struct {
	mu      sync.Mutex
	records map[string]*core.Announcement

	listErr     error
	failPatchOn map[string]error
	patched     []string
}

func newFakeStore(records ...*core.Announcement) *fakeStore {
	fs := &fakeStore{
		records:     make(map[string]*core.Announcement),
		failPatchOn: make(map[string]error),
	}
	for _, r := range records {
		fs.records[r.ID] = r
	}
	return fs
}

func (fs *fakeStore) ListActive(ctx context.Context) ([]core.Announcement, error) {
	return fs.listWhere(func(a *core.Announcement) bool {
		return a.Status == core.StatusPublished && a.ExpiresAt != ""
	})
}

func (fs *fakeStore) ListPublished(ctx context.Context) ([]core.Announcement, error) {
	return fs.listWhere(func(a *core.Announcement) bool {
		return a.Status == core.StatusPublished
	})
}

func (fs *fakeStore) ListAll(ctx context.Context) ([]core.Announcement, error) {
	return fs.listWhere(func(*core.Announcement) bool { return true })
}

func (fs *fakeStore) GetByReference(ctx context.Context, reference string) (*core.Announcement, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	for _, r := range fs.records {
		if r.Reference == reference {
			cp := *r
			return &cp, nil
		}
	}
	return nil, errors.New("no record for reference")
}

func (fs *fakeStore) Patch(ctx context.Context, id string, fields core.FieldPatch) (*core.Announcement, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if err, ok := fs.failPatchOn[id]; ok {
		return nil, err
	}
	rec, ok := fs.records[id]
	if !ok {
		return nil, fmt.Errorf("unknown record %s", id)
	}

	for name, value := range fields {
		s, _ := value.(string)
		switch name {
		case "status":
			rec.Status = core.Status(s)
		case "expires_at":
			rec.ExpiresAt = s
		case "expired_at":
			rec.ExpiredAt = s
		case "expiration_reason":
			rec.ExpirationReason = core.ExpirationReason(s)
		case "validation_token":
			rec.ValidationToken = s
		case "shipping_date":
			rec.ShippingDate = s
		case "shipping_period_start":
			rec.ShippingPeriodStart = s
		case "shipping_period_end":
			rec.ShippingPeriodEnd = s
		case "description":
			rec.Description = s
		}
	}

	fs.patched = append(fs.patched, id)
	cp := *rec
	return &cp, nil
}

func (fs *fakeStore) listWhere(keep func(*core.Announcement) bool) ([]core.Announcement, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if fs.listErr != nil {
		return nil, fs.listErr
	}
	var out []core.Announcement
	for _, r := range fs.records {
		if keep(r) {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (fs *fakeStore) get(id string) *core.Announcement {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.records[id]
}

func (fs *fakeStore) patchCount() int {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return len(fs.patched)
}
