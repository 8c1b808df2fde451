package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"profiledrive/internal/domain"
	"profiledrive/internal/repository"
	"profiledrive/internal/service/s3"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, 3, 7, 10, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type memObject struct {
	data        []byte
	contentType string
	modified    time.Time
}

// memStore - хранилище объектов в памяти с подписью ссылок
type memStore struct {
	mu         sync.Mutex
	objects    map[domain.Location]memObject
	now        func() time.Time
	failPut    map[string]error
	failCopy   error
	failExists error
	failSign   error
	copies     int
}

var _ s3.Storage = (*memStore)(nil)

func newMemStore(now func() time.Time) *memStore {
	return &memStore{
		objects: make(map[domain.Location]memObject),
		now:     now,
		failPut: make(map[string]error),
	}
}

// upload имитирует PUT клиента по подписанной ссылке
func (m *memStore) upload(loc domain.Location, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[loc] = memObject{data: append([]byte(nil), data...), modified: m.now()}
}

func (m *memStore) read(loc domain.Location) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[loc]
	return obj.data, ok
}

func (m *memStore) remove(loc domain.Location) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, loc)
}

func (m *memStore) keys(bucket string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for loc := range m.objects {
		if loc.Bucket == bucket {
			out = append(out, loc.Key)
		}
	}
	sort.Strings(out)
	return out
}

func (m *memStore) Put(_ context.Context, loc domain.Location, body []byte, contentType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failPut[loc.Bucket]; err != nil {
		return err
	}
	m.objects[loc] = memObject{data: append([]byte(nil), body...), contentType: contentType, modified: m.now()}
	return nil
}

func (m *memStore) Copy(_ context.Context, src, dst domain.Location) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failCopy != nil {
		return m.failCopy
	}
	obj, ok := m.objects[src]
	if !ok {
		return fmt.Errorf("%w: %s", s3.ErrObjectNotFound, src)
	}
	obj.modified = m.now()
	obj.data = append([]byte(nil), obj.data...)
	m.objects[dst] = obj
	m.copies++
	return nil
}

func (m *memStore) Exists(_ context.Context, loc domain.Location) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failExists != nil {
		return false, m.failExists
	}
	_, ok := m.objects[loc]
	return ok, nil
}

func (m *memStore) Stat(_ context.Context, loc domain.Location) (*s3.ObjectInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[loc]
	if !ok {
		return nil, fmt.Errorf("%w: %s", s3.ErrObjectNotFound, loc)
	}
	return &s3.ObjectInfo{Size: int64(len(obj.data)), ContentType: obj.contentType, LastModified: obj.modified}, nil
}

func (m *memStore) Delete(_ context.Context, loc domain.Location) error {
	m.remove(loc)
	return nil
}

func (m *memStore) DeleteMany(_ context.Context, bucket string, keys []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.objects, domain.Location{Bucket: bucket, Key: key})
	}
	return nil
}

func (m *memStore) PresignPut(_ context.Context, loc domain.Location, contentType string, ttl time.Duration) (*s3.PresignedRequest, error) {
	if m.failSign != nil {
		return nil, m.failSign
	}
	return &s3.PresignedRequest{
		URL:          fmt.Sprintf("https://objects.test/%s?X-Amz-Expires=%d", loc, int(ttl.Seconds())),
		Method:       http.MethodPut,
		SignedHeader: http.Header{"Content-Type": []string{contentType}},
	}, nil
}

func (m *memStore) PresignGet(_ context.Context, loc domain.Location, ttl time.Duration) (*s3.PresignedRequest, error) {
	if m.failSign != nil {
		return nil, m.failSign
	}
	return &s3.PresignedRequest{
		URL:    fmt.Sprintf("https://objects.test/%s?X-Amz-Expires=%d", loc, int(ttl.Seconds())),
		Method: http.MethodGet,
	}, nil
}

// memDB хранит слоты, архив и сессии загрузки; удаление слотов каскадно удаляет архив
type memDB struct {
	mu       sync.Mutex
	slots    map[domain.SlotRef]domain.AssetSlot
	archives []domain.ArchiveEntry
	nextID   int64
	uploads  map[uuid.UUID]domain.UploadSession
	now      func() time.Time
}

func newMemDB(now func() time.Time) *memDB {
	return &memDB{
		slots:   make(map[domain.SlotRef]domain.AssetSlot),
		uploads: make(map[uuid.UUID]domain.UploadSession),
		now:     now,
	}
}

type memSlots struct{ db *memDB }
type memArchives struct{ db *memDB }
type memUploads struct{ db *memDB }

var (
	_ SlotRepository    = memSlots{}
	_ ArchiveRepository = memArchives{}
	_ UploadRepository  = memUploads{}
)

func (r memSlots) Get(_ context.Context, ref domain.SlotRef) (*domain.AssetSlot, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	slot, ok := r.db.slots[ref]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &slot, nil
}

func (r memSlots) Ensure(ctx context.Context, ref domain.SlotRef) (*domain.AssetSlot, error) {
	r.db.mu.Lock()
	if _, ok := r.db.slots[ref]; !ok {
		now := r.db.now()
		r.db.slots[ref] = domain.AssetSlot{
			OwnerID: ref.OwnerID, Kind: ref.Kind, SubType: ref.SubType,
			CreatedAt: now, UpdatedAt: now,
		}
	}
	r.db.mu.Unlock()
	return r.Get(ctx, ref)
}

func (r memSlots) ListByOwner(_ context.Context, ownerID string) ([]domain.AssetSlot, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []domain.AssetSlot
	for ref, slot := range r.db.slots {
		if ref.OwnerID == ownerID {
			out = append(out, slot)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		return out[i].SubType < out[j].SubType
	})
	return out, nil
}

func sameInstant(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

func (r memSlots) CommitPointer(_ context.Context, ref domain.SlotRef, key string, changedAt, expected *time.Time) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	slot, ok := r.db.slots[ref]
	if !ok || !sameInstant(slot.LastChangedAt, expected) {
		return repository.ErrStaleWrite
	}
	slot.CurrentKey = &key
	if changedAt != nil {
		at := *changedAt
		slot.LastChangedAt = &at
	}
	slot.UpdatedAt = r.db.now()
	r.db.slots[ref] = slot
	return nil
}

func (r memSlots) SetCurrentKey(_ context.Context, ref domain.SlotRef, key string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	slot, ok := r.db.slots[ref]
	if !ok {
		return repository.ErrNotFound
	}
	slot.CurrentKey = &key
	r.db.slots[ref] = slot
	return nil
}

func (r memSlots) DeleteOwner(_ context.Context, ownerID string) (int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var n int64
	for ref := range r.db.slots {
		if ref.OwnerID == ownerID {
			delete(r.db.slots, ref)
			n++
		}
	}
	kept := r.db.archives[:0]
	for _, e := range r.db.archives {
		if e.OwnerID != ownerID {
			kept = append(kept, e)
		}
	}
	r.db.archives = kept
	return n, nil
}

// setLastChanged имитирует параллельную фиксацию в обход блокировки
func (r memSlots) setLastChanged(ref domain.SlotRef, at time.Time) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	slot := r.db.slots[ref]
	slot.LastChangedAt = &at
	r.db.slots[ref] = slot
}

func (r memArchives) Create(_ context.Context, entry *domain.ArchiveEntry) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	ref := domain.SlotRef{OwnerID: entry.OwnerID, Kind: entry.Kind, SubType: entry.SubType}
	if _, ok := r.db.slots[ref]; !ok {
		return errors.New("foreign key violation")
	}
	for _, e := range r.db.archives {
		if e.ObjectKey == entry.ObjectKey {
			return errors.New("duplicate object key")
		}
	}
	r.db.nextID++
	entry.ID = r.db.nextID
	r.db.archives = append(r.db.archives, *entry)
	return nil
}

func (r memArchives) sorted(match func(domain.ArchiveEntry) bool) []domain.ArchiveEntry {
	var out []domain.ArchiveEntry
	for _, e := range r.db.archives {
		if match(e) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

func matchRef(ref domain.SlotRef) func(domain.ArchiveEntry) bool {
	return func(e domain.ArchiveEntry) bool {
		return e.OwnerID == ref.OwnerID && e.Kind == ref.Kind && e.SubType == ref.SubType
	}
}

func (r memArchives) Latest(_ context.Context, ref domain.SlotRef) (*domain.ArchiveEntry, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	entries := r.sorted(matchRef(ref))
	if len(entries) == 0 {
		return nil, repository.ErrNotFound
	}
	return &entries[0], nil
}

func (r memArchives) List(_ context.Context, ref domain.SlotRef, limit int) ([]domain.ArchiveEntry, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	entries := r.sorted(matchRef(ref))
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

func (r memArchives) Get(_ context.Context, ownerID string, id int64) (*domain.ArchiveEntry, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, e := range r.db.archives {
		if e.ID == id && e.OwnerID == ownerID {
			return &e, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r memArchives) Delete(_ context.Context, ownerID string, id int64) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for i, e := range r.db.archives {
		if e.ID == id && e.OwnerID == ownerID {
			r.db.archives = append(r.db.archives[:i], r.db.archives[i+1:]...)
			return nil
		}
	}
	return repository.ErrNotFound
}

func (r memArchives) ListByOwner(_ context.Context, ownerID string) ([]domain.ArchiveEntry, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	return r.sorted(func(e domain.ArchiveEntry) bool { return e.OwnerID == ownerID }), nil
}

func (r memArchives) count() int {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	return len(r.db.archives)
}

func (r memUploads) Create(_ context.Context, s *domain.UploadSession) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	r.db.uploads[s.ID] = *s
	return nil
}

func (r memUploads) Get(_ context.Context, ownerID string, id uuid.UUID) (*domain.UploadSession, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	s, ok := r.db.uploads[id]
	if !ok || s.OwnerID != ownerID {
		return nil, repository.ErrNotFound
	}
	return &s, nil
}

func (r memUploads) Transition(_ context.Context, id uuid.UUID, from, to domain.UploadStatus, at time.Time) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	s, ok := r.db.uploads[id]
	if !ok || s.Status != from {
		return repository.ErrStaleWrite
	}
	s.Status = to
	s.CompletedAt = &at
	r.db.uploads[id] = s
	return nil
}

func (r memUploads) ListExpired(_ context.Context, now time.Time, limit int) ([]domain.UploadSession, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []domain.UploadSession
	for _, s := range r.db.uploads {
		if s.Status == domain.UploadPending && !s.ExpiresAt.After(now) {
			out = append(out, s)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r memUploads) ListPendingByOwner(_ context.Context, ownerID string) ([]domain.UploadSession, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []domain.UploadSession
	for _, s := range r.db.uploads {
		if s.OwnerID == ownerID && s.Status == domain.UploadPending {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r memUploads) ListClosed(_ context.Context, before time.Time, limit int) ([]domain.UploadSession, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []domain.UploadSession
	for _, s := range r.db.uploads {
		if s.Status != domain.UploadPending && !s.ExpiresAt.After(before) {
			out = append(out, s)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r memUploads) Delete(_ context.Context, id uuid.UUID) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	s, ok := r.db.uploads[id]
	if !ok || s.Status == domain.UploadPending {
		return repository.ErrNotFound
	}
	delete(r.db.uploads, id)
	return nil
}

func (r memUploads) exists(id uuid.UUID) bool {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	_, ok := r.db.uploads[id]
	return ok
}

func (r memUploads) status(id uuid.UUID) domain.UploadStatus {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	return r.db.uploads[id].Status
}

type publishedMsg struct {
	topic   string
	payload []byte
	subject string
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []publishedMsg
	err  error
}

func (p *fakePublisher) Publish(_ context.Context, topic string, payload []byte, subject string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, publishedMsg{topic: topic, payload: payload, subject: subject})
	return nil
}
