package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/jciecuador/workspace-console/modules/requests/domain/request"
)

// storeDocument is the entire file backend state: one JSON document with
// two ordered collections.
type storeDocument struct {
	Requests    []*request.WorkspaceRequest `json:"requests"`
	AuditEvents []*request.AuditEvent       `json:"audit_events"`
}

// FileStore persists requests and audit events in a single JSON document.
// Every mutation is a whole-document read/modify/write cycle under a
// process mutex, so atomicity holds only within one process. The execution
// lock is a sentinel file next to the document; it carries no expiry, so a
// crashed holder leaves a lock that needs manual removal.
type FileStore struct {
	path string
	mu   sync.Mutex
}

var _ request.Store = (*FileStore)(nil)

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) lockPath() string {
	return s.path + ".lock"
}

func (s *FileStore) read() (*storeDocument, error) {
	raw, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return &storeDocument{}, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "read request store")
	}
	doc := &storeDocument{}
	if err := json.Unmarshal(raw, doc); err != nil {
		return nil, errors.Wrap(err, "decode request store")
	}
	return doc, nil
}

func (s *FileStore) write(doc *storeDocument) error {
	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode request store")
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return errors.Wrap(err, "create store directory")
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return errors.Wrap(err, "write request store")
	}
	return errors.Wrap(os.Rename(tmp, s.path), "replace request store")
}

func (s *FileStore) ListRequests(ctx context.Context) ([]*request.WorkspaceRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return nil, err
	}
	out := make([]*request.WorkspaceRequest, len(doc.Requests))
	copy(out, doc.Requests)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *FileStore) ListAuditEvents(ctx context.Context) ([]*request.AuditEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return nil, err
	}
	out := make([]*request.AuditEvent, len(doc.AuditEvents))
	copy(out, doc.AuditEvents)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *FileStore) GetRequestByID(ctx context.Context, id uuid.UUID) (*request.WorkspaceRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return nil, err
	}
	for _, item := range doc.Requests {
		if item.ID == id {
			clone := *item
			return &clone, nil
		}
	}
	return nil, request.ErrRequestNotFound
}

func (s *FileStore) CreateRequest(ctx context.Context, req *request.WorkspaceRequest) (*request.WorkspaceRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return nil, err
	}
	for _, item := range doc.Requests {
		if item.ID == req.ID {
			return nil, request.ErrDuplicateRequest
		}
	}
	doc.Requests = append(doc.Requests, req)
	if err := s.write(doc); err != nil {
		return nil, err
	}
	return req, nil
}

func (s *FileStore) UpdateRequestByID(ctx context.Context, id uuid.UUID, update request.UpdateFn) (*request.WorkspaceRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return nil, err
	}
	for i, item := range doc.Requests {
		if item.ID != id {
			continue
		}
		next := update(*item)
		doc.Requests[i] = &next
		if err := s.write(doc); err != nil {
			return nil, err
		}
		clone := next
		return &clone, nil
	}
	return nil, request.ErrRequestNotFound
}

func (s *FileStore) DeleteRequestByID(ctx context.Context, id uuid.UUID) (*request.WorkspaceRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return nil, err
	}
	for i, item := range doc.Requests {
		if item.ID != id {
			continue
		}
		doc.Requests = append(doc.Requests[:i], doc.Requests[i+1:]...)
		if err := s.write(doc); err != nil {
			return nil, err
		}
		return item, nil
	}
	return nil, request.ErrRequestNotFound
}

func (s *FileStore) AppendAuditEvent(ctx context.Context, event *request.AuditEvent) (*request.AuditEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return nil, err
	}
	stored := *event
	stored.ID = uuid.New()
	stored.CreatedAt = time.Now().UTC()
	doc.AuditEvents = append(doc.AuditEvents, &stored)
	if err := s.write(doc); err != nil {
		return nil, err
	}
	return &stored, nil
}

func (s *FileStore) WithExecutionLock(ctx context.Context, task func(ctx context.Context) error) error {
	f, err := os.OpenFile(s.lockPath(), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if os.IsExist(err) {
		return request.ErrLockHeld
	}
	if err != nil {
		return errors.Wrap(err, "acquire execution lock")
	}
	// Holder info is informational only, for operators cleaning up after a
	// crashed process.
	fmt.Fprintf(f, "pid=%d acquired_at=%s\n", os.Getpid(), time.Now().UTC().Format(time.RFC3339))
	_ = f.Close()
	defer func() {
		_ = os.Remove(s.lockPath())
	}()

	return task(ctx)
}
