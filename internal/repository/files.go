package repository

import (
	"context"
	"errors"
	"fmt"
	"path"

	"github.com/chriskuech/supplyside-sub001/internal/idgen"
	"github.com/chriskuech/supplyside-sub001/internal/model"
)

// ErrNoBlobStore is returned by file operations when no blob store is
// configured.
var ErrNoBlobStore = errors.New("no blob store configured")

// UploadFile stores file content and records its metadata. Values refer
// to the returned File by ID.
func (r *Repository) UploadFile(ctx context.Context, tenantID, name, contentType string, data []byte) (*model.File, error) {
	if r.blobs == nil {
		return nil, ErrNoBlobStore
	}
	if name == "" {
		ve := &model.ValidationError{}
		ve.Add("name", "is required")
		return nil, ve
	}
	id, err := idgen.New(idgen.File)
	if err != nil {
		return nil, err
	}
	f := &model.File{
		ID:          id,
		TenantID:    tenantID,
		Name:        name,
		ContentType: contentType,
		BlobKey:     path.Join(tenantID, id),
		CreatedAt:   r.now(),
	}
	if err := r.blobs.Put(ctx, f.BlobKey, contentType, data); err != nil {
		return nil, fmt.Errorf("store %s: %w", name, err)
	}
	if err := r.store.CreateFile(ctx, f); err != nil {
		return nil, fmt.Errorf("create file: %w", err)
	}
	r.logger.Info("file uploaded", "tenant", tenantID, "file_id", id, "content_type", contentType, "bytes", len(data))
	return f, nil
}

// GetFile returns file metadata.
func (r *Repository) GetFile(ctx context.Context, tenantID, id string) (*model.File, error) {
	f, err := r.store.GetFile(ctx, tenantID, id)
	if err != nil {
		return nil, notFound(err, "file %s", id)
	}
	return f, nil
}

// FetchFile returns file metadata and content.
func (r *Repository) FetchFile(ctx context.Context, tenantID, id string) (*model.File, []byte, error) {
	if r.blobs == nil {
		return nil, nil, ErrNoBlobStore
	}
	f, err := r.GetFile(ctx, tenantID, id)
	if err != nil {
		return nil, nil, err
	}
	data, err := r.blobs.Get(ctx, f.BlobKey)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch %s: %w", id, err)
	}
	return f, data, nil
}
