package blob

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()

	data := []byte("hello")
	if err := m.Put(ctx, "t1/fil-1", "text/plain", data); err != nil {
		t.Fatalf("Put: %v", err)
	}
	data[0] = 'j' // stored copy is independent of the caller's slice

	got, err := m.Get(ctx, "t1/fil-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != "hello" {
		t.Errorf("Get = %q, want %q", got, "hello")
	}

	if _, err := m.Get(ctx, "t1/missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(missing) error = %v, want ErrNotFound", err)
	}
}

// fakeS3 serves path-style PutObject and GetObject requests.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string]string
	types   map[string]string
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch r.Method {
	case http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		f.objects[r.URL.Path] = string(body)
		f.types[r.URL.Path] = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusOK)
	case http.MethodGet:
		body, ok := f.objects[r.URL.Path]
		if !ok {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>missing</Message></Error>`)
			return
		}
		w.Header().Set("Content-Type", f.types[r.URL.Path])
		_, _ = io.WriteString(w, body)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func TestS3Store_PutGet(t *testing.T) {
	fake := &fakeS3{objects: map[string]string{}, types: map[string]string{}}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	client := s3.New(s3.Options{
		Region:                     "us-east-1",
		BaseEndpoint:               aws.String(srv.URL),
		UsePathStyle:               true,
		Credentials:                aws.AnonymousCredentials{},
		RequestChecksumCalculation: aws.RequestChecksumCalculationWhenRequired,
		ResponseChecksumValidation: aws.ResponseChecksumValidationWhenRequired,
	})
	st := newS3Store(client, "files-bucket", "files")
	ctx := context.Background()

	if err := st.Put(ctx, "t1/fil-1", "model/stl", []byte("solid cube")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if got := fake.objects["/files-bucket/files/t1/fil-1"]; got != "solid cube" {
		t.Errorf("stored object = %q, keys = %v", got, fake.objects)
	}
	if ct := fake.types["/files-bucket/files/t1/fil-1"]; !strings.HasPrefix(ct, "model/stl") {
		t.Errorf("content type = %q", ct)
	}

	got, err := st.Get(ctx, "t1/fil-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != "solid cube" {
		t.Errorf("Get = %q", got)
	}

	if _, err := st.Get(ctx, "t1/missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(missing) error = %v, want ErrNotFound", err)
	}
}

func TestMemoryStore_ImplementsStore(t *testing.T) {
	var _ Store = (*MemoryStore)(nil)
	var _ Store = (*S3Store)(nil)
}
