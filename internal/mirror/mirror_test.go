package mirror_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"coursedrop/internal/classify"
	"coursedrop/internal/config"
	"coursedrop/internal/mirror"
)

func TestNewReturnsNoopWhenDisabled(t *testing.T) {
	cfg := config.Default()
	m, err := mirror.New(&cfg)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	if m.Enabled() {
		t.Fatal("expected disabled mirror")
	}
	key, err := m.Upload(context.Background(), classify.Match{Filename: "a_1st_CW.txt", Year: "1st", Category: "CW"}, "/nonexistent")
	if err != nil || key != "" {
		t.Fatalf("expected noop upload, got key=%q err=%v", key, err)
	}
}

func TestNewS3ValidatesSettings(t *testing.T) {
	base := config.Mirror{Endpoint: "localhost:9000", AccessKey: "a", SecretKey: "s", Bucket: "coursedrop"}
	tests := []struct {
		name   string
		mutate func(*config.Mirror)
		want   string
	}{
		{name: "endpoint", mutate: func(m *config.Mirror) { m.Endpoint = " " }, want: "endpoint"},
		{name: "credentials", mutate: func(m *config.Mirror) { m.SecretKey = "" }, want: "secret key"},
		{name: "bucket", mutate: func(m *config.Mirror) { m.Bucket = "" }, want: "bucket"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base
			tc.mutate(&cfg)
			_, err := mirror.NewS3(cfg)
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error mentioning %q, got %v", tc.want, err)
			}
		})
	}

	m, err := mirror.NewS3(base)
	if err != nil {
		t.Fatalf("NewS3 returned error: %v", err)
	}
	if !m.Enabled() || m.Bucket() != "coursedrop" {
		t.Fatalf("unexpected mirror state: enabled=%v bucket=%q", m.Enabled(), m.Bucket())
	}
}

func TestObjectKeyMirrorsTree(t *testing.T) {
	key := mirror.ObjectKey(classify.Match{Filename: "essay 2nd CW.docx", Year: "2nd", Category: classify.Coursework})
	if key != "CW/2nd/essay 2nd CW.docx" {
		t.Fatalf("unexpected key: %q", key)
	}
}

// fakeS3 answers the bucket HEAD with 403 until denyHeads runs out, then
// accepts everything and records PUT bodies by path.
type fakeS3 struct {
	mu        sync.Mutex
	denyHeads int
	heads     int
	puts      map[string]string
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch r.Method {
	case http.MethodHead:
		f.heads++
		if f.heads <= f.denyHeads {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.WriteHeader(http.StatusOK)
	case http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		f.puts[r.URL.Path] = string(body)
		w.Header().Set("ETag", `"0123456789abcdef0123456789abcdef"`)
		w.WriteHeader(http.StatusOK)
	default:
		w.WriteHeader(http.StatusOK)
	}
}

func TestUploadRetriesBucketCheckAfterFailure(t *testing.T) {
	fake := &fakeS3{denyHeads: 1, puts: map[string]string{}}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	m, err := mirror.NewS3(config.Mirror{
		Endpoint:  strings.TrimPrefix(srv.URL, "http://"),
		AccessKey: "access",
		SecretKey: "secret",
		Bucket:    "coursedrop",
		Region:    "us-east-1",
	})
	if err != nil {
		t.Fatalf("NewS3 returned error: %v", err)
	}

	local := filepath.Join(t.TempDir(), "essay 2nd CW.docx")
	if err := os.WriteFile(local, []byte("essay"), 0o644); err != nil {
		t.Fatalf("write local file: %v", err)
	}
	match := classify.Match{Filename: "essay 2nd CW.docx", Year: "2nd", Category: classify.Coursework}

	if _, err := m.Upload(context.Background(), match, local); err == nil {
		t.Fatal("expected first upload to fail on denied bucket check")
	}
	key, err := m.Upload(context.Background(), match, local)
	if err != nil {
		t.Fatalf("expected second upload to recheck the bucket and succeed, got %v", err)
	}
	if key != "CW/2nd/essay 2nd CW.docx" {
		t.Fatalf("unexpected key: %q", key)
	}
	if _, err := m.Upload(context.Background(), match, local); err != nil {
		t.Fatalf("third upload: %v", err)
	}

	fake.mu.Lock()
	defer fake.mu.Unlock()
	if fake.heads != 2 {
		t.Fatalf("expected bucket check to run until it succeeded once, got %d checks", fake.heads)
	}
	if got := fake.puts["/coursedrop/CW/2nd/essay 2nd CW.docx"]; got != "essay" {
		t.Fatalf("unexpected uploaded body %q (puts=%v)", got, fake.puts)
	}
}
