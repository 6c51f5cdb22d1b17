package server_test

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"coursedrop/internal/config"
	"coursedrop/internal/history"
	"coursedrop/internal/logging"
	"coursedrop/internal/placer"
	"coursedrop/internal/receiver"
	"coursedrop/internal/server"
	"coursedrop/internal/testsupport"
)

type harness struct {
	cfg    *config.Config
	store  *history.Store
	server *httptest.Server
	client *http.Client
}

func newHarness(t *testing.T, opts ...testsupport.ConfigOption) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	store := testsupport.MustOpenHistory(t, cfg)
	pipeline := receiver.New(cfg, placer.New(cfg, logging.NewNop()), logging.NewNop(), receiver.WithRecorder(store))
	srv := httptest.NewServer(server.New(cfg, pipeline, store, logging.NewNop()).Handler())
	t.Cleanup(srv.Close)

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookiejar: %v", err)
	}
	return &harness{cfg: cfg, store: store, server: srv, client: &http.Client{Jar: jar}}
}

func multipartBody(t *testing.T, field, filename, content string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if field != "" {
		part, err := mw.CreateFormFile(field, filename)
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		_, _ = io.WriteString(part, content)
	} else {
		_ = mw.WriteField("comment", "no file here")
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	return &buf, mw.FormDataContentType()
}

func (h *harness) postAPI(t *testing.T, field, filename, content string) (int, server.UploadResponse) {
	t.Helper()
	body, contentType := multipartBody(t, field, filename, content)
	resp, err := h.client.Post(h.server.URL+"/api/upload", contentType, body)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	var payload server.UploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp.StatusCode, payload
}

func TestAPIUploadPlacesFile(t *testing.T) {
	h := newHarness(t)
	status, payload := h.postAPI(t, "file", "2nd_CW_essay.docx", "essay")
	if status != http.StatusOK || !payload.Success {
		t.Fatalf("expected success, got %d %+v", status, payload)
	}
	want := filepath.Join(h.cfg.Paths.CourseworkDir, "2nd", "2nd_CW_essay.docx")
	if payload.Destination != want {
		t.Fatalf("unexpected destination: got %q want %q", payload.Destination, want)
	}
	if payload.Message != "File successfully moved to "+want {
		t.Fatalf("unexpected message: %q", payload.Message)
	}
	if payload.RequestID == "" {
		t.Fatal("expected request id")
	}
	if got := testsupport.ReadText(t, want); got != "essay" {
		t.Fatalf("unexpected content: %q", got)
	}
}

func TestAPIUploadRejections(t *testing.T) {
	tests := []struct {
		name     string
		field    string
		filename string
		status   int
		reason   string
		message  string
	}{
		{name: "missing part", field: "", status: http.StatusBadRequest, reason: "missing_file_part", message: "No file part"},
		{name: "wrong field", field: "document", filename: "a_1st_CW.txt", status: http.StatusBadRequest, reason: "missing_file_part", message: "No file part"},
		{name: "empty filename", field: "file", filename: "", status: http.StatusBadRequest, reason: "empty_filename", message: "No selected file"},
		{name: "no year", field: "file", filename: "report.pdf", status: http.StatusBadRequest, reason: "no_year_match", message: "Invalid file name"},
		{name: "no category", field: "file", filename: "report_1st.pdf", status: http.StatusBadRequest, reason: "no_category_match", message: "Invalid file name"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			status, payload := h.postAPI(t, tc.field, tc.filename, "data")
			if status != tc.status || payload.Success {
				t.Fatalf("expected %d failure, got %d %+v", tc.status, status, payload)
			}
			if payload.Reason != tc.reason {
				t.Fatalf("expected reason %q, got %q", tc.reason, payload.Reason)
			}
			if !strings.HasPrefix(payload.Message, tc.message) {
				t.Fatalf("expected message starting %q, got %q", tc.message, payload.Message)
			}
			entries := testsupport.MustListHistory(t, h.store)
			if len(entries) != 1 || entries[0].Outcome != history.OutcomeRejected {
				t.Fatalf("expected one rejected ledger row, got %+v", entries)
			}
		})
	}
}

func TestAPIUploadDestinationMissingIsServerError(t *testing.T) {
	h := newHarness(t, testsupport.WithoutDirectories())
	status, payload := h.postAPI(t, "file", "x_3rd_SW.txt", "x")
	if status != http.StatusInternalServerError || payload.Reason != "destination_missing" {
		t.Fatalf("expected 500 destination_missing, got %d %+v", status, payload)
	}
	if got := testsupport.ReadText(t, filepath.Join(h.cfg.Paths.StagingDir, "x_3rd_SW.txt")); got != "x" {
		t.Fatalf("expected file left in staging, got %q", got)
	}
}

func TestAPIUploadTooLarge(t *testing.T) {
	h := newHarness(t)
	h.cfg.Server.MaxUploadMB = 1
	status, payload := h.postAPI(t, "file", "big_1st_CW.bin", strings.Repeat("x", (1<<20)+4096))
	if status != http.StatusRequestEntityTooLarge || payload.Success {
		t.Fatalf("expected 413, got %d %+v", status, payload)
	}
	if !strings.Contains(payload.Message, "1 MB") {
		t.Fatalf("unexpected message: %q", payload.Message)
	}
}

func TestFormUploadRedirectsWithFlash(t *testing.T) {
	h := newHarness(t)
	body, contentType := multipartBody(t, "file", "notes_4th_SW.md", "notes")
	resp, err := h.client.Post(h.server.URL+"/upload", contentType, body)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	page, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK || resp.Request.URL.Path != "/" {
		t.Fatalf("expected redirect to index, got %d at %s", resp.StatusCode, resp.Request.URL.Path)
	}
	if !strings.Contains(string(page), "File successfully moved to") {
		t.Fatalf("expected success flash on index page, got:\n%s", page)
	}
	if !strings.Contains(string(page), "notes_4th_SW.md") {
		t.Fatal("expected recent upload listed on index page")
	}

	again, err := h.client.Get(h.server.URL + "/")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	second, _ := io.ReadAll(again.Body)
	again.Body.Close()
	if strings.Contains(string(second), "File successfully moved to") {
		t.Fatal("expected flash to be consumed after first render")
	}
}

func TestFormUploadFailureFlash(t *testing.T) {
	h := newHarness(t)
	client := &http.Client{
		Jar: h.client.Jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	body, contentType := multipartBody(t, "file", "report.pdf", "pdf")
	resp, err := client.Post(h.server.URL+"/upload", contentType, body)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusSeeOther || resp.Header.Get("Location") != "/" {
		t.Fatalf("expected 303 to /, got %d %q", resp.StatusCode, resp.Header.Get("Location"))
	}

	index, err := h.client.Get(h.server.URL + "/")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	page, _ := io.ReadAll(index.Body)
	index.Body.Close()
	if !strings.Contains(string(page), "Invalid file name") {
		t.Fatalf("expected failure flash, got:\n%s", page)
	}
}

func TestTamperedFlashIsIgnored(t *testing.T) {
	h := newHarness(t)
	req, _ := http.NewRequest(http.MethodGet, h.server.URL+"/", nil)
	req.AddCookie(&http.Cookie{Name: "coursedrop_flash", Value: "W3sic3VjY2VzcyI6dHJ1ZSwibWVzc2FnZSI6ImhhY2tlZCJ9XQ.bm90LWEtc2ln"})
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	page, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if strings.Contains(string(page), "hacked") {
		t.Fatal("unsigned flash must not be rendered")
	}
}

func TestUploadsAndStatusEndpoints(t *testing.T) {
	h := newHarness(t)
	h.postAPI(t, "file", "a_1st_CW.txt", "a")
	h.postAPI(t, "file", "b.txt", "b")

	resp, err := h.client.Get(h.server.URL + "/api/uploads?outcome=rejected")
	if err != nil {
		t.Fatalf("get uploads: %v", err)
	}
	var uploads server.UploadsResponse
	if err := json.NewDecoder(resp.Body).Decode(&uploads); err != nil {
		t.Fatalf("decode uploads: %v", err)
	}
	resp.Body.Close()
	if len(uploads.Uploads) != 1 || uploads.Uploads[0].Filename != "b.txt" {
		t.Fatalf("unexpected uploads: %+v", uploads.Uploads)
	}

	bad, err := h.client.Get(h.server.URL + "/api/uploads?limit=zero")
	if err != nil {
		t.Fatalf("get bad limit: %v", err)
	}
	bad.Body.Close()
	if bad.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad limit, got %d", bad.StatusCode)
	}

	statusResp, err := h.client.Get(h.server.URL + "/api/status")
	if err != nil {
		t.Fatalf("get status: %v", err)
	}
	var status server.StatusResponse
	if err := json.NewDecoder(statusResp.Body).Decode(&status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	statusResp.Body.Close()
	if status.History == nil || status.History.Placed != 1 || status.History.Rejected != 1 {
		t.Fatalf("unexpected history stats: %+v", status.History)
	}
	if status.StagedFiles != 1 {
		t.Fatalf("expected the rejected file to remain staged, got %d", status.StagedFiles)
	}
	if status.Roots["CW"] != h.cfg.Paths.CourseworkDir || len(status.Years) != 4 {
		t.Fatalf("unexpected status payload: %+v", status)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	h := newHarness(t)
	resp, err := h.client.Get(h.server.URL + "/upload")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", resp.StatusCode)
	}
}

func TestAPIUploadRateLimitedPerClient(t *testing.T) {
	h := newHarness(t, testsupport.WithUploadLimit(1, 1))

	status, resp := h.postAPI(t, "file", "Essay 1st CW.docx", "one")
	if status != http.StatusOK || !resp.Success {
		t.Fatalf("expected first upload to succeed, got %d %+v", status, resp)
	}

	status, resp = h.postAPI(t, "file", "Essay 2nd CW.docx", "two")
	if status != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", status)
	}
	if resp.Reason != "rate_limited" || resp.Success {
		t.Fatalf("unexpected rate limit payload: %+v", resp)
	}
	testsupport.AssertMissing(t, filepath.Join(h.cfg.Paths.CourseworkDir, "2nd", "Essay 2nd CW.docx"))

	if got := len(testsupport.MustListHistory(t, h.store)); got != 1 {
		t.Fatalf("expected rate limited upload to stay out of history, got %d entries", got)
	}
}
