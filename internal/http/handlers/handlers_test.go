package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"bargen/internal/http/handlers"
	"bargen/internal/http/httpapi"
	"bargen/internal/infra"
	"bargen/internal/providers/barcodeapi"
	"bargen/internal/validate"
)

type stubGen struct {
	fn func(ctx context.Context, req validate.Request) (*barcodeapi.Artifact, error)
}

func (s *stubGen) Generate(ctx context.Context, req validate.Request) (*barcodeapi.Artifact, error) {
	return s.fn(ctx, req)
}

func newTestServer(t *testing.T, gen *stubGen) *httptest.Server {
	t.Helper()
	cfg := &infra.Config{
		AppEnv:      "test",
		BulkMaxRows: 100,
		BulkWorkers: 2,
	}
	app := handlers.NewApp(cfg, zerolog.Nop(), gen)
	srv := httptest.NewServer(httpapi.NewRouter(app))
	t.Cleanup(srv.Close)
	return srv
}

func decodeJSON(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func pollState(t *testing.T, srv *httptest.Server, session string) map[string]any {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		req, _ := http.NewRequest(http.MethodGet, srv.URL+"/v1/generate", nil)
		req.Header.Set("X-Session-ID", session)
		resp, err := srv.Client().Do(req)
		if err != nil {
			t.Fatalf("poll state: %v", err)
		}
		var body map[string]any
		decodeJSON(t, resp, &body)
		if state, _ := body["state"].(string); state != "pending" && state != "validating" {
			return body
		}
		if time.Now().After(deadline) {
			t.Fatalf("generation did not settle, last state: %v", body["state"])
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestGenerateLifecycleOverHTTP(t *testing.T) {
	gen := &stubGen{fn: func(ctx context.Context, req validate.Request) (*barcodeapi.Artifact, error) {
		return &barcodeapi.Artifact{
			URL:  "https://img.example/out.png",
			Data: []byte{0x89, 'P', 'N', 'G'},
			MIME: "image/png",
		}, nil
	}}
	srv := newTestServer(t, gen)

	payload := `{"symbology":"code128","data":"HELLO-123","format":"png"}`
	resp, err := srv.Client().Post(srv.URL+"/v1/generate", "application/json", strings.NewReader(payload))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}
	session := resp.Header.Get("X-Session-ID")
	if session == "" {
		t.Fatalf("expected a session id")
	}
	var body map[string]any
	decodeJSON(t, resp, &body)
	if body["state"] != "pending" {
		t.Fatalf("state = %v, want pending", body["state"])
	}

	final := pollState(t, srv, session)
	if final["state"] != "success" {
		t.Fatalf("final state = %v, want success", final["state"])
	}
	if final["image_url"] != "https://img.example/out.png" {
		t.Fatalf("image_url = %v", final["image_url"])
	}
	if final["copy_payload"] != "https://img.example/out.png" {
		t.Fatalf("copy_payload = %v", final["copy_payload"])
	}

	// Download the artifact bytes.
	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/v1/generate/download", nil)
	req.Header.Set("X-Session-ID", session)
	dl, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	defer dl.Body.Close()
	if dl.StatusCode != http.StatusOK {
		t.Fatalf("download status = %d", dl.StatusCode)
	}
	if got := dl.Header.Get("Content-Type"); got != "image/png" {
		t.Fatalf("download content type = %q", got)
	}
	if cd := dl.Header.Get("Content-Disposition"); !strings.Contains(cd, "code128-HELLO-123.png") {
		t.Fatalf("content disposition = %q", cd)
	}
}

func TestGenerateValidationFailure(t *testing.T) {
	gen := &stubGen{fn: func(ctx context.Context, req validate.Request) (*barcodeapi.Artifact, error) {
		t.Errorf("generator must not be called")
		return nil, errors.New("unreachable")
	}}
	srv := newTestServer(t, gen)

	payload := `{"symbology":"ean13","data":"1234567890123","format":"png"}`
	resp, err := srv.Client().Post(srv.URL+"/v1/generate", "application/json", strings.NewReader(payload))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", resp.StatusCode)
	}
	var body map[string]any
	decodeJSON(t, resp, &body)
	if body["state"] != "failed" {
		t.Fatalf("state = %v, want failed", body["state"])
	}
	if body["validation_reason"] != "data_too_long" {
		t.Fatalf("validation_reason = %v", body["validation_reason"])
	}
}

func TestGenerateRateLimitedDistinctState(t *testing.T) {
	gen := &stubGen{fn: func(ctx context.Context, req validate.Request) (*barcodeapi.Artifact, error) {
		return nil, &barcodeapi.RateLimitError{RetryAfter: time.Minute}
	}}
	srv := newTestServer(t, gen)

	resp, err := srv.Client().Post(srv.URL+"/v1/generate", "application/json",
		strings.NewReader(`{"symbology":"qr","data":"x","format":"png"}`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	session := resp.Header.Get("X-Session-ID")
	resp.Body.Close()

	final := pollState(t, srv, session)
	if final["state"] != "rate_limited" {
		t.Fatalf("state = %v, want rate_limited", final["state"])
	}
	if final["retry_after"] != "1m0s" {
		t.Fatalf("retry_after = %v", final["retry_after"])
	}
}

func TestRegistryEndpoint(t *testing.T) {
	srv := newTestServer(t, &stubGen{fn: func(ctx context.Context, req validate.Request) (*barcodeapi.Artifact, error) {
		return nil, errors.New("unused")
	}})

	resp, err := srv.Client().Get(srv.URL + "/v1/registry")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	var body struct {
		Symbologies []struct {
			Name  string `json:"name"`
			Limit int    `json:"limit"`
		} `json:"symbologies"`
		Formats []string `json:"formats"`
	}
	decodeJSON(t, resp, &body)

	limits := make(map[string]int)
	for _, s := range body.Symbologies {
		limits[s.Name] = s.Limit
	}
	if limits["ean13"] != 12 {
		t.Fatalf("ean13 limit = %d, want 12", limits["ean13"])
	}
	if _, ok := limits["code128"]; !ok {
		t.Fatalf("code128 missing from registry")
	}
	if limits["code128"] != 0 {
		t.Fatalf("code128 limit = %d, want omitted", limits["code128"])
	}
	if len(body.Formats) != 3 {
		t.Fatalf("formats = %v", body.Formats)
	}
}

func uploadBulk(t *testing.T, srv *httptest.Server, csv, symbology, format string) map[string]any {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "rows.csv")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := fw.Write([]byte(csv)); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	_ = mw.WriteField("symbology", symbology)
	_ = mw.WriteField("format", format)
	_ = mw.Close()

	resp, err := srv.Client().Post(srv.URL+"/v1/bulk", mw.FormDataContentType(), &buf)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	var body map[string]any
	decodeJSON(t, resp, &body)
	body["_status"] = resp.StatusCode
	return body
}

func TestBulkUploadSubmitArchive(t *testing.T) {
	gen := &stubGen{fn: func(ctx context.Context, req validate.Request) (*barcodeapi.Artifact, error) {
		return &barcodeapi.Artifact{URL: "https://img.example/" + req.Data + ".png", Data: []byte(req.Data)}, nil
	}}
	srv := newTestServer(t, gen)

	body := uploadBulk(t, srv, "data,filename\n12345678901,a\n,b\n", "ean13", "png")
	if body["_status"] != http.StatusCreated {
		t.Fatalf("upload status = %v, want 201", body["_status"])
	}
	if body["valid"].(float64) != 1 || body["total"].(float64) != 2 {
		t.Fatalf("valid/total = %v/%v, want 1/2", body["valid"], body["total"])
	}
	batchID, _ := body["batch_id"].(string)
	if batchID == "" {
		t.Fatalf("missing batch id")
	}
	rows := body["rows"].([]any)
	second := rows[1].(map[string]any)
	if second["valid"].(bool) {
		t.Fatalf("empty row should be marked invalid")
	}

	// Submission is a separate, explicit step.
	resp, err := srv.Client().Post(srv.URL+"/v1/bulk/"+batchID+"/submit", "application/json", nil)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	var submitted map[string]any
	decodeJSON(t, resp, &submitted)
	outcomes := submitted["rows"].([]any)
	first := outcomes[0].(map[string]any)
	if first["status"] != "succeeded" {
		t.Fatalf("row 1 status = %v", first["status"])
	}
	if outcomes[1].(map[string]any)["status"] != "invalid" {
		t.Fatalf("row 2 status = %v", outcomes[1].(map[string]any)["status"])
	}

	archive, err := srv.Client().Get(srv.URL + "/v1/bulk/" + batchID + "/archive")
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	defer archive.Body.Close()
	if archive.StatusCode != http.StatusOK {
		t.Fatalf("archive status = %d", archive.StatusCode)
	}
	if got := archive.Header.Get("Content-Type"); got != "application/zip" {
		t.Fatalf("archive content type = %q", got)
	}
}

func TestBulkUploadMissingDataColumn(t *testing.T) {
	srv := newTestServer(t, &stubGen{fn: func(ctx context.Context, req validate.Request) (*barcodeapi.Artifact, error) {
		return nil, errors.New("unused")
	}})

	body := uploadBulk(t, srv, "name,filename\nx,y\n", "ean13", "png")
	if body["_status"] != http.StatusUnprocessableEntity {
		t.Fatalf("status = %v, want 422", body["_status"])
	}
	if body["error"] != "missing_data_column" {
		t.Fatalf("error = %v, want missing_data_column", body["error"])
	}
}

func TestBulkUnknownBatch(t *testing.T) {
	srv := newTestServer(t, &stubGen{fn: func(ctx context.Context, req validate.Request) (*barcodeapi.Artifact, error) {
		return nil, errors.New("unused")
	}})

	resp, err := srv.Client().Post(srv.URL+"/v1/bulk/nope/submit", "application/json", nil)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}
