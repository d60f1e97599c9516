package pinata

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/certikapp/certik-backend/pkg/config"
	pkgerrors "github.com/certikapp/certik-backend/pkg/errors"
)

func testConfig(baseURL string) config.PinataConfig {
	return config.PinataConfig{
		JWT:     "test-jwt",
		BaseURL: baseURL,
		Gateway: baseURL + "/ipfs",
		Timeout: 5 * time.Second,
	}
}

func pinResponse(w http.ResponseWriter, cid string, duplicate bool) {
	_ = json.NewEncoder(w).Encode(map[string]any{
		"IpfsHash":    cid,
		"PinSize":     int64(2048),
		"Timestamp":   "2025-01-10T12:00:00Z",
		"isDuplicate": duplicate,
	})
}

func TestNewClientRequiresCredentials(t *testing.T) {
	_, err := NewClient(config.PinataConfig{BaseURL: "https://api.pinata.cloud"}, nil)
	if err == nil {
		t.Fatal("expected error without credentials")
	}
	if !pkgerrors.HasCode(err, pkgerrors.CodeConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestPinFileSendsMultipartAndAuth(t *testing.T) {
	var gotAuth, gotOptions, gotMeta string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/pinning/pinFileToIPFS" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse multipart: %v", err)
		}
		gotOptions = r.FormValue("pinataOptions")
		gotMeta = r.FormValue("pinataMetadata")
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("form file: %v", err)
		}
		defer file.Close()
		if header.Filename != "cert.png" {
			t.Errorf("unexpected filename %s", header.Filename)
		}
		if ct := header.Header.Get("Content-Type"); ct != "image/png" {
			t.Errorf("unexpected content type %s", ct)
		}
		pinResponse(w, "bafy-image", false)
	}))
	defer srv.Close()

	client, err := NewClient(testConfig(srv.URL), nil)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	record, err := client.PinFile(context.Background(), FileUpload{
		Name:        "cert.png",
		ContentType: "image/png",
		Content:     strings.NewReader("png-bytes"),
	}, PinMeta{Name: "cert_image_test", KeyValues: map[string]string{"type": "certificate_image"}})
	if err != nil {
		t.Fatalf("PinFile: %v", err)
	}

	if record.CID != "bafy-image" {
		t.Fatalf("unexpected cid %s", record.CID)
	}
	if record.Size != 2048 {
		t.Fatalf("unexpected size %d", record.Size)
	}
	if record.Duplicate {
		t.Fatal("expected non-duplicate")
	}
	if gotAuth != "Bearer test-jwt" {
		t.Fatalf("unexpected auth header %q", gotAuth)
	}
	if !strings.Contains(gotOptions, `"cidVersion":1`) {
		t.Fatalf("expected cidVersion option, got %q", gotOptions)
	}
	if !strings.Contains(gotMeta, "certificate_image") {
		t.Fatalf("expected keyvalues in metadata, got %q", gotMeta)
	}
}

func TestPinFileErrorCarriesStatusAndBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		_, _ = w.Write([]byte("pin quota exceeded"))
	}))
	defer srv.Close()

	client, err := NewClient(testConfig(srv.URL), nil)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	_, err = client.PinFile(context.Background(), FileUpload{
		Name:    "cert.png",
		Content: strings.NewReader("x"),
	}, PinMeta{Name: "n"})
	if err == nil {
		t.Fatal("expected error")
	}
	if !pkgerrors.HasCode(err, pkgerrors.CodeStorage) {
		t.Fatalf("expected storage error, got %v", err)
	}
	if !strings.Contains(err.Error(), "status 402") || !strings.Contains(err.Error(), "pin quota exceeded") {
		t.Fatalf("status and server message must survive, got %q", err.Error())
	}
}

func TestPinJSONSendsWrappedPayload(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/pinning/pinJSONToIPFS" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		pinResponse(w, "bafy-meta", true)
	}))
	defer srv.Close()

	client, err := NewClient(testConfig(srv.URL), nil)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	record, err := client.PinJSON(context.Background(),
		map[string]string{"name": "Intro to Systems"},
		PinMeta{Name: "cert_metadata_test"})
	if err != nil {
		t.Fatalf("PinJSON: %v", err)
	}

	if !record.Duplicate {
		t.Fatal("expected duplicate flag to flow through")
	}
	content, ok := body["pinataContent"].(map[string]any)
	if !ok || content["name"] != "Intro to Systems" {
		t.Fatalf("expected wrapped content, got %v", body)
	}
	if _, ok := body["pinataOptions"]; !ok {
		t.Fatal("expected pinataOptions in payload")
	}
}

func TestUnpin(t *testing.T) {
	var gotMethod, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client, err := NewClient(testConfig(srv.URL), nil)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	if err := client.Unpin(context.Background(), "bafy-old"); err != nil {
		t.Fatalf("Unpin: %v", err)
	}
	if gotMethod != http.MethodDelete || gotPath != "/pinning/unpin/bafy-old" {
		t.Fatalf("unexpected request %s %s", gotMethod, gotPath)
	}
}

func TestTestAuthentication(t *testing.T) {
	status := http.StatusOK
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/data/testAuthentication" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.WriteHeader(status)
	}))
	defer srv.Close()

	client, err := NewClient(testConfig(srv.URL), nil)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	if !client.TestAuthentication(context.Background()) {
		t.Fatal("expected probe to pass on 200")
	}

	status = http.StatusUnauthorized
	if client.TestAuthentication(context.Background()) {
		t.Fatal("expected probe to fail on 401, not error")
	}
}

func TestFetchJSONResolvesScheme(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ipfs/bafy-meta" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"name":"Intro to Systems"}`))
	}))
	defer srv.Close()

	client, err := NewClient(testConfig(srv.URL), nil)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	var doc struct {
		Name string `json:"name"`
	}
	if err := client.FetchJSON(context.Background(), "ipfs://bafy-meta", &doc); err != nil {
		t.Fatalf("FetchJSON: %v", err)
	}
	if doc.Name != "Intro to Systems" {
		t.Fatalf("unexpected doc %+v", doc)
	}
}

func TestURIAndGatewayURL(t *testing.T) {
	client, err := NewClient(testConfig("https://api.example"), nil)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	if got := client.URI("bafy-x"); got != "ipfs://bafy-x" {
		t.Fatalf("unexpected uri %s", got)
	}
	if got := client.GatewayURL("ipfs://bafy-x"); got != "https://api.example/ipfs/bafy-x" {
		t.Fatalf("unexpected gateway url %s", got)
	}
	if got := client.GatewayURL("bafy-x"); got != "https://api.example/ipfs/bafy-x" {
		t.Fatalf("bare cid should resolve, got %s", got)
	}
	if got := client.GatewayURL("https://other.example/doc.json"); got != "https://other.example/doc.json" {
		t.Fatalf("http url should pass through, got %s", got)
	}
}

func TestKeyPairAuthHeaders(t *testing.T) {
	var gotKey, gotSecret string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("pinata_api_key")
		gotSecret = r.Header.Get("pinata_secret_api_key")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client, err := NewClient(config.PinataConfig{
		APIKey:    "key",
		APISecret: "secret",
		BaseURL:   srv.URL,
		Gateway:   srv.URL + "/ipfs",
		Timeout:   time.Second,
	}, nil)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	client.TestAuthentication(context.Background())
	if gotKey != "key" || gotSecret != "secret" {
		t.Fatalf("expected key/secret headers, got %q %q", gotKey, gotSecret)
	}
}
