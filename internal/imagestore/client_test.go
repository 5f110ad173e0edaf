package imagestore

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClientUpload(t *testing.T) {
	var gotPath, gotAuth, gotType string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotType = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{
		BaseURL:   srv.URL,
		PublicURL: "https://cdn.example.com",
		Bucket:    "memes",
		AuthToken: "secret",
	})

	url, err := c.Upload(context.Background(), "abc.png", "image/png", []byte("img-bytes"))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if url != "https://cdn.example.com/memes/abc.png" {
		t.Fatalf("url = %q", url)
	}
	if gotPath != "/object/memes/abc.png" {
		t.Fatalf("path = %q", gotPath)
	}
	if gotAuth != "Bearer secret" {
		t.Fatalf("auth = %q", gotAuth)
	}
	if gotType != "image/png" {
		t.Fatalf("content type = %q", gotType)
	}
	if string(gotBody) != "img-bytes" {
		t.Fatalf("body = %q", gotBody)
	}
}

func TestClientUploadErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "denied", http.StatusForbidden)
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{BaseURL: srv.URL, Bucket: "memes"})
	if _, err := c.Upload(context.Background(), "a.png", "image/png", []byte("x")); err == nil {
		t.Fatal("expected error on 403")
	}
}

func TestMemoryUploader(t *testing.T) {
	m := NewMemory()

	url, err := m.Upload(context.Background(), "k.png", "image/png", []byte("data"))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if url != "mem://k.png" {
		t.Fatalf("url = %q", url)
	}
	got, ok := m.Get("k.png")
	if !ok || string(got) != "data" {
		t.Fatalf("get = %q, %v", got, ok)
	}
}
