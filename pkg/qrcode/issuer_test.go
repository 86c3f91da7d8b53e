package qrcode

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"shortlinks/pkg/assets"
	"shortlinks/pkg/logging"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *assets.FileStore {
	t.Helper()
	store, err := assets.NewFileStore(t.TempDir(), "https://sho.rt/qr")
	require.NoError(t, err)
	return store
}

func TestIssuerStoresImage(t *testing.T) {
	var gotSize, gotData string
	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSize = r.URL.Query().Get("size")
		gotData = r.URL.Query().Get("data")
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("\x89PNG fake"))
	}))
	defer provider.Close()

	store := newStore(t)
	issuer := NewIssuer(provider.Client(), store, logging.Discard(), Config{Endpoint: provider.URL + "/v1/create-qr-code/", Size: 200})

	ref := issuer.Issue(context.Background(), "ex1", "https://sho.rt/r/ex1")
	assert.Equal(t, "https://sho.rt/qr/ex1.png", ref)
	assert.Equal(t, "200x200", gotSize)
	assert.Equal(t, "https://sho.rt/r/ex1", gotData)

	data, err := os.ReadFile(filepath.Join(store.Dir(), "ex1.png"))
	require.NoError(t, err)
	assert.Equal(t, "\x89PNG fake", string(data))
}

func TestIssuerFailuresGiveEmptyReference(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "provider error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "boom", http.StatusInternalServerError)
			},
		},
		{
			name: "not an image",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "text/html")
				_, _ = w.Write([]byte("<html></html>"))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := httptest.NewServer(tt.handler)
			defer provider.Close()

			store := newStore(t)
			issuer := NewIssuer(provider.Client(), store, logging.Discard(), Config{Endpoint: provider.URL})

			assert.Empty(t, issuer.Issue(context.Background(), "ex1", "https://sho.rt/r/ex1"))
			assert.NoFileExists(t, filepath.Join(store.Dir(), "ex1.png"))
		})
	}
}

func TestIssuerDiscard(t *testing.T) {
	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("png"))
	}))
	defer provider.Close()

	store := newStore(t)
	issuer := NewIssuer(provider.Client(), store, logging.Discard(), Config{Endpoint: provider.URL})
	ctx := context.Background()

	ref := issuer.Issue(ctx, "ex1", "https://sho.rt/r/ex1")
	require.FileExists(t, filepath.Join(store.Dir(), "ex1.png"))

	issuer.Discard(ctx, ref)
	assert.NoFileExists(t, filepath.Join(store.Dir(), "ex1.png"))

	issuer.Discard(ctx, ref)
	issuer.Discard(ctx, "https://elsewhere.example/qr/ex1.png")
}

func TestIssuerTimesOut(t *testing.T) {
	release := make(chan struct{})
	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer provider.Close()
	defer close(release)

	issuer := NewIssuer(provider.Client(), newStore(t), logging.Discard(), Config{
		Endpoint: provider.URL,
		Timeout:  50 * time.Millisecond,
	})

	start := time.Now()
	assert.Empty(t, issuer.Issue(context.Background(), "ex1", "https://sho.rt/r/ex1"))
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestImageExtension(t *testing.T) {
	tests := []struct {
		contentType string
		want        string
		wantErr     bool
	}{
		{"", ".png", false},
		{"image/png", ".png", false},
		{"image/svg+xml; charset=utf-8", ".svg", false},
		{"image/jpeg", ".jpg", false},
		{"image/webp", ".img", false},
		{"application/json", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.contentType, func(t *testing.T) {
			got, err := imageExtension(tt.contentType)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
