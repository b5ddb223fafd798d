package media

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/alfredjeanlab/wagate/internal/errs"
	"github.com/stretchr/testify/require"
)

func newFileServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /invoice.pdf", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		w.Write([]byte("%PDF-1.4"))
	})
	mux.HandleFunc("GET /logo.png", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte{0x89, 'P', 'N', 'G'})
	})
	mux.HandleFunc("GET /page.html", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html></html>"))
	})
	mux.HandleFunc("GET /big.bin", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Write([]byte(strings.Repeat("x", 64)))
	})
	mux.HandleFunc("GET /broken", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestFetch(t *testing.T) {
	srv := newFileServer(t)
	f := NewHTTPFetcher(0, 32)

	tests := []struct {
		name     string
		path     string
		wantKind errs.Kind
		wantMime string
	}{
		{"pdf", "/invoice.pdf", "", "application/pdf"},
		{"image", "/logo.png", "", "image/png"},
		{"html rejected", "/page.html", errs.KindInvalidAttachment, ""},
		{"missing", "/nope.pdf", errs.KindAttachmentNotFound, ""},
		{"too large", "/big.bin", errs.KindInvalidAttachment, ""},
		{"upstream error", "/broken", errs.KindInternal, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := f.Fetch(context.Background(), srv.URL+tt.path)
			if tt.wantKind != "" {
				require.Error(t, err)
				require.Equal(t, tt.wantKind, errs.KindOf(err))
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.wantMime, m.MimeType)
			require.Equal(t, strings.TrimPrefix(tt.path, "/"), m.Filename)
			require.NotEmpty(t, m.Data)
		})
	}
}

func TestFetch_NotFoundDetail(t *testing.T) {
	srv := newFileServer(t)
	_, err := NewHTTPFetcher(0, 0).Fetch(context.Background(), srv.URL+"/missing")
	require.True(t, IsNotFound(err))
	require.Equal(t, "File not found", errs.DetailOf(err))
}

func TestFetch_InvalidURL(t *testing.T) {
	f := NewHTTPFetcher(0, 0)
	for _, raw := range []string{"", "ftp://example.com/a.pdf", "not a url", "http://"} {
		_, err := f.Fetch(context.Background(), raw)
		require.Truef(t, errs.Is(err, errs.KindValidation), "Fetch(%q) = %v", raw, err)
	}
}

func TestSupported(t *testing.T) {
	require.True(t, Supported("image/jpeg"))
	require.True(t, Supported("application/pdf; charset=binary"))
	require.True(t, Supported(" Application/JSON"))
	require.False(t, Supported("text/plain"))
	require.False(t, Supported("video/mp4"))
	require.False(t, Supported(""))
}

func TestBaseName(t *testing.T) {
	for raw, want := range map[string]string{
		"https://cdn.example.com/files/inv-9.pdf?sig=1": "inv-9.pdf",
		"https://cdn.example.com/":                      "",
		"https://cdn.example.com":                       "",
	} {
		u, err := url.Parse(raw)
		require.NoError(t, err)
		require.Equal(t, want, BaseName(u), raw)
	}
}
