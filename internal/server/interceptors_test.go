package server

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

func okUnary(context.Context, any) (any, error) { return "ok", nil }

func TestAuthInterceptor(t *testing.T) {
	const method = "/wagate.v1.Admin/ListSessions"
	withAuth := func(v string) context.Context {
		return metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", v))
	}
	for _, tc := range []struct {
		name   string
		token  string
		method string
		ctx    context.Context
		want   codes.Code
	}{
		{"auth disabled", "", method, context.Background(), codes.OK},
		{"health exempt", "secret", "/grpc.health.v1.Health/Check", context.Background(), codes.OK},
		{"health watch exempt", "secret", "/grpc.health.v1.Health/Watch", context.Background(), codes.OK},
		{"no metadata", "secret", method, context.Background(), codes.Unauthenticated},
		{"no authorization", "secret", method, metadata.NewIncomingContext(context.Background(), metadata.Pairs("x", "y")), codes.Unauthenticated},
		{"wrong token", "secret", method, withAuth("Bearer wrong"), codes.Unauthenticated},
		{"basic scheme", "secret", method, withAuth("Basic secret"), codes.Unauthenticated},
		{"bearer token", "secret", method, withAuth("Bearer secret"), codes.OK},
	} {
		t.Run(tc.name, func(t *testing.T) {
			resp, err := AuthInterceptor(tc.token)(tc.ctx, nil, &grpc.UnaryServerInfo{FullMethod: tc.method}, okUnary)
			if got := status.Code(err); got != tc.want {
				t.Fatalf("code = %v, want %v (err %v)", got, tc.want, err)
			}
			if tc.want == codes.OK && resp != "ok" {
				t.Fatalf("handler not reached, resp = %v", resp)
			}
		})
	}
}

type stubServerStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s stubServerStream) Context() context.Context { return s.ctx }

func TestStreamAuthInterceptor(t *testing.T) {
	called := false
	handler := func(any, grpc.ServerStream) error { called = true; return nil }
	interceptor := StreamAuthInterceptor("secret")

	err := interceptor(nil, stubServerStream{ctx: context.Background()}, &grpc.StreamServerInfo{FullMethod: "/wagate.v1.Admin/Tail"}, handler)
	if status.Code(err) != codes.Unauthenticated || called {
		t.Fatalf("unauthenticated stream: err %v, called %v", err, called)
	}
	err = interceptor(nil, stubServerStream{ctx: context.Background()}, &grpc.StreamServerInfo{FullMethod: "/grpc.health.v1.Health/Watch"}, handler)
	if err != nil || !called {
		t.Fatalf("health watch: err %v, called %v", err, called)
	}
}

func TestAuthMiddleware(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	for _, tc := range []struct {
		name   string
		token  string
		method string
		target string
		header string
		want   int
	}{
		{"disabled", "", http.MethodGet, "/v1/sessions", "", http.StatusOK},
		{"no header", "secret", http.MethodGet, "/v1/sessions", "", http.StatusUnauthorized},
		{"wrong token", "secret", http.MethodGet, "/v1/sessions", "Bearer wrong", http.StatusUnauthorized},
		{"basic scheme", "secret", http.MethodGet, "/v1/sessions", "Basic secret", http.StatusUnauthorized},
		{"bearer token", "secret", http.MethodGet, "/v1/sessions", "Bearer secret", http.StatusOK},
		{"health exempt", "secret", http.MethodGet, "/v1/health", "", http.StatusOK},
		{"legacy health exempt", "secret", http.MethodGet, "/api/health", "", http.StatusOK},
		{"legacy routes guarded", "secret", http.MethodPost, "/api/whatsapp/login", "", http.StatusUnauthorized},
		{"preflight exempt", "secret", http.MethodOptions, "/v1/tenants/7/login", "", http.StatusOK},
		{"query token on GET", "secret", http.MethodGet, "/v1/tenants/7/events?access_token=secret", "", http.StatusOK},
		{"query token on POST", "secret", http.MethodPost, "/v1/tenants/7/login?access_token=secret", "", http.StatusUnauthorized},
		{"wrong query token", "secret", http.MethodGet, "/v1/ws?access_token=nope", "", http.StatusUnauthorized},
	} {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, tc.target, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			AuthMiddleware(tc.token, ok).ServeHTTP(rec, req)
			if rec.Code != tc.want {
				t.Fatalf("status = %d, want %d; body: %s", rec.Code, tc.want, rec.Body.String())
			}
		})
	}
}

// --- CORS / origin tests ---

func TestOriginPolicy(t *testing.T) {
	for _, tc := range []struct {
		name    string
		origins []string
		origin  string
		want    bool
	}{
		{"listed", []string{"http://localhost:5173"}, "http://localhost:5173", true},
		{"unlisted", []string{"http://localhost:5173"}, "http://evil.example", false},
		{"wildcard", []string{"*"}, "http://anything.example", true},
		{"empty list", nil, "http://anything.example", true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if got := newOriginPolicy(tc.origins).allows(tc.origin); got != tc.want {
				t.Fatalf("allows(%q) = %v, want %v", tc.origin, got, tc.want)
			}
		})
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/ws", nil)
	if !newOriginPolicy([]string{"http://a"}).allowRequest(req) {
		t.Fatal("request without Origin should be allowed")
	}
}

func TestCORSMiddleware(t *testing.T) {
	handler := CORSMiddleware(newOriginPolicy([]string{"http://localhost:5173"}), http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodOptions, "/v1/tenants/7/login", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 for preflight, got %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
		t.Fatalf("allow origin = %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/health", nil)
	req.Header.Set("Origin", "http://evil.example")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatal("unlisted origin should not get CORS headers")
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	handler := RecoveryMiddleware(slog.Default(), http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/health", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}

func TestRecoveryInterceptor(t *testing.T) {
	_, err := RecoveryInterceptor(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: "/x/y"}, func(context.Context, any) (any, error) {
		panic("boom")
	})
	if status.Code(err) != codes.Internal {
		t.Fatalf("expected Internal, got %v", err)
	}
}
