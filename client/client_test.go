package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\x0dIHDR")

func writeEnvelope(w http.ResponseWriter, status int, code, message string, data interface{}) {
	body := map[string]interface{}{
		"requestid": "r:abc",
		"status":    status,
		"message":   message,
		"data":      data,
	}
	if code != "" {
		body["error"] = code
	}
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// recorder keeps the Authorization header seen for each path.
type recorder struct {
	mu   sync.Mutex
	auth map[string]string
}

func (rc *recorder) record(r *http.Request) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if rc.auth == nil {
		rc.auth = map[string]string{}
	}
	rc.auth[r.URL.Path] = r.Header.Get("Authorization")
}

func (rc *recorder) header(path string) string {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.auth[path]
}

func newLibraryServer(t *testing.T, rc *recorder) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		rc.record(r)
		var req loginRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if req.Password != "secret123" {
			writeEnvelope(w, http.StatusUnauthorized, CodeBadCredentials, "invalid username or password", struct{}{})
			return
		}
		writeEnvelope(w, http.StatusOK, "", "Login successful.", Session{Token: "tkn-" + req.Username, Username: req.Username, Role: RoleAdmin})
	})
	mux.HandleFunc("/api/libros", func(w http.ResponseWriter, r *http.Request) {
		rc.record(r)
		if r.Header.Get("Authorization") == "" {
			writeEnvelope(w, http.StatusUnauthorized, "NO_AUTENTICADO", "authentication required", struct{}{})
			return
		}
		writeEnvelope(w, http.StatusOK, "", "All books fetched successfully.", []Book{
			{ID: 1, Title: "Dune", Author: "Frank Herbert", TotalCopies: 2, AvailableCopies: 1, Category: &Category{ID: 1, Name: "Sci-Fi"}},
		})
	})
	mux.HandleFunc("/uploads/cover.png", func(w http.ResponseWriter, r *http.Request) {
		rc.record(r)
		_, _ = w.Write(pngHeader)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestNew(t *testing.T) {
	for _, raw := range []string{"", "localhost:8080", "/api", "http://"} {
		_, err := New(raw, nil)
		assert.Error(t, err, raw)
	}
	c, err := New("http://localhost:8080/", nil)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080/api/libros", c.url("/api/libros"))
	session, err := c.Session()
	require.NoError(t, err)
	assert.False(t, session.LoggedIn())
}

func TestLoginAndLogout(t *testing.T) {
	rc := &recorder{}
	srv := newLibraryServer(t, rc)
	store := NewMemorySessionStore()
	c, err := New(srv.URL, store, WithLogger(zap.NewNop()), WithTimeout(5*time.Second))
	require.NoError(t, err)
	ctx := context.Background()

	_, err = c.Books(ctx)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.True(t, apiErr.RequiresReauth())

	session, err := c.Login(ctx, "root", "secret123")
	require.NoError(t, err)
	assert.Equal(t, Session{Token: "tkn-root", Username: "root", Role: RoleAdmin}, session)
	assert.Empty(t, rc.header("/api/auth/login"))
	stored, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, session, stored)
	assert.True(t, stored.IsAdmin())

	books, err := c.Books(ctx)
	require.NoError(t, err)
	require.Len(t, books, 1)
	assert.Equal(t, "Dune", books[0].Title)
	assert.Equal(t, "Bearer tkn-root", rc.header("/api/libros"))

	require.NoError(t, c.Logout())
	_, err = c.Books(ctx)
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Empty(t, rc.header("/api/libros"))

	t.Run("wrong password keeps the session empty", func(t *testing.T) {
		_, err := c.Login(ctx, "root", "nope")
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, CodeBadCredentials, apiErr.Code)
		assert.Equal(t, "invalid username or password", apiErr.UserMessage())
		session, err := c.Session()
		require.NoError(t, err)
		assert.False(t, session.LoggedIn())
	})
}

func TestBearerOnlySentToAPIOrigin(t *testing.T) {
	rc := &recorder{}
	api := newLibraryServer(t, rc)
	other := &recorder{}
	cdn := newLibraryServer(t, other)

	store := NewMemorySessionStore()
	require.NoError(t, store.Save(Session{Token: "tkn-ana", Username: "ana", Role: RoleUser}))
	c, err := New(api.URL, store)
	require.NoError(t, err)
	ctx := context.Background()

	content, err := c.FetchImage(ctx, "/uploads/cover.png")
	require.NoError(t, err)
	assert.Equal(t, pngHeader, content)
	assert.Equal(t, "Bearer tkn-ana", rc.header("/uploads/cover.png"))

	content, err = c.FetchImage(ctx, cdn.URL+"/uploads/cover.png")
	require.NoError(t, err)
	assert.Equal(t, pngHeader, content)
	assert.Empty(t, other.header("/uploads/cover.png"))

	_, err = c.FetchImage(ctx, "/uploads/missing.png")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
}

func TestFetchImageLimit(t *testing.T) {
	big := append(append([]byte{}, pngHeader...), 'x')
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/uploads/fits.png":
			_, _ = w.Write(pngHeader)
		case "/uploads/declared.png":
			_, _ = w.Write(big)
		case "/uploads/streamed.png":
			// flushing before the end drops the content length.
			_, _ = w.Write(pngHeader)
			w.(http.Flusher).Flush()
			for i := 0; i < 64; i++ {
				_, _ = w.Write(make([]byte, 1024))
			}
		}
	}))
	t.Cleanup(srv.Close)

	c, err := New(srv.URL, nil, WithMaxImageSize(int64(len(pngHeader))))
	require.NoError(t, err)
	ctx := context.Background()

	content, err := c.FetchImage(ctx, "/uploads/fits.png")
	require.NoError(t, err)
	assert.Equal(t, pngHeader, content)

	for _, name := range []string{"/uploads/declared.png", "/uploads/streamed.png"} {
		t.Run(name, func(t *testing.T) {
			content, err := c.FetchImage(ctx, name)
			require.Error(t, err)
			assert.Nil(t, content)
			assert.Contains(t, err.Error(), "16 bytes limit")
		})
	}
}

//nolint:funlen
func TestAPIErrors(t *testing.T) {
	testCases := []struct {
		name       string
		status     int
		body       string
		retryAfter string
		code       string
		reauth     bool
		blocked    bool
		message    string
	}{
		{
			name:    "blocked user",
			status:  http.StatusForbidden,
			body:    `{"requestid":"r:1","status":403,"error":"USUARIO_BLOQUEADO","message":"user is blocked","data":{}}`,
			code:    CodeBlockedUser,
			reauth:  true,
			blocked: true,
			message: blockedMessage,
		},
		{
			name:    "expired token",
			status:  http.StatusUnauthorized,
			body:    `{"requestid":"r:1","status":401,"error":"NO_AUTENTICADO","message":"invalid or expired token","data":{}}`,
			code:    "NO_AUTENTICADO",
			reauth:  true,
			message: reauthMessage,
		},
		{
			name:    "missing admin role",
			status:  http.StatusForbidden,
			body:    `{"requestid":"r:1","status":403,"error":"SIN_PERMISOS","message":"admin role required","data":{}}`,
			code:    "SIN_PERMISOS",
			reauth:  true,
			message: reauthMessage,
		},
		{
			name:    "no copies left",
			status:  http.StatusBadRequest,
			body:    `{"requestid":"r:1","status":400,"error":"ESTADO_INVALIDO","message":"no copies available","data":{}}`,
			code:    "ESTADO_INVALIDO",
			message: "no copies available",
		},
		{
			name:       "rate limited",
			status:     http.StatusTooManyRequests,
			body:       `{"requestid":"r:1","status":429,"error":"DEMASIADAS_SOLICITUDES","message":"too many login attempts","data":{}}`,
			retryAfter: "1",
			code:       "DEMASIADAS_SOLICITUDES",
			message:    "too many login attempts",
		},
		{
			name:    "not a json body",
			status:  http.StatusBadGateway,
			body:    `<html>bad gateway</html>`,
			message: genericMessage,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var calls int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&calls, 1)
				if tc.retryAfter != "" {
					w.Header().Set("Retry-After", tc.retryAfter)
				}
				w.WriteHeader(tc.status)
				_, _ = io.WriteString(w, tc.body)
			}))
			defer srv.Close()
			c, err := New(srv.URL, nil)
			require.NoError(t, err)

			_, err = c.Borrow(context.Background(), 1)
			var apiErr *APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
			assert.Equal(t, tc.status, apiErr.Status)
			assert.Equal(t, tc.code, apiErr.Code)
			assert.Equal(t, tc.reauth, apiErr.RequiresReauth())
			assert.Equal(t, tc.blocked, apiErr.IsBlocked())
			assert.Equal(t, tc.message, apiErr.UserMessage())
			if tc.retryAfter != "" {
				assert.Equal(t, time.Second, apiErr.RetryAfter)
			}
			if tc.code != "" {
				assert.Equal(t, "r:1", apiErr.RequestID)
				assert.Contains(t, apiErr.Error(), tc.code)
			}
		})
	}
}

//nolint:funlen
func TestAdminCalls(t *testing.T) {
	type seen struct{ method, path string }
	var (
		mu  sync.Mutex
		got []seen
	)
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		got = append(got, seen{r.Method, r.URL.Path})
		mu.Unlock()
		switch r.URL.Path {
		case "/api/admin/prestamos/actualizar-multas":
			writeEnvelope(w, http.StatusOK, "", "2 loan(s) updated with fines.", map[string]int{"updated": 2})
		case "/api/admin/prestamos/4/devolver":
			writeEnvelope(w, http.StatusOK, "", "Loan returned successfully.", Loan{ID: 4, Status: LoanStatusFined, DaysLate: 3, FineAmount: 15000, ReturnDate: "2023-07-12"})
		case "/api/admin/prestamos/4/historial":
			writeEnvelope(w, http.StatusOK, "", "Loan history fetched successfully.", []LoanEvent{{LoanID: 4, Kind: "loans.borrowed"}, {LoanID: 4, Kind: "loans.returned"}})
		case "/api/admin/prestamos/diagnostico":
			writeEnvelope(w, http.StatusOK, "", "Authenticated: root, Role: ADMIN", Diagnosis{Username: "root", Role: RoleAdmin, Loans: LoanSummary{Total: 1, Fined: 1}})
		case "/api/admin/prestamos/activos":
			writeEnvelope(w, http.StatusOK, "", "Loans (active) fetched successfully.", []Loan{{ID: 4, Status: LoanStatusFined}})
		case "/api/admin/categorias":
			var category Category
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&category))
			category.ID = 3
			writeEnvelope(w, http.StatusCreated, "", "Category created successfully.", category)
		default:
			writeEnvelope(w, http.StatusOK, "", "ok", struct{}{})
		}
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	c, err := New(srv.URL, nil)
	require.NoError(t, err)
	ctx := context.Background()

	updated, err := c.RefreshFines(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, updated)

	loan, err := c.ReturnLoan(ctx, 4)
	require.NoError(t, err)
	assert.Equal(t, LoanStatusFined, loan.Status)
	assert.Equal(t, int64(15000), loan.FineAmount)

	events, err := c.LoanHistory(ctx, 4)
	require.NoError(t, err)
	assert.Len(t, events, 2)

	d, err := c.Diagnose(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, d.Loans.Fined)

	category, err := c.CreateCategory(ctx, "Poetry")
	require.NoError(t, err)
	assert.Equal(t, Category{ID: 3, Name: "Poetry"}, category)

	require.NoError(t, c.DeleteBook(ctx, 9))
	require.NoError(t, c.DeleteUser(ctx, 5))
	_, err = c.PayFine(ctx, 4)
	require.NoError(t, err)
	active, err := c.ActiveLoans(ctx)
	require.NoError(t, err)
	assert.Len(t, active, 1)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []seen{
		{http.MethodPut, "/api/admin/prestamos/actualizar-multas"},
		{http.MethodPut, "/api/admin/prestamos/4/devolver"},
		{http.MethodGet, "/api/admin/prestamos/4/historial"},
		{http.MethodGet, "/api/admin/prestamos/diagnostico"},
		{http.MethodPost, "/api/admin/categorias"},
		{http.MethodDelete, "/api/admin/libros/9"},
		{http.MethodDelete, "/api/admin/usuarios/5"},
		{http.MethodPut, "/api/admin/prestamos/4/pagar-multa"},
		{http.MethodGet, "/api/admin/prestamos/activos"},
	}, got)
}

func TestUploadImage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/upload/imagen", r.URL.Path)
		file, header, err := r.FormFile("file")
		if !assert.NoError(t, err) {
			return
		}
		defer file.Close()
		assert.Equal(t, "cover.png", header.Filename)
		assert.Equal(t, "image/png", header.Header.Get("Content-Type"))
		content, err := io.ReadAll(file)
		assert.NoError(t, err)
		assert.Equal(t, pngHeader, content)
		writeEnvelope(w, http.StatusOK, "", "Image uploaded successfully.", UploadedFile{URL: "/uploads/abc.png", Filename: "abc.png"})
	}))
	defer srv.Close()
	c, err := New(srv.URL, nil)
	require.NoError(t, err)

	uploaded, err := c.UploadImage(context.Background(), "cover.png", pngHeader)
	require.NoError(t, err)
	assert.Equal(t, UploadedFile{URL: "/uploads/abc.png", Filename: "abc.png"}, uploaded)

	_, err = c.UploadImage(context.Background(), "empty.png", nil)
	assert.Error(t, err)
}
