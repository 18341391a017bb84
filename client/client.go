package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	defaultTimeout      = 30 * time.Second
	defaultMaxImageSize = 5 << 20
)

// Client talks to the library API and keeps the login session
// in its SessionStore. Failed calls are never retried.
type Client struct {
	baseURL   *url.URL
	http      *http.Client
	store     SessionStore
	logger    *zap.Logger
	transport http.RoundTripper
	timeout   time.Duration
	maxImage  int64
}

type Option func(*Client)

func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) { c.timeout = timeout }
}

// WithMaxImageSize caps the bytes FetchImage accepts.
func WithMaxImageSize(n int64) Option {
	return func(c *Client) { c.maxImage = n }
}

// WithTransport sets the transport the authenticated requests go through.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) { c.transport = rt }
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		ForceAttemptHTTP2:   true,
	}
}

// New builds a client for the API served at baseURL. A nil store
// keeps the session in memory.
func New(baseURL string, store SessionStore, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid base url %q: scheme and host are required", baseURL)
	}
	if store == nil {
		store = NewMemorySessionStore()
	}
	c := &Client{
		baseURL:  u,
		store:    store,
		logger:   zap.NewNop(),
		timeout:  defaultTimeout,
		maxImage: defaultMaxImageSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.transport == nil {
		c.transport = newHTTPTransport()
	}
	c.http = &http.Client{
		Transport: &authTransport{base: c.transport, origin: u, store: store, logger: c.logger},
		Timeout:   c.timeout,
	}
	return c, nil
}

// envelope is the common shape of every API answer.
type envelope struct {
	RequestID string          `json:"requestid"`
	Status    int             `json:"status"`
	Code      string          `json:"error"`
	Message   string          `json:"message"`
	Total     *int            `json:"total"`
	Data      json.RawMessage `json:"data"`
}

func (c *Client) url(path string) string {
	return c.baseURL.String() + path
}

func (c *Client) newRequest(ctx context.Context, method, path string, payload interface{}) (*http.Request, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.url(path), body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// call sends a json request and decodes the data of the answer into out.
func (c *Client) call(ctx context.Context, method, path string, payload, out interface{}) error {
	req, err := c.newRequest(ctx, method, path, payload)
	if err != nil {
		return err
	}
	return c.send(req, out)
}

func (c *Client) send(req *http.Request, out interface{}) error {
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Error("request failed",
			zap.String("request.method", req.Method),
			zap.String("request.path", req.URL.Path),
			zap.Error(err),
		)
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	var env envelope
	decodeErr := json.NewDecoder(resp.Body).Decode(&env)
	c.logger.Debug("request done",
		zap.String("request.method", req.Method),
		zap.String("request.path", req.URL.Path),
		zap.String("request.id", env.RequestID),
		zap.Int("response.status", resp.StatusCode),
		zap.Duration("request.duration", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{
			Status:    resp.StatusCode,
			Code:      env.Code,
			Message:   env.Message,
			RequestID: env.RequestID,
		}
		if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil {
			apiErr.RetryAfter = time.Duration(secs) * time.Second
		}
		c.logger.Warn("api error",
			zap.String("request.path", req.URL.Path),
			zap.Int("status", apiErr.Status),
			zap.String("code", apiErr.Code),
			zap.String("request.id", apiErr.RequestID),
		)
		return apiErr
	}
	if decodeErr != nil {
		return fmt.Errorf("failed to decode response of %s %s: %w", req.Method, req.URL.Path, decodeErr)
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err = json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("failed to decode data of %s %s: %w", req.Method, req.URL.Path, err)
	}
	return nil
}

// Session returns the stored session.
func (c *Client) Session() (Session, error) {
	return c.store.Load()
}

// Login authenticates and saves the granted session.
func (c *Client) Login(ctx context.Context, username, password string) (Session, error) {
	var session Session
	err := c.call(ctx, http.MethodPost, "/api/auth/login", loginRequest{Username: username, Password: password}, &session)
	if err != nil {
		return Session{}, err
	}
	if err = c.store.Save(session); err != nil {
		return Session{}, fmt.Errorf("failed to save session: %w", err)
	}
	c.logger.Info("logged in", zap.String("username", session.Username), zap.String("role", string(session.Role)))
	return session, nil
}

// Logout forgets the stored session. The token stays valid
// on the server until it expires.
func (c *Client) Logout() error {
	return c.store.Clear()
}

func (c *Client) Register(ctx context.Context, req RegisterRequest) (User, error) {
	var user User
	err := c.call(ctx, http.MethodPost, "/api/auth/register", req, &user)
	return user, err
}

func (c *Client) CreateAdmin(ctx context.Context, req RegisterRequest) (User, error) {
	var user User
	err := c.call(ctx, http.MethodPost, "/api/auth/create-admin", req, &user)
	return user, err
}

func (c *Client) Books(ctx context.Context) ([]Book, error) {
	var books []Book
	err := c.call(ctx, http.MethodGet, "/api/libros", nil, &books)
	return books, err
}

func (c *Client) Book(ctx context.Context, id int64) (Book, error) {
	var book Book
	err := c.call(ctx, http.MethodGet, fmt.Sprintf("/api/libros/%d", id), nil, &book)
	return book, err
}

func (c *Client) Categories(ctx context.Context) ([]Category, error) {
	var categories []Category
	err := c.call(ctx, http.MethodGet, "/api/libros/categorias", nil, &categories)
	return categories, err
}

// Borrow takes one copy of the book for the logged in user.
func (c *Client) Borrow(ctx context.Context, bookID int64) (Loan, error) {
	var loan Loan
	err := c.call(ctx, http.MethodPost, fmt.Sprintf("/api/libros/%d/prestar", bookID), nil, &loan)
	return loan, err
}

func (c *Client) MyLoans(ctx context.Context) ([]Loan, error) {
	var loans []Loan
	err := c.call(ctx, http.MethodGet, "/api/libros/mis-prestamos", nil, &loans)
	return loans, err
}

func (c *Client) CreateBook(ctx context.Context, book Book) (Book, error) {
	var created Book
	err := c.call(ctx, http.MethodPost, "/api/admin/libros", book, &created)
	return created, err
}

func (c *Client) UpdateBook(ctx context.Context, id int64, book Book) (Book, error) {
	var updated Book
	err := c.call(ctx, http.MethodPut, fmt.Sprintf("/api/admin/libros/%d", id), book, &updated)
	return updated, err
}

func (c *Client) DeleteBook(ctx context.Context, id int64) error {
	return c.call(ctx, http.MethodDelete, fmt.Sprintf("/api/admin/libros/%d", id), nil, nil)
}

func (c *Client) CreateCategory(ctx context.Context, name string) (Category, error) {
	var created Category
	err := c.call(ctx, http.MethodPost, "/api/admin/categorias", Category{Name: name}, &created)
	return created, err
}

func (c *Client) UpdateCategory(ctx context.Context, id int64, name string) (Category, error) {
	var updated Category
	err := c.call(ctx, http.MethodPut, fmt.Sprintf("/api/admin/categorias/%d", id), Category{Name: name}, &updated)
	return updated, err
}

func (c *Client) DeleteCategory(ctx context.Context, id int64) error {
	return c.call(ctx, http.MethodDelete, fmt.Sprintf("/api/admin/categorias/%d", id), nil, nil)
}

func (c *Client) Users(ctx context.Context) ([]User, error) {
	var users []User
	err := c.call(ctx, http.MethodGet, "/api/admin/usuarios", nil, &users)
	return users, err
}

func (c *Client) User(ctx context.Context, id int64) (User, error) {
	var user User
	err := c.call(ctx, http.MethodGet, fmt.Sprintf("/api/admin/usuarios/%d", id), nil, &user)
	return user, err
}

func (c *Client) CreateUser(ctx context.Context, user User) (User, error) {
	var created User
	err := c.call(ctx, http.MethodPost, "/api/admin/usuarios", user, &created)
	return created, err
}

// UpdateUser replaces the profile of a user. An empty password
// keeps the current one.
func (c *Client) UpdateUser(ctx context.Context, id int64, user User) (User, error) {
	var updated User
	err := c.call(ctx, http.MethodPut, fmt.Sprintf("/api/admin/usuarios/%d", id), user, &updated)
	return updated, err
}

func (c *Client) DeleteUser(ctx context.Context, id int64) error {
	return c.call(ctx, http.MethodDelete, fmt.Sprintf("/api/admin/usuarios/%d", id), nil, nil)
}

func (c *Client) Loans(ctx context.Context) ([]Loan, error) {
	return c.loans(ctx, "/api/admin/prestamos")
}

func (c *Client) ActiveLoans(ctx context.Context) ([]Loan, error) {
	return c.loans(ctx, "/api/admin/prestamos/activos")
}

func (c *Client) FinedLoans(ctx context.Context) ([]Loan, error) {
	return c.loans(ctx, "/api/admin/prestamos/multas")
}

func (c *Client) loans(ctx context.Context, path string) ([]Loan, error) {
	var loans []Loan
	err := c.call(ctx, http.MethodGet, path, nil, &loans)
	return loans, err
}

func (c *Client) Loan(ctx context.Context, id int64) (Loan, error) {
	var loan Loan
	err := c.call(ctx, http.MethodGet, fmt.Sprintf("/api/admin/prestamos/%d", id), nil, &loan)
	return loan, err
}

func (c *Client) ReturnLoan(ctx context.Context, id int64) (Loan, error) {
	var loan Loan
	err := c.call(ctx, http.MethodPut, fmt.Sprintf("/api/admin/prestamos/%d/devolver", id), nil, &loan)
	return loan, err
}

// RefreshFines asks the server to fine overdue loans and
// returns how many loans changed.
func (c *Client) RefreshFines(ctx context.Context) (int, error) {
	var result struct {
		Updated int `json:"updated"`
	}
	err := c.call(ctx, http.MethodPut, "/api/admin/prestamos/actualizar-multas", nil, &result)
	return result.Updated, err
}

func (c *Client) PayFine(ctx context.Context, id int64) (Loan, error) {
	var loan Loan
	err := c.call(ctx, http.MethodPut, fmt.Sprintf("/api/admin/prestamos/%d/pagar-multa", id), nil, &loan)
	return loan, err
}

func (c *Client) LoanHistory(ctx context.Context, id int64) ([]LoanEvent, error) {
	var events []LoanEvent
	err := c.call(ctx, http.MethodGet, fmt.Sprintf("/api/admin/prestamos/%d/historial", id), nil, &events)
	return events, err
}

func (c *Client) Diagnose(ctx context.Context) (Diagnosis, error) {
	var d Diagnosis
	err := c.call(ctx, http.MethodGet, "/api/admin/prestamos/diagnostico", nil, &d)
	return d, err
}

// UploadImage sends an image as the "file" field of a multipart form.
// The part content type is sniffed from the first bytes.
func (c *Client) UploadImage(ctx context.Context, filename string, content []byte) (UploadedFile, error) {
	var uploaded UploadedFile
	if len(content) == 0 {
		return uploaded, errors.New("image content is empty")
	}
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, escapeQuotes(filename)))
	h.Set("Content-Type", http.DetectContentType(content))
	part, err := mw.CreatePart(h)
	if err != nil {
		return uploaded, fmt.Errorf("failed to create upload part: %w", err)
	}
	if _, err = part.Write(content); err != nil {
		return uploaded, fmt.Errorf("failed to write upload part: %w", err)
	}
	if err = mw.Close(); err != nil {
		return uploaded, fmt.Errorf("failed to close upload form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url("/api/upload/imagen"), body)
	if err != nil {
		return uploaded, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")
	err = c.send(req, &uploaded)
	return uploaded, err
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}

// FetchImage downloads a book cover. Relative urls are resolved against
// the API base url. Covers hosted elsewhere are fetched without the token.
// Bodies larger than the configured maximum are rejected.
func (c *Client) FetchImage(ctx context.Context, rawURL string) ([]byte, error) {
	ref, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid image url: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL.ResolveReference(ref).String(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch image: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{Status: resp.StatusCode, Message: "image not available"}
	}
	if resp.ContentLength > c.maxImage {
		return nil, fmt.Errorf("image of %d bytes exceeds the %d bytes limit", resp.ContentLength, c.maxImage)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxImage+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	if int64(len(data)) > c.maxImage {
		return nil, fmt.Errorf("image exceeds the %d bytes limit", c.maxImage)
	}
	return data, nil
}
