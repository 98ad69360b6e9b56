// Package client is a typed HTTP client for the retina API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// Error codes returned in the error envelope.
const (
	CodeUnauthenticated   = "unauthenticated"
	CodeProfileMissing    = "profile_missing"
	CodeForbidden         = "forbidden"
	CodeNotFound          = "not_found"
	CodeValidation        = "validation"
	CodeConflict          = "conflict"
	CodeDoctorNotEligible = "doctor_not_eligible"
	CodeInfrastructure    = "infrastructure"
)

// APIError is a non-2xx response decoded from the error envelope.
type APIError struct {
	Status    int
	Code      string
	Message   string
	RequestID string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("retina api: %d %s: %s", e.Status, e.Code, e.Message)
}

// HasCode reports whether err is an *APIError with the given code.
func HasCode(err error, code string) bool {
	var ae *APIError
	return errors.As(err, &ae) && ae.Code == code
}

type Client struct {
	baseURL string
	http    *http.Client
}

type Option func(*Client)

// WithHTTPClient replaces the transport used when no token source is given.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// New returns a client for baseURL. Requests carry the bearer token from
// ts; a nil ts sends no credential.
func New(baseURL string, ts oauth2.TokenSource, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	if ts != nil {
		base := c.http
		c.http = &http.Client{
			Timeout:   base.Timeout,
			Transport: &oauth2.Transport{Source: ts, Base: base.Transport},
		}
	}
	return c
}

// StaticToken wraps a fixed bearer credential.
func StaticToken(token string) oauth2.TokenSource {
	return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"})
}

type envelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	RequestID string `json:"request_id"`
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	ae := &APIError{Status: resp.StatusCode}
	var env envelope
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(data, &env); err == nil && env.Error.Code != "" {
		ae.Code, ae.Message, ae.RequestID = env.Error.Code, env.Error.Message, env.RequestID
		return ae
	}
	ae.Code = "http_" + strconv.Itoa(resp.StatusCode)
	ae.Message = http.StatusText(resp.StatusCode)
	return ae
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, "", out)
}

func (c *Client) postJSON(ctx context.Context, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}
	return c.do(ctx, http.MethodPost, path, body, "application/json", out)
}

func page(limit, offset int) string {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if offset > 0 {
		q.Set("offset", strconv.Itoa(offset))
	}
	if len(q) == 0 {
		return ""
	}
	return "?" + q.Encode()
}

// Me returns the signed-in identity and profile. A signed-in user who has
// not registered yet gets an APIError with CodeProfileMissing.
func (c *Client) Me(ctx context.Context) (*Me, error) {
	var me Me
	if err := c.getJSON(ctx, "/api/auth/me", &me); err != nil {
		return nil, err
	}
	return &me, nil
}

func (c *Client) Register(ctx context.Context, reg Registration) (*Profile, error) {
	var p Profile
	if err := c.postJSON(ctx, "/api/auth/profile", reg, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *Client) Logout(ctx context.Context) error {
	return c.postJSON(ctx, "/api/auth/logout", nil, nil)
}

func (c *Client) ApprovedDoctors(ctx context.Context) ([]DoctorSummary, error) {
	var out []DoctorSummary
	if err := c.getJSON(ctx, "/api/doctors/approved", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) SelectDoctor(ctx context.Context, doctorID string) (*Assignment, error) {
	var a Assignment
	if err := c.postJSON(ctx, "/api/patient/doctor", map[string]string{"doctorId": doctorID}, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// MyDoctor returns the patient's current doctor, or nil when none is
// selected.
func (c *Client) MyDoctor(ctx context.Context) (*DoctorSummary, error) {
	var out struct {
		Doctor *DoctorSummary `json:"doctor"`
	}
	if err := c.getJSON(ctx, "/api/patient/doctor", &out); err != nil {
		return nil, err
	}
	return out.Doctor, nil
}

func (c *Client) MyPatients(ctx context.Context) ([]PatientAssignment, error) {
	var out []PatientAssignment
	if err := c.getJSON(ctx, "/api/doctor/patients", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) PendingDoctors(ctx context.Context) ([]Profile, error) {
	var out []Profile
	if err := c.getJSON(ctx, "/api/admin/doctors/pending", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ApproveDoctor(ctx context.Context, id string) (*Profile, error) {
	return c.decide(ctx, id, "approve")
}

func (c *Client) RejectDoctor(ctx context.Context, id string) (*Profile, error) {
	return c.decide(ctx, id, "reject")
}

func (c *Client) decide(ctx context.Context, id, action string) (*Profile, error) {
	var p Profile
	if err := c.postJSON(ctx, "/api/admin/doctors/"+url.PathEscape(id)+"/"+action, nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *Client) ListScans(ctx context.Context, limit, offset int) (*ScanPage, error) {
	var out ScanPage
	if err := c.getJSON(ctx, "/api/scans"+page(limit, offset), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) RecentScans(ctx context.Context, limit int) ([]Scan, error) {
	var out []Scan
	if err := c.getJSON(ctx, "/api/scans/recent"+page(limit, 0), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) PatientScans(ctx context.Context, patientID string, limit, offset int) (*ScanPage, error) {
	var out ScanPage
	path := "/api/patients/" + url.PathEscape(patientID) + "/scans" + page(limit, offset)
	if err := c.getJSON(ctx, path, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetScan(ctx context.Context, id int64) (*Scan, error) {
	var s Scan
	if err := c.getJSON(ctx, "/api/scans/"+strconv.FormatInt(id, 10), &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (c *Client) CreateScan(ctx context.Context, in NewScan) (*Scan, error) {
	var s Scan
	if err := c.postJSON(ctx, "/api/scans", in, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// UploadScan sends a PNG or JPEG image for analysis on behalf of patientID.
func (c *Client) UploadScan(ctx context.Context, patientID, fileName string, image io.Reader) (*Scan, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.WriteField("patientId", patientID); err != nil {
		return nil, err
	}
	part, err := w.CreateFormFile("file", fileName)
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, image); err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	var s Scan
	if err := c.do(ctx, http.MethodPost, "/api/scans/analyze", &buf, w.FormDataContentType(), &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// ScanImage streams one image of a scan. kind is "original" or "heatmap".
// The caller closes the reader.
func (c *Client) ScanImage(ctx context.Context, id int64, kind string) (io.ReadCloser, string, error) {
	path := "/api/scans/" + strconv.FormatInt(id, 10) + "/image/" + url.PathEscape(kind)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, "", fmt.Errorf("build request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("GET %s: %w", path, err)
	}
	if resp.StatusCode >= 300 {
		defer resp.Body.Close()
		return nil, "", decodeError(resp)
	}
	return resp.Body, resp.Header.Get("Content-Type"), nil
}
