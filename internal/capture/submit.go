package capture

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"time"
)

// DefaultEndpoint is the server's submission endpoint on the local host.
const DefaultEndpoint = "http://127.0.0.1:8000/api/mark-attendance"

// Response is the server's verdict on one submission.
type Response struct {
	HTTPStatus        int      `json:"-"`
	Status            string   `json:"status"`
	Action            string   `json:"action,omitempty"`
	Message           string   `json:"message"`
	EmpID             string   `json:"emp_id,omitempty"`
	EmployeeName      string   `json:"employee_name,omitempty"`
	AttendanceStatus  string   `json:"attendance_status,omitempty"`
	TotalWorkingHours *float64 `json:"total_working_hours,omitempty"`
	Error             string   `json:"error,omitempty"`
	Retryable         bool     `json:"retryable,omitempty"`
}

// OK reports whether the submission changed an attendance record.
func (r *Response) OK() bool {
	return r.Status == "success"
}

// Submitter sends one frame to the server.
type Submitter interface {
	Submit(ctx context.Context, frame []byte) (*Response, error)
}

// HTTPSubmitter posts frames as multipart "file" uploads.
type HTTPSubmitter struct {
	endpoint string
	client   *http.Client
}

// NewHTTPSubmitter creates a submitter for endpoint.
func NewHTTPSubmitter(endpoint string, timeout time.Duration) *HTTPSubmitter {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return &HTTPSubmitter{endpoint: endpoint, client: &http.Client{Timeout: timeout}}
}

// Submit implements Submitter. A non-2xx answer with a structured body is a
// Response, not an error; errors are reserved for transport failures.
func (s *HTTPSubmitter) Submit(ctx context.Context, frame []byte) (*Response, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="image.jpg"`)
	h.Set("Content-Type", http.DetectContentType(frame))
	part, err := writer.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(frame); err != nil {
		return nil, fmt.Errorf("failed to write frame: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	out := &Response{HTTPStatus: resp.StatusCode}
	if err := json.Unmarshal(body, out); err != nil {
		return nil, fmt.Errorf("unexpected response (status %d): %s", resp.StatusCode, string(body))
	}
	if out.Status == "" {
		out.Status = "error"
	}
	return out, nil
}
