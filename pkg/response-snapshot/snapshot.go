package snapshot

import (
	"bufio"
	"bytes"
	"io"
	"net/http"
	"strconv"
	"time"
)

// CapturedAtHeader carries the capture timestamp inside the stored header
// set, so entry age can be computed without a side index.
const CapturedAtHeader = "Offline-Agent-Captured-At"

// Response is an immutable snapshot of an HTTP response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	// The value of the clock at the time the response was captured.
	CapturedAt time.Time
}

// FromHTTP drains the given response body and returns a snapshot of it.
// The response body is closed.
func FromHTTP(res *http.Response) (*Response, error) {
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, err
	}
	return &Response{
		StatusCode: res.StatusCode,
		Header:     res.Header.Clone(),
		Body:       body,
		CapturedAt: time.Now(),
	}, nil
}

// Marshal returns the HTTP/1.1 representation of the snapshot, with the
// capture timestamp stamped into the header set.
func (r *Response) Marshal() ([]byte, error) {
	capturedAt := r.CapturedAt
	if capturedAt.IsZero() {
		capturedAt = time.Now()
	}
	header := r.Header.Clone()
	if header == nil {
		header = make(http.Header)
	}
	header.Set(CapturedAtHeader, strconv.FormatInt(capturedAt.Unix(), 10))
	res := &http.Response{
		StatusCode:    r.StatusCode,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(r.Body)),
		ContentLength: int64(len(r.Body)),
	}
	buf := &bytes.Buffer{}
	if err := res.Write(buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Unmarshal parses a snapshot previously produced by Marshal.
func Unmarshal(b []byte) (*Response, error) {
	res, err := http.ReadResponse(bufio.NewReader(bytes.NewReader(b)), nil)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, err
	}
	capturedAt := time.Time{}
	if ts, err := strconv.ParseInt(res.Header.Get(CapturedAtHeader), 10, 64); err == nil {
		capturedAt = time.Unix(ts, 0)
	}
	return &Response{
		StatusCode: res.StatusCode,
		Header:     res.Header,
		Body:       body,
		CapturedAt: capturedAt,
	}, nil
}

// WriteTo sends the snapshot to the given response writer.
// The capture timestamp header is not forwarded to the client.
func (r *Response) WriteTo(w http.ResponseWriter) error {
	for name, values := range r.Header {
		if name == CapturedAtHeader {
			continue
		}
		for _, value := range values {
			w.Header().Add(name, value)
		}
	}
	w.WriteHeader(r.StatusCode)
	_, err := w.Write(r.Body)
	return err
}
