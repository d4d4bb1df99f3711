package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// CallError is a call the node rejected.
type CallError struct {
	Status int    // Status is the HTTP status code
	Code   string // Code is the market rejection code, or the validation message
	Kind   string // Kind is the rejection class, empty for envelope validation failures
}

func (e *CallError) Error() string {
	if e.Kind == "" {
		return fmt.Sprintf("call rejected (%d): %s", e.Status, e.Code)
	}

	return fmt.Sprintf("call rejected (%d): %s %s", e.Status, e.Kind, e.Code)
}

// submitCall sends envelope bytes to a node via POST /call.
func (c *Client) submitCall(envelope []byte, result any) error {
	resp, err := c.http.Post(c.url("/call"), "application/octet-stream", bytes.NewReader(envelope))
	if err != nil {
		return fmt.Errorf("post call:\n%w", err)
	}
	defer func() { io.Copy(io.Discard, resp.Body); resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return decodeCallError(resp)
	}

	return json.NewDecoder(resp.Body).Decode(result)
}

// decodeCallError reads the error body of a rejected call.
func decodeCallError(resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
		Kind  string `json:"kind"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return &CallError{Status: resp.StatusCode, Code: http.StatusText(resp.StatusCode)}
	}

	return &CallError{Status: resp.StatusCode, Code: body.Error, Kind: body.Kind}
}

// httpGet performs a GET request and decodes the JSON response.
func (c *Client) httpGet(path string, result any) error {
	url := c.url(path)

	resp, err := c.http.Get(url)
	if err != nil {
		return fmt.Errorf("GET %s:\n%w", url, err)
	}
	defer func() { io.Copy(io.Discard, resp.Body); resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: status %d", url, resp.StatusCode)
	}

	return json.NewDecoder(resp.Body).Decode(result)
}

// httpPostJSON performs a POST request with JSON body and decodes the JSON response.
func (c *Client) httpPostJSON(path string, body any, result any) error {
	url := c.url(path)

	jsonBytes, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal body:\n%w", err)
	}

	resp, err := c.http.Post(url, "application/json", bytes.NewReader(jsonBytes))
	if err != nil {
		return fmt.Errorf("POST %s:\n%w", url, err)
	}
	defer func() { io.Copy(io.Discard, resp.Body); resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("POST %s: status %d", url, resp.StatusCode)
	}

	return json.NewDecoder(resp.Body).Decode(result)
}
