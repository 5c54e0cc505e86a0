package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Remote talks to an external object-store service over HTTP:
//
//	PUT    {base}/kv/{key}         store value (request body)
//	GET    {base}/kv/{key}         fetch value (404 = absent)
//	DELETE {base}/kv/{key}         remove value
//	GET    {base}/kv?prefix={p}    list keys (JSON array)
type Remote struct {
	base   string
	client *http.Client
}

func NewRemote(baseURL string) *Remote {
	return &Remote{
		base:   strings.TrimRight(baseURL, "/"),
		client: &http.Client{Timeout: 15 * time.Second},
	}
}

func (r *Remote) keyURL(key string) string {
	return r.base + "/kv/" + url.PathEscape(key)
}

func (r *Remote) Put(ctx context.Context, key string, value []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, r.keyURL(key), bytes.NewReader(value))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("storage: remote put: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("storage: remote put: HTTP %d", resp.StatusCode)
	}
	return nil
}

func (r *Remote) Get(ctx context.Context, key string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.keyURL(key), nil)
	if err != nil {
		return nil, err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("storage: remote get: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		io.Copy(io.Discard, resp.Body)
		return nil, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("storage: remote get: HTTP %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func (r *Remote) Delete(ctx context.Context, key string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, r.keyURL(key), nil)
	if err != nil {
		return err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("storage: remote delete: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusNotFound && (resp.StatusCode < 200 || resp.StatusCode > 299) {
		return fmt.Errorf("storage: remote delete: HTTP %d", resp.StatusCode)
	}
	return nil
}

func (r *Remote) List(ctx context.Context, prefix string) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.base+"/kv?prefix="+url.QueryEscape(prefix), nil)
	if err != nil {
		return nil, err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("storage: remote list: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("storage: remote list: HTTP %d", resp.StatusCode)
	}
	var keys []string
	if err := json.NewDecoder(resp.Body).Decode(&keys); err != nil {
		return nil, fmt.Errorf("storage: remote list: decode: %w", err)
	}
	return keys, nil
}
