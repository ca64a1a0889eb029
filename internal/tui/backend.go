package tui

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/dbaudit/collector/internal/query"
)

// Backend is how the console fetches and mutates audit data, whether the
// archive directory is local or reachable only through internal/queryapi.
type Backend interface {
	Query(begin, end int64) ([]query.Row, error)
	Delete(begin, end int64) (int, error)
}

// LocalBackend queries an archive directory directly, for use when
// auditctl runs on the same host as the collector.
type LocalBackend struct {
	Dir string
}

func NewLocalBackend(dir string) *LocalBackend {
	return &LocalBackend{Dir: dir}
}

func (b *LocalBackend) Query(begin, end int64) ([]query.Row, error) {
	return query.Query(b.Dir, begin, end)
}

func (b *LocalBackend) Delete(begin, end int64) (int, error) {
	return query.Delete(b.Dir, begin, end)
}

// RemoteBackend talks to internal/queryapi's HTTP surface over a network
// connection, the same shape as this codebase's other remote TUI backend.
type RemoteBackend struct {
	BaseURL     string
	BearerToken string
	Client      *http.Client
}

func NewRemoteBackend(baseURL, bearerToken string, insecure bool) *RemoteBackend {
	transport := &http.Transport{
		TLSClientConfig: &tls.Config{InsecureSkipVerify: insecure},
	}
	return &RemoteBackend{
		BaseURL:     baseURL,
		BearerToken: bearerToken,
		Client: &http.Client{
			Timeout:   10 * time.Second,
			Transport: transport,
		},
	}
}

func (b *RemoteBackend) do(method, path string) (*http.Response, error) {
	req, err := http.NewRequest(method, b.BaseURL+path, nil)
	if err != nil {
		return nil, err
	}
	if b.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+b.BearerToken)
	}
	req.Header.Set("Accept", "application/json")
	return b.Client.Do(req)
}

func windowQuery(begin, end int64) string {
	v := url.Values{}
	v.Set("start", time.Unix(begin, 0).UTC().Format(time.RFC3339))
	v.Set("end", time.Unix(end, 0).UTC().Format(time.RFC3339))
	return "?" + v.Encode()
}

func (b *RemoteBackend) Query(begin, end int64) ([]query.Row, error) {
	resp, err := b.do(http.MethodGet, "/api/audit"+windowQuery(begin, end))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("api error: %s", resp.Status)
	}

	var data struct {
		Rows []query.Row `json:"rows"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, err
	}
	return data.Rows, nil
}

func (b *RemoteBackend) Delete(begin, end int64) (int, error) {
	resp, err := b.do(http.MethodDelete, "/api/audit"+windowQuery(begin, end))
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("api error: %s", resp.Status)
	}

	var data struct {
		Deleted int `json:"deleted"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return 0, err
	}
	return data.Deleted, nil
}

