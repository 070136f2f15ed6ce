package search

import (
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	elasticsearch "github.com/elastic/go-elasticsearch/v7"
)

// ClientConfig describes how to reach the search domain.
type ClientConfig struct {
	Endpoint string
	Region   string
	Service  string
	Timeout  time.Duration

	// Credentials enables SigV4 signing. Leave nil for an unsigned local cluster.
	Credentials aws.CredentialsProvider
}

// NewClient builds a search client. Retries inside the client are disabled:
// the caller owns the retry budget.
func NewClient(cfg ClientConfig) (*elasticsearch.Client, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("search: endpoint must not be empty")
	}
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		endpoint = "https://" + endpoint
	}

	var transport http.RoundTripper = buildTransport(cfg.Timeout)
	if cfg.Credentials != nil {
		transport = NewSigningTransport(transport, cfg.Credentials, cfg.Region, cfg.Service)
	}

	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses:    []string{strings.TrimRight(endpoint, "/")},
		Transport:    transport,
		DisableRetry: true,
	})
	if err != nil {
		return nil, fmt.Errorf("search: create client: %w", err)
	}
	return client, nil
}

func buildTransport(timeout time.Duration) *http.Transport {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ResponseHeaderTimeout: timeout,
	}
}
