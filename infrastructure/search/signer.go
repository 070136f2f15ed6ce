package search

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
)

// Signing names accepted by Amazon OpenSearch.
const (
	ServiceManaged    = "es"
	ServiceServerless = "aoss"
)

// SigningTransport signs every request with SigV4 before handing it to the
// wrapped transport.
type SigningTransport struct {
	base        http.RoundTripper
	signer      *v4.Signer
	credentials aws.CredentialsProvider
	region      string
	service     string
	now         func() time.Time
}

// NewSigningTransport wraps base. A nil base uses http.DefaultTransport.
func NewSigningTransport(base http.RoundTripper, credentials aws.CredentialsProvider, region, service string) *SigningTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	if service == "" {
		service = ServiceManaged
	}
	return &SigningTransport{
		base:        base,
		signer:      v4.NewSigner(),
		credentials: credentials,
		region:      region,
		service:     service,
		now:         time.Now,
	}
}

// RoundTrip implements http.RoundTripper.
func (t *SigningTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	signed := req.Clone(ctx)

	var payload []byte
	if req.Body != nil && req.Body != http.NoBody {
		var err error
		payload, err = io.ReadAll(req.Body)
		_ = req.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("read request body for signing: %w", err)
		}
		signed.Body = io.NopCloser(bytes.NewReader(payload))
		signed.ContentLength = int64(len(payload))
		signed.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(payload)), nil
		}
	}

	sum := sha256.Sum256(payload)
	payloadHash := hex.EncodeToString(sum[:])
	signed.Header.Set("X-Amz-Content-Sha256", payloadHash)

	creds, err := t.credentials.Retrieve(ctx)
	if err != nil {
		return nil, fmt.Errorf("retrieve credentials: %w", err)
	}
	if err := t.signer.SignHTTP(ctx, creds, signed, payloadHash, t.service, t.region, t.now()); err != nil {
		return nil, fmt.Errorf("sign request: %w", err)
	}
	return t.base.RoundTrip(signed)
}
