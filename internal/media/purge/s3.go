package purge

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"
)

type S3Config struct {
	Endpoint  string
	Bucket    string
	Region    string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Timeout   time.Duration
}

// S3Deleter issues SigV4-signed DELETE requests against an S3-compatible
// endpoint using path-style addressing.
type S3Deleter struct {
	cfg        S3Config
	endpoint   *url.URL
	httpClient *http.Client
	now        func() time.Time
}

func NewS3Deleter(cfg S3Config) (*S3Deleter, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	bucket := strings.Trim(strings.TrimSpace(cfg.Bucket), "/")
	if endpoint == "" || bucket == "" {
		return nil, fmt.Errorf("object storage endpoint and bucket are required")
	}
	scheme := "http"
	if cfg.UseSSL {
		scheme = "https"
	}
	if strings.Contains(endpoint, "://") {
		parsed, err := url.Parse(endpoint)
		if err != nil {
			return nil, fmt.Errorf("parse endpoint: %w", err)
		}
		scheme, endpoint = parsed.Scheme, parsed.Host
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultPurgeTimeout
	}
	cfg.Bucket = bucket
	return &S3Deleter{
		cfg:        cfg,
		endpoint:   &url.URL{Scheme: scheme, Host: endpoint},
		httpClient: &http.Client{Timeout: cfg.Timeout},
		now:        time.Now,
	}, nil
}

func (d *S3Deleter) Delete(ctx context.Context, key string) error {
	key = strings.TrimLeft(key, "/")
	target := *d.endpoint
	target.Path = "/" + d.cfg.Bucket + "/" + key

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, target.String(), nil)
	if err != nil {
		return fmt.Errorf("create delete request: %w", err)
	}
	d.sign(req, emptyPayloadHash)

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("delete object %s: %w", key, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusNotFound:
		return ErrObjectNotFound
	default:
		return fmt.Errorf("delete object %s: unexpected status %d", key, resp.StatusCode)
	}
}

func (d *S3Deleter) sign(req *http.Request, payloadHash string) {
	req.Host = req.URL.Host
	req.Header.Set("x-amz-content-sha256", payloadHash)
	accessKey := strings.TrimSpace(d.cfg.AccessKey)
	secretKey := strings.TrimSpace(d.cfg.SecretKey)
	if accessKey == "" || secretKey == "" {
		return
	}

	now := d.now().UTC()
	amzDate := now.Format("20060102T150405Z")
	dateStamp := now.Format("20060102")
	req.Header.Set("x-amz-date", amzDate)

	canonicalHeaders, signedHeaders := canonicalizeHeaders(req)
	canonicalRequest := strings.Join([]string{
		req.Method,
		canonicalURI(req.URL),
		req.URL.RawQuery,
		canonicalHeaders,
		signedHeaders,
		payloadHash,
	}, "\n")
	scope := strings.Join([]string{dateStamp, d.cfg.Region, "s3", "aws4_request"}, "/")
	stringToSign := strings.Join([]string{
		"AWS4-HMAC-SHA256",
		amzDate,
		scope,
		hashSHA256Hex([]byte(canonicalRequest)),
	}, "\n")

	kDate := hmacSHA256([]byte("AWS4"+secretKey), []byte(dateStamp))
	kRegion := hmacSHA256(kDate, []byte(d.cfg.Region))
	kService := hmacSHA256(kRegion, []byte("s3"))
	signingKey := hmacSHA256(kService, []byte("aws4_request"))
	signature := hex.EncodeToString(hmacSHA256(signingKey, []byte(stringToSign)))

	req.Header.Set("Authorization", fmt.Sprintf(
		"AWS4-HMAC-SHA256 Credential=%s/%s, SignedHeaders=%s, Signature=%s",
		accessKey, scope, signedHeaders, signature,
	))
}

func canonicalizeHeaders(req *http.Request) (string, string) {
	headers := map[string]string{"host": req.Host}
	for key, values := range req.Header {
		lower := strings.ToLower(key)
		if lower == "authorization" {
			continue
		}
		trimmed := make([]string, 0, len(values))
		for _, v := range values {
			trimmed = append(trimmed, strings.TrimSpace(v))
		}
		headers[lower] = strings.Join(trimmed, ",")
	}
	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte(':')
		b.WriteString(headers[k])
		b.WriteByte('\n')
	}
	return b.String(), strings.Join(keys, ";")
}

func canonicalURI(u *url.URL) string {
	path := u.EscapedPath()
	if path == "" {
		return "/"
	}
	return path
}

func hmacSHA256(key, data []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(data)
	return mac.Sum(nil)
}

var emptyPayloadHash = hashSHA256Hex(nil)

func hashSHA256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
