// Package sigv4 presigns signaling WebSocket URLs with AWS Signature Version 4
// query-string authentication.
package sigv4

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/bbielsa/kvsrtc/internal/domain"
)

const (
	algorithm     = "AWS4-HMAC-SHA256"
	service       = "kinesisvideo"
	terminator    = "aws4_request"
	signedHeaders = "host"
	expires       = "299"

	amzDateFormat = "20060102T150405Z"
	dateFormat    = "20060102"

	// hex(sha256("")), the payload hash of a GET request.
	emptyPayloadHash = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
)

// Request holds the signing inputs. Time is required; the signer never
// reads the clock.
type Request struct {
	TargetURI       string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	// SigningHost is the value of the signed host header. Defaults to the
	// target's host.
	SigningHost string
	Region      string
	Time        time.Time
}

// Sign returns TargetURI with the X-Amz authentication parameters appended.
func Sign(r Request) (string, error) {
	if r.AccessKeyID == "" || r.SecretAccessKey == "" {
		return "", &domain.SigningError{Reason: "empty credentials"}
	}
	if r.Region == "" {
		return "", &domain.SigningError{Reason: "empty region"}
	}
	if r.Time.IsZero() {
		return "", &domain.SigningError{Reason: "zero signing time"}
	}

	u, err := url.Parse(r.TargetURI)
	if err != nil {
		return "", &domain.SigningError{Reason: "parse target: " + err.Error()}
	}
	if !u.IsAbs() || u.Host == "" {
		return "", &domain.SigningError{Reason: "target is not an absolute URI: " + r.TargetURI}
	}
	existing, err := url.ParseQuery(u.RawQuery)
	if err != nil {
		return "", &domain.SigningError{Reason: "parse target query: " + err.Error()}
	}

	host := r.SigningHost
	if host == "" {
		host = u.Host
	}

	t := r.Time.UTC()
	amzDate := t.Format(amzDateFormat)
	date := t.Format(dateFormat)
	scope := credentialScope(date, r.Region)

	params := map[string]string{
		"X-Amz-Algorithm":     algorithm,
		"X-Amz-Credential":    r.AccessKeyID + "/" + scope,
		"X-Amz-Date":          amzDate,
		"X-Amz-Expires":       expires,
		"X-Amz-SignedHeaders": signedHeaders,
	}
	if r.SessionToken != "" {
		params["X-Amz-Security-Token"] = r.SessionToken
	}
	for k, v := range existing {
		if len(v) > 0 {
			params[k] = v[0]
		}
	}

	query := canonicalQuery(params)
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}

	canonicalRequest := strings.Join([]string{
		"GET",
		path,
		query,
		"host:" + host,
		"",
		signedHeaders,
		emptyPayloadHash,
	}, "\n")

	stringToSign := strings.Join([]string{
		algorithm,
		amzDate,
		scope,
		hexSHA256(canonicalRequest),
	}, "\n")

	key := signingKey(r.SecretAccessKey, date, r.Region)
	signature := hex.EncodeToString(hmacSHA256(key, stringToSign))

	return u.Scheme + "://" + u.Host + path + "?" + query + "&X-Amz-Signature=" + signature, nil
}

func credentialScope(date, region string) string {
	return date + "/" + region + "/" + service + "/" + terminator
}

func signingKey(secret, date, region string) []byte {
	k := hmacSHA256([]byte("AWS4"+secret), date)
	k = hmacSHA256(k, region)
	k = hmacSHA256(k, service)
	return hmacSHA256(k, terminator)
}

func canonicalQuery(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, uriEncode(k)+"="+uriEncode(params[k]))
	}
	return strings.Join(pairs, "&")
}

// uriEncode percent-encodes everything outside the RFC 3986 unreserved set.
func uriEncode(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isUnreserved(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte("0123456789ABCDEF"[c>>4])
		b.WriteByte("0123456789ABCDEF"[c&15])
	}
	return b.String()
}

func isUnreserved(c byte) bool {
	return 'A' <= c && c <= 'Z' || 'a' <= c && c <= 'z' || '0' <= c && c <= '9' ||
		c == '-' || c == '_' || c == '.' || c == '~'
}

func hmacSHA256(key []byte, data string) []byte {
	h := hmac.New(sha256.New, key)
	h.Write([]byte(data))
	return h.Sum(nil)
}

func hexSHA256(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
