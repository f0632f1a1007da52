// Package httpcache computes validators for report responses and evaluates
// conditional requests against them.
package httpcache

import (
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/goliatone/go-report-cache/cache"
)

// Result is the outcome of negotiating a response.
type Result struct {
	// Fingerprint is the quoted entity tag of the payload.
	Fingerprint string
	// NotModified is true when the client's copy matches the payload.
	NotModified bool
	// Body is the encoded payload the fingerprint was computed over.
	Body []byte
}

// Encode serializes payload the way it is fingerprinted: JSON with sorted object keys.
func Encode(payload any) ([]byte, error) {
	return cache.StableStringify(payload)
}

// Fingerprint returns the quoted entity tag for an encoded payload.
func Fingerprint(body []byte) string {
	return fmt.Sprintf(`"%016x"`, xxhash.Sum64(body))
}

// Negotiate fingerprints payload and reports whether previous, an If-None-Match
// header value, already names it.
func Negotiate(previous string, payload any) (Result, error) {
	body, err := Encode(payload)
	if err != nil {
		return Result{}, err
	}
	tag := Fingerprint(body)
	return Result{Fingerprint: tag, NotModified: Matches(previous, tag), Body: body}, nil
}

// Matches reports whether the If-None-Match value header matches tag. The header
// may list several tags or use weak tags. Comparison is weak, so W/"x" matches "x".
//
// "*" matches any current representation, following RFC 9110 section 13.1.2,
// so it yields a 304 even though no fingerprint was compared.
func Matches(header, tag string) bool {
	header = strings.TrimSpace(header)
	if header == "" || tag == "" {
		return false
	}
	if header == "*" {
		return true
	}

	want := opaque(tag)
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "*" || opaque(candidate) == want {
			return true
		}
	}
	return false
}

func opaque(tag string) string {
	tag = strings.TrimPrefix(tag, "W/")
	return strings.Trim(tag, `"`)
}
