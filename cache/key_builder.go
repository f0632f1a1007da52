package cache

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/cespare/xxhash/v2"
)

// KeySeparator defines the delimiter used between cache key segments.
const KeySeparator = "::"

// AnonymousUser is the user id recorded in keys for callers without one.
const AnonymousUser = "anonymous"

// KeyBuilder produces stable cache keys from a report name, its filters and the caller scope.
type KeyBuilder struct {
	maxKeyLength int
}

// KeyOption configures a KeyBuilder.
type KeyOption func(*KeyBuilder)

// WithMaxKeyLength shortens keys longer than n bytes to "<report>::<xxhash>".
// Zero disables shortening.
func WithMaxKeyLength(n int) KeyOption {
	return func(b *KeyBuilder) {
		if n > 0 {
			b.maxKeyLength = n
		}
	}
}

// NewKeyBuilder creates a key builder.
func NewKeyBuilder(opts ...KeyOption) *KeyBuilder {
	b := &KeyBuilder{}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

type keyScope struct {
	UserID      string   `json:"userId"`
	Permissions []string `json:"permissions"`
	CompanyID   string   `json:"companyId"`
	BranchID    string   `json:"branchId"`
}

type keyPayload struct {
	Endpoint string   `json:"endpoint"`
	Filters  Filters  `json:"filters"`
	Scope    keyScope `json:"scope"`
}

// BuildKey returns the fingerprint for a report request.
//
// Every filter is always present in the key (empty when absent), the user defaults to
// AnonymousUser and permissions are sorted, so requests that only differ in how they were
// assembled share a key.
func (b *KeyBuilder) BuildKey(report string, filters Filters, scope Scope) string {
	payload := keyPayload{
		Endpoint: report,
		Filters:  filters,
		Scope:    normalizeScope(scope),
	}

	data, err := StableStringify(payload)
	var key string
	if err != nil {
		key = fmt.Sprintf("%s%s%+v", report, KeySeparator, payload)
	} else {
		key = string(data)
	}

	if b != nil && b.maxKeyLength > 0 && len(key) > b.maxKeyLength {
		return fmt.Sprintf("%s%s%016x", report, KeySeparator, xxhash.Sum64String(key))
	}
	return key
}

func normalizeScope(scope Scope) keyScope {
	userID := scope.UserID
	if userID == "" {
		userID = AnonymousUser
	}

	permissions := make([]string, len(scope.Permissions))
	copy(permissions, scope.Permissions)
	sort.Strings(permissions)

	return keyScope{
		UserID:      userID,
		Permissions: permissions,
		CompanyID:   scope.CompanyID,
		BranchID:    scope.BranchID,
	}
}

// StableStringify serializes v as JSON with object keys sorted at every nesting level.
// Arrays keep their order. The output does not depend on struct field or map insertion order.
func StableStringify(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var generic any
	if err := dec.Decode(&generic); err != nil {
		return nil, err
	}

	// encoding/json writes map keys in sorted order.
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(generic); err != nil {
		return nil, err
	}

	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
