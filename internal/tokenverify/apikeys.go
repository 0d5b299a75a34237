package tokenverify

import (
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	accesserrors "github.com/quantedge/access-layer/infrastructure/errors"
)

// APIKeyRecord is one entry of the operator-configured API-key table,
// unifying what used to be two divergent mock-user tables (§12, Open
// Question 3).
type APIKeyRecord struct {
	Key     string   `json:"key"`
	Subject string   `json:"subject"`
	Tenant  string   `json:"tenant"`
	Roles   []string `json:"roles"`
}

// APIKeyTable resolves X-API-Key header values to an APIKeyRecord. Keys
// are stored as bcrypt hashes so the table can be dumped to logs or config
// snapshots without leaking raw key material.
type APIKeyTable struct {
	byHash map[string]*APIKeyRecord
}

// NewAPIKeyTable builds a table from plaintext records, hashing each key
// once at construction time.
func NewAPIKeyTable(records []APIKeyRecord) (*APIKeyTable, error) {
	t := &APIKeyTable{byHash: make(map[string]*APIKeyRecord, len(records))}
	for i := range records {
		rec := records[i]
		hash, err := bcrypt.GenerateFromPassword([]byte(rec.Key), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("hash api key for subject %s: %w", rec.Subject, err)
		}
		t.byHash[string(hash)] = &rec
	}
	return t, nil
}

// Lookup resolves a raw API key header value to its record. Returns an
// AuthenticationError when no configured key matches.
func (t *APIKeyTable) Lookup(rawKey string) (*APIKeyRecord, error) {
	rawKey = strings.TrimSpace(rawKey)
	if rawKey == "" {
		return nil, accesserrors.Unauthorized("missing API key")
	}
	for hash, rec := range t.byHash {
		if bcrypt.CompareHashAndPassword([]byte(hash), []byte(rawKey)) == nil {
			return rec, nil
		}
	}
	return nil, accesserrors.Unauthorized("invalid API key")
}

// ParseAPIKeyRecordsJSON decodes the APIKEYS environment variable, a JSON
// array of {key, subject, tenant, roles} objects.
func ParseAPIKeyRecordsJSON(raw string) ([]APIKeyRecord, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	var records []APIKeyRecord
	if err := json.Unmarshal([]byte(raw), &records); err != nil {
		return nil, fmt.Errorf("parse APIKEYS: %w", err)
	}
	return records, nil
}
