// Package runtime provides environment/runtime detection helpers shared across the service layer.
package runtime

import (
	"sync"
)

// strictIdentityModeOnce caches the strict identity mode check at startup.
var (
	strictIdentityModeOnce  sync.Once
	strictIdentityModeValue bool
)

// ResetStrictIdentityModeCache resets the cached strict identity mode value.
// This should only be used in tests.
func ResetStrictIdentityModeCache() {
	strictIdentityModeOnce = sync.Once{}
	strictIdentityModeValue = false
}

// StrictIdentityMode returns true when the service should fail closed on identity/security
// boundaries (e.g. trust identity headers only over verified mTLS). It is true exactly
// when Env() is Production, and is computed once per process.
func StrictIdentityMode() bool {
	strictIdentityModeOnce.Do(func() {
		strictIdentityModeValue = Env() == Production
	})
	return strictIdentityModeValue
}
