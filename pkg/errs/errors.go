// Package errs defines the sentinel error kinds shared across plugsite's
// packages and small wrapping helpers used in their place of ad-hoc
// fmt.Errorf chains.
package errs

import "fmt"

// Sentinel error kinds. Each corresponds to one of the Error Kinds named
// in the reconciliation design: network/transport, catalog integrity,
// verification, dependency, and installation-location errors.
var (
	// Network / transport.
	ErrNetworkUnavailable = fmt.Errorf("network unavailable")
	ErrProxyAuthRequired  = fmt.Errorf("proxy authentication required")
	ErrTransportUnavailable = fmt.Errorf("no transport registered for protocol")

	// Catalog / site.
	ErrCorruptCatalog  = fmt.Errorf("corrupt catalog")
	ErrSiteSkew        = fmt.Errorf("remote catalog moved since last sync")
	ErrLockContested   = fmt.Errorf("remote catalog lock is held by another writer")
	ErrShadowConflict  = fmt.Errorf("two sites of equal rank claim the same filename")

	// Verification.
	ErrDigestMismatch    = fmt.Errorf("digest mismatch")
	ErrSizeMismatch      = fmt.Errorf("size mismatch")
	ErrTimestampSkew     = fmt.Errorf("local file changed mid-operation")
	ErrPlatformMismatch  = fmt.Errorf("file does not apply to the running platform")

	// Dependency / conflict.
	ErrDependencyUnresolved = fmt.Errorf("dependency could not be resolved")
	ErrDependencyCycle      = fmt.Errorf("dependency cycle detected")
	ErrMultipleLocalVersions = fmt.Errorf("multiple local versions of the same file")

	// Installation.
	ErrProtectedLocation = fmt.Errorf("path is a protected installation location")
	ErrReadOnlyRoot       = fmt.Errorf("installation root is read-only")
	ErrCriticalConflict   = fmt.Errorf("unresolved critical conflict blocks this operation")
	ErrFileNotFound       = fmt.Errorf("file not found")
	ErrInvalidAction      = fmt.Errorf("action is not valid for this file's status")
)

// Wrap wraps err with additional context, returning nil if err is nil.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// Wrapf wraps err with additional formatted context, returning nil if err is nil.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
