// Package constants holds tunables shared across the runtime packages.
package constants

// DefaultTimeoutMS is the per-descriptor readiness timeout, in
// milliseconds, applied to a newly created managed record. listen()
// overrides this to InfiniteTimeout.
const DefaultTimeoutMS = 30_000

// InfiniteTimeout marks a record as having no readiness deadline.
const InfiniteTimeout = -1

// InitialRegistrySize is the starting capacity of the direct-indexed
// descriptor table. fds below this value never touch the map fallback.
const InitialRegistrySize = 256

// MaxDirectFd bounds how large a direct-indexed slot the registry will
// grow to before falling back to a map for sparse high fds.
const MaxDirectFd = 1 << 16
