package cohook

import "github.com/YingshuLu/cohook/internal/constants"

// Re-export tunables as public API.
const (
	DefaultTimeoutMS    = constants.DefaultTimeoutMS
	InfiniteTimeout     = constants.InfiniteTimeout
	InitialRegistrySize = constants.InitialRegistrySize
	MaxDirectFd         = constants.MaxDirectFd
)
