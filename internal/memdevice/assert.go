package memdevice

import "github.com/calvinalkan/clockcache"

// Compile-time interface check, same pattern as teacher's own
// `var _ File = (*os.File)(nil)` in internal/fs/fs.go.
var _ clockcache.IODevice = (*Device)(nil)
