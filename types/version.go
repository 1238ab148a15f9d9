package types

// Version is the canonical project version.
// The CLI and the wire protocol share this version; a parent and worker
// built from different versions are not guaranteed to interoperate.
const Version = "0.2.0"
