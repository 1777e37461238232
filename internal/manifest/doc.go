// Package manifest loads the declarative file listing the repositories
// repoteer manages.
//
// Manifests are TOML documents with [[repos]] entries (YAML is accepted as
// well); each entry names a remote URL, an absolute local path, and optional
// branch include and exclude sets. The default manifest lives under the user
// configuration directory at repoteer/manifest.toml.
package manifest
