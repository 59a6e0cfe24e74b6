// Package migrations bundles the install and update scripts shipped with
// apien. Deployments may point the migrator at a directory or an S3 prefix
// instead.
package migrations

import "embed"

// FS holds every bundled script at its root.
//
//go:embed *.sql
var FS embed.FS
