package appfs

import "embed"

// FS holds the SQL migrations, email templates and static assets.
//
//go:embed migrations templates assets
var FS embed.FS
