package appfs

import "embed"

// FS holds the database migrations and the email templates.
// all: keeps the "_"-prefixed base templates.
//
//go:embed migrations all:assets
var FS embed.FS
