package db

import "embed"

// MigrationFS holds the schema for registrations, consents and RSVP records.
// Applied by internal/db/migrate (cmd/migrate, and cmd/bot at startup with -migrate).
//
//go:embed migrations/*.sql
var MigrationFS embed.FS
