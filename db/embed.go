// Package db provides embedded database schema and seed files.
package db

import _ "embed"

// Schema contains the DDL statements for all storefront tables. Every
// statement is idempotent so it can run on each start.
//
//go:embed migrations/001_schema.sql
var Schema string

// SeedProducts is the default catalog loaded by seed-db, as a JSON array
// feed.
//
//go:embed seed/products.json
var SeedProducts []byte
