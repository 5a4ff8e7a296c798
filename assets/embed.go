// Package assets embeds the SQL migrations and the default course seed so
// the server runs without any files next to the binary.
package assets

import (
	"embed"
	"io/fs"
)

//go:embed migrations/*.sql courses.yaml
var FS embed.FS

// Migrations returns the migrations directory as its own filesystem.
func Migrations() fs.FS {
	sub, err := fs.Sub(FS, "migrations")
	if err != nil {
		panic(err) // directory is embedded at build time
	}
	return sub
}

// DefaultCourses returns the embedded course seed file.
func DefaultCourses() ([]byte, error) {
	return FS.ReadFile("courses.yaml")
}
