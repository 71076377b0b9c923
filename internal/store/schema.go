package store

import "embed"

//go:embed schema/*.sql schema/postgres/*.sql
var migrationsFS embed.FS

type embedSchemaFS struct{ fs embed.FS }

func (e embedSchemaFS) ReadDir(name string) ([]DirEntry, error) {
	entries, err := e.fs.ReadDir(name)
	if err != nil {
		return nil, err
	}
	out := make([]DirEntry, len(entries))
	for i, en := range entries {
		out[i] = en
	}
	return out, nil
}

func (e embedSchemaFS) ReadFile(name string) ([]byte, error) {
	return e.fs.ReadFile(name)
}

var defaultSchemaFS = embedSchemaFS{fs: migrationsFS}
