package dataset

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
)

// ReadOptions tunes ReadFile for formats that need it.
type ReadOptions struct {
	// Sheet selects a worksheet for .xlsx inputs; empty means the first sheet.
	Sheet string
	// Delimiter overrides the delimiter sniffed from the extension.
	Delimiter rune
}

// ReadFile loads a table, picking the reader from the file extension.
func ReadFile(ctx context.Context, path string, opts ReadOptions) (*Table, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".csv", ".txt", ".tsv":
		return ReadCSV(path, opts.Delimiter)
	case ".xlsx":
		return ReadXLSX(path, opts.Sheet)
	case ".parquet", ".pq":
		return ReadParquet(ctx, path)
	default:
		return nil, fmt.Errorf("unsupported file type %q: want .csv, .tsv, .txt, .xlsx or .parquet", ext)
	}
}
