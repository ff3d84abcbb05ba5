package run

import (
	"context"
	"fmt"

	"github.com/metalagman/tclink/internal/document"
)

// Acceptance criteria id sources, in resolution order.
const (
	SourceFlags    = "flags"
	SourceDocument = "document"
	SourceConfig   = "config"
	SourceCatalog  = "catalog"
	SourceNone     = "none"
)

// IDSource yields an ordered list of known acceptance criteria ids.
type IDSource interface {
	IDs(ctx context.Context) ([]string, error)
}

// Resolver picks the known acceptance criteria ids for a document. The first
// non-empty source wins: flags, the document itself, config, then the catalog.
type Resolver struct {
	Flags   []string
	Config  []string
	Catalog IDSource
}

// Resolve returns the ids and the name of the source they came from. When no
// source has ids it returns an empty list and SourceNone.
func (r Resolver) Resolve(ctx context.Context, doc *document.Document) ([]string, string, error) {
	if len(r.Flags) > 0 {
		return r.Flags, SourceFlags, nil
	}
	if doc != nil && len(doc.KnownACIDs) > 0 {
		return doc.KnownACIDs, SourceDocument, nil
	}
	if len(r.Config) > 0 {
		return r.Config, SourceConfig, nil
	}
	if r.Catalog != nil {
		ids, err := r.Catalog.IDs(ctx)
		if err != nil {
			return nil, "", fmt.Errorf("load catalog ids: %w", err)
		}
		if len(ids) > 0 {
			return ids, SourceCatalog, nil
		}
	}
	return nil, SourceNone, nil
}
