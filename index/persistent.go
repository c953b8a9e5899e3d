package index

import (
	"context"

	"github.com/poiesic/newsdesk/core"
	"github.com/poiesic/newsdesk/storage"
)

// Persistent is an Index stored in a storage.VectorRepository under a
// name. Entries survive restarts; delete-by-source uses the repository's
// source index instead of a rebuild.
type Persistent struct {
	repo storage.VectorRepository
	name string
}

var _ Index = (*Persistent)(nil)

// NewPersistent creates an index over repo named name.
func NewPersistent(repo storage.VectorRepository, name string) *Persistent {
	return &Persistent{repo: repo, name: name}
}

// Init fixes the dimension.
func (p *Persistent) Init(ctx context.Context, dim int) error {
	if dim < 1 {
		return ErrInvalidDimension
	}
	return p.repo.InitDimension(ctx, p.name, dim)
}

// Dimension returns the stored dimension.
func (p *Persistent) Dimension(ctx context.Context) (int, error) {
	return p.repo.Dimension(ctx, p.name)
}

// Upsert validates entries and writes them in one transaction.
func (p *Persistent) Upsert(ctx context.Context, entries ...core.VectorEntry) error {
	if len(entries) == 0 {
		return nil
	}
	if _, err := validateEntries(0, entries); err != nil {
		return err
	}
	// the repository rechecks the stored dimension inside its transaction
	return p.repo.UpsertVectors(ctx, p.name, entries...)
}

// QuerySimilar scans the stored entries.
func (p *Persistent) QuerySimilar(ctx context.Context, vector []float32, topK int) ([]core.Match, error) {
	if topK < 1 {
		return nil, ErrInvalidTopK
	}

	dim, err := p.repo.Dimension(ctx, p.name)
	if err != nil {
		return nil, err
	}
	if dim == 0 {
		return []core.Match{}, nil
	}
	if len(vector) != dim {
		return nil, dimensionMismatch(dim, len(vector))
	}

	var candidates []candidate
	err = p.repo.ScanVectors(ctx, p.name, func(v *storage.StoredVector) error {
		candidates = append(candidates, candidate{
			match: core.Match{
				ID:       v.Entry.ID,
				Score:    CosineSimilarity(vector, v.Entry.Vector),
				Metadata: v.Entry.Metadata,
			},
			seq: v.Seq,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rank(candidates, topK), nil
}

// DeleteBySource removes the source's entries.
func (p *Persistent) DeleteBySource(ctx context.Context, sourceID string) (int, error) {
	return p.repo.DeleteVectorsBySource(ctx, p.name, sourceID)
}

// Len returns the number of stored entries.
func (p *Persistent) Len(ctx context.Context) (int, error) {
	return p.repo.CountVectors(ctx, p.name)
}

// Reset drops every stored entry and the dimension.
func (p *Persistent) Reset(ctx context.Context) error {
	return p.repo.DropVectors(ctx, p.name)
}
