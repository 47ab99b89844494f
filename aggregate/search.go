package aggregate

import (
	"context"
	"errors"

	"github.com/jonwraymond/tooldiscovery/index"
	"github.com/jonwraymond/toolfoundation/model"
)

// ErrSearchDisabled is returned by Search when the aggregator was built
// without EnableSearch.
var ErrSearchDisabled = errors.New("capability search disabled")

// searcher is the slice of index.Index the aggregator needs.
type searcher interface {
	Search(query string, limit int) ([]index.Summary, error)
}

// buildSearchIndex registers the merged actions into a fresh in-memory
// index. A new index per pass keeps removal trivial: capabilities of a
// vanished backend simply are not registered again.
func buildSearchIndex(records []*Record) searcher {
	idx := index.NewInMemoryIndex()
	for _, rec := range records {
		if rec.Action == nil {
			continue
		}
		tool := model.Tool{
			Tool:      *rec.Action,
			Namespace: rec.Backend,
			Tags:      model.NormalizeTags([]string{rec.Backend}),
		}
		_ = idx.RegisterTool(tool, model.NewLocalBackend(rec.NamespacedName))
	}
	return idx
}

// Search queries the merged action index. Summary IDs are rewritten to the
// namespaced "backend.name" form so results can be passed straight to the
// router.
func (a *Aggregator) Search(_ context.Context, query string, limit int) ([]index.Summary, error) {
	a.mu.RLock()
	idx := a.search
	a.mu.RUnlock()
	if idx == nil {
		return nil, ErrSearchDisabled
	}

	summaries, err := idx.Search(query, limit)
	if err != nil {
		return nil, err
	}
	for i := range summaries {
		summaries[i].ID = FormatID(summaries[i].Namespace, summaries[i].Name)
	}
	return summaries, nil
}
