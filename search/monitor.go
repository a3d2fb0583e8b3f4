package search

import (
	"github.com/poiesic/policykb/core"
)

// SearchMonitor provides hooks to observe a hybrid search.
// Implement this interface to inspect the candidates of each leg before they are combined.
type SearchMonitor interface {
	Start(query string)
	AfterVectorSearch(results []*core.ChunkResult)
	AfterTextSearch(terms []string, results []*core.ChunkResult)
	Finish(results []*core.ChunkResult)
}

// noopMonitor is a no-op implementation of SearchMonitor
type noopMonitor struct{}

var _ SearchMonitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_ string)                                    {}
func (n *noopMonitor) AfterVectorSearch(_ []*core.ChunkResult)           {}
func (n *noopMonitor) AfterTextSearch(_ []string, _ []*core.ChunkResult) {}
func (n *noopMonitor) Finish(_ []*core.ChunkResult)                      {}
