package retrieval

import "github.com/poiesic/newsdesk/core"

// Monitor provides hooks to observe a retrieval.
// Implement this interface to track intermediate steps and results.
type Monitor interface {
	Start(session, query string)
	AfterSemanticSearch(matches []core.Match)
	AfterKeywordSearch(ids []core.ID)
	AfterRecordRetrieval(records []*core.NewsRecord)
	SemanticAndKeywordHit(record *core.NewsRecord)
	SemanticHit(record *core.NewsRecord)
	KeywordHit(record *core.NewsRecord)
	Finish(hits []*Hit)
}

// noopMonitor is a no-op implementation of Monitor
type noopMonitor struct{}

var _ Monitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_, _ string) {}
func (n *noopMonitor) AfterSemanticSearch(_ []core.Match) {}
func (n *noopMonitor) AfterKeywordSearch(_ []core.ID) {}
func (n *noopMonitor) AfterRecordRetrieval(_ []*core.NewsRecord) {}
func (n *noopMonitor) SemanticAndKeywordHit(_ *core.NewsRecord) {}
func (n *noopMonitor) SemanticHit(_ *core.NewsRecord) {}
func (n *noopMonitor) KeywordHit(_ *core.NewsRecord) {}
func (n *noopMonitor) Finish(_ []*Hit) {}
