// Package merger keeps the best-scoring documents of a result set with a
// bounded min-heap.
package merger

import (
	"container/heap"

	"github.com/Rifat977/search-bench/internal/searcher/ranker"
)

// TopK retains the k highest-scoring documents pushed into it. Equal scores
// prefer the lower document position.
type TopK struct {
	k int
	h scoredDocHeap
}

func NewTopK(k int) *TopK {
	if k < 0 {
		k = 0
	}
	return &TopK{k: k, h: make(scoredDocHeap, 0, min(k, 1024))}
}

func (t *TopK) Push(doc ranker.ScoredDoc) {
	if t.k == 0 {
		return
	}
	if t.h.Len() < t.k {
		heap.Push(&t.h, doc)
		return
	}
	if worse(doc, t.h[0]) {
		return
	}
	t.h[0] = doc
	heap.Fix(&t.h, 0)
}

// Results drains the heap, best first.
func (t *TopK) Results() []ranker.ScoredDoc {
	result := make([]ranker.ScoredDoc, t.h.Len())
	for i := len(result) - 1; i >= 0; i-- {
		result[i] = heap.Pop(&t.h).(ranker.ScoredDoc)
	}
	return result
}

// worse reports whether a ranks below b.
func worse(a, b ranker.ScoredDoc) bool {
	if a.Score != b.Score {
		return a.Score < b.Score
	}
	return a.Doc > b.Doc
}

type scoredDocHeap []ranker.ScoredDoc

func (h scoredDocHeap) Len() int { return len(h) }

func (h scoredDocHeap) Less(i, j int) bool { return worse(h[i], h[j]) }

func (h scoredDocHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *scoredDocHeap) Push(x interface{}) {
	*h = append(*h, x.(ranker.ScoredDoc))
}

func (h *scoredDocHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
