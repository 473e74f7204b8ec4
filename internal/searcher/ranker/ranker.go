// Package ranker holds the BM25 scoring functions used by the executor.
package ranker

import (
	"math"
)

const (
	k1 = 1.2
	b  = 0.75
)

type ScoredDoc struct {
	Doc   uint32  `json:"doc"`
	Score float64 `json:"score"`
}

// FieldParams carries the collection statistics of one field.
type FieldParams struct {
	TotalDocs    int
	AvgDocLength float64
}

// IDF is the BM25 inverse document frequency of a term found in docFreq of
// totalDocs documents.
func IDF(totalDocs, docFreq int) float64 {
	numerator := float64(totalDocs) - float64(docFreq)
	denominator := float64(docFreq) + 0.5
	return math.Log(numerator/denominator + 1)
}

// Score is the BM25 contribution of a term (or phrase) occurring termFreq
// times in a field of docLength tokens.
func Score(idf float64, termFreq, docLength int, params FieldParams) float64 {
	return idf * tfNorm(float64(termFreq), float64(docLength), params.AvgDocLength)
}

func tfNorm(termFreq float64, docLength float64, avgDocLength float64) float64 {
	if avgDocLength == 0 || termFreq == 0 {
		return 0
	}
	lengthRatio := docLength / avgDocLength
	denominator := termFreq + k1*(1-b+b*lengthRatio)
	return (termFreq * (k1 + 1)) / denominator
}

// Round truncates score noise to four decimals so equal-relevance documents
// compare equal and fall back to document order.
func Round(score float64) float64 {
	return math.Round(score*10000) / 10000
}

// PhraseFrequency counts the start positions p such that positions[i]
// contains p+i for every i. Each positions slice must be ascending.
func PhraseFrequency(positions [][]int) int {
	if len(positions) == 0 {
		return 0
	}
	count := 0
	cursors := make([]int, len(positions))
	for _, start := range positions[0] {
		matched := true
		for i := 1; i < len(positions); i++ {
			want := start + i
			list := positions[i]
			for cursors[i] < len(list) && list[cursors[i]] < want {
				cursors[i]++
			}
			if cursors[i] >= len(list) {
				return count
			}
			if list[cursors[i]] != want {
				matched = false
				break
			}
		}
		if matched {
			count++
		}
	}
	return count
}
