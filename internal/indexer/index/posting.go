package index

// Posting records one document's occurrences of a term within one field.
type Posting struct {
	Doc       uint32
	Frequency int
	Positions []int
}

// PostingList is ordered by ascending Doc.
type PostingList []Posting

// Find returns the posting for doc using binary search.
func (pl PostingList) Find(doc uint32) (Posting, bool) {
	lo, hi := 0, len(pl)
	for lo < hi {
		mid := int(uint(lo+hi) >> 1)
		if pl[mid].Doc < doc {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo < len(pl) && pl[lo].Doc == doc {
		return pl[lo], true
	}
	return Posting{}, false
}

// FieldStats carries the BM25 length-normalisation inputs for one field.
type FieldStats struct {
	DocCount     int
	AvgDocLength float64
}
