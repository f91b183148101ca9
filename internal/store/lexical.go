package store

import "maps"

// LexicalState is whole-document term statistics for BM25.
type LexicalState struct {
	postings map[string]map[string]int // term -> doc -> tf
	docTerms map[string]map[string]int // doc -> term -> tf
	docLen   map[string]int
	totalLen int
}

// NewLexicalState returns an empty state.
func NewLexicalState() *LexicalState {
	return &LexicalState{
		postings: map[string]map[string]int{},
		docTerms: map[string]map[string]int{},
		docLen:   map[string]int{},
	}
}

// With returns a state where doc's term frequencies are tf, replacing any
// previous entry. Only the posting lists of touched terms are copied.
func (s *LexicalState) With(doc string, tf map[string]int) *LexicalState {
	next := s.Without(doc)
	if next == s {
		next = s.shallowCopy()
	}

	terms := make(map[string]int, len(tf))
	length := 0
	for term, n := range tf {
		if n <= 0 {
			continue
		}
		terms[term] = n
		length += n

		plist := maps.Clone(next.postings[term])
		if plist == nil {
			plist = make(map[string]int, 1)
		}
		plist[doc] = n
		next.postings[term] = plist
	}

	next.docTerms[doc] = terms
	next.docLen[doc] = length
	next.totalLen += length
	return next
}

// Without returns a state with doc removed. It returns s itself when doc
// is not present.
func (s *LexicalState) Without(doc string) *LexicalState {
	old, ok := s.docTerms[doc]
	if !ok {
		return s
	}

	next := s.shallowCopy()
	for term := range old {
		plist := maps.Clone(next.postings[term])
		delete(plist, doc)
		if len(plist) == 0 {
			delete(next.postings, term)
		} else {
			next.postings[term] = plist
		}
	}
	next.totalLen -= next.docLen[doc]
	delete(next.docTerms, doc)
	delete(next.docLen, doc)
	return next
}

func (s *LexicalState) shallowCopy() *LexicalState {
	return &LexicalState{
		postings: maps.Clone(s.postings),
		docTerms: maps.Clone(s.docTerms),
		docLen:   maps.Clone(s.docLen),
		totalLen: s.totalLen,
	}
}

// DocCount returns the number of indexed documents.
func (s *LexicalState) DocCount() int { return len(s.docLen) }

// TermCount returns the vocabulary size.
func (s *LexicalState) TermCount() int { return len(s.postings) }

// AvgDocLen returns the mean document length in terms.
func (s *LexicalState) AvgDocLen() float64 {
	if len(s.docLen) == 0 {
		return 0
	}
	return float64(s.totalLen) / float64(len(s.docLen))
}

// DocFreq returns the number of documents containing term.
func (s *LexicalState) DocFreq(term string) int { return len(s.postings[term]) }

// Postings returns doc -> tf for term. The map must not be modified.
func (s *LexicalState) Postings(term string) map[string]int { return s.postings[term] }

// DocLen returns the length of doc in terms.
func (s *LexicalState) DocLen(doc string) int { return s.docLen[doc] }

// Terms returns the term frequencies of doc. The map must not be modified.
func (s *LexicalState) Terms(doc string) map[string]int { return s.docTerms[doc] }

// Has reports whether doc is indexed.
func (s *LexicalState) Has(doc string) bool {
	_, ok := s.docLen[doc]
	return ok
}

// Export returns the per-document term frequencies for persistence.
func (s *LexicalState) Export() map[string]map[string]int {
	return s.docTerms
}

// LexicalFromTerms rebuilds a state from exported term frequencies.
func LexicalFromTerms(docTerms map[string]map[string]int) *LexicalState {
	s := NewLexicalState()
	for doc, tf := range docTerms {
		length := 0
		for term, n := range tf {
			plist := s.postings[term]
			if plist == nil {
				plist = map[string]int{}
				s.postings[term] = plist
			}
			plist[doc] = n
			length += n
		}
		s.docTerms[doc] = tf
		s.docLen[doc] = length
		s.totalLen += length
	}
	return s
}
