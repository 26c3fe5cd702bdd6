package core

// Stats summarises a filtered collection.
type Stats[T any] struct {
	Total   float64 `json:"total"`
	Count   int     `json:"count"`
	Average float64 `json:"average"`
	Items   []T     `json:"items"`
}

// Aggregate sums amount over the records accepted by predicate. A nil
// predicate accepts everything. Month filtering is expected to have happened
// already. Items is never nil.
func Aggregate[T any](records []T, amount func(T) float64, predicate func(T) bool) Stats[T] {
	s := Stats[T]{Items: make([]T, 0, len(records))}
	for _, r := range records {
		if predicate != nil && !predicate(r) {
			continue
		}
		s.Items = append(s.Items, r)
		s.Total += amount(r)
	}
	s.Count = len(s.Items)
	if s.Count > 0 {
		s.Average = s.Total / float64(s.Count)
	}
	return s
}

// SumBy totals amount per key, e.g. income per category.
func SumBy[T any](records []T, key func(T) string, amount func(T) float64) map[string]float64 {
	out := make(map[string]float64)
	for _, r := range records {
		out[key(r)] += amount(r)
	}
	return out
}
