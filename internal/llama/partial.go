package llama

import "fmt"

// Partial is the outcome of merging several independent fetches.
type Partial[T any] struct {
	Data     []T
	Warnings []string
}

// MergePartial keeps the data of every successful response and turns each
// failure into a warning naming its position. It never fails.
func MergePartial[T any](results []Response[T]) Partial[T] {
	out := Partial[T]{
		Data:     make([]T, 0, len(results)),
		Warnings: []string{},
	}
	for i, r := range results {
		if r.Error != "" {
			out.Warnings = append(out.Warnings, fmt.Sprintf("API %d failed: %s", i, r.Error))
			continue
		}
		if r.Data != nil {
			out.Data = append(out.Data, *r.Data)
		}
	}
	return out
}
