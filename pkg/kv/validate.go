package kv

import "fmt"

// MaxReplicas is the largest replica count the store accepts.
const MaxReplicas = 127

// Validate checks that the key has at least one segment and no empty ones.
func (k Key) Validate() error {
	if len(k) == 0 {
		return &ValidationError{Field: "key", Reason: "key must not be empty"}
	}
	for i, part := range k {
		if part == "" {
			return &ValidationError{Field: "key", Reason: fmt.Sprintf("segment %d is empty; all key parts must not be empty", i)}
		}
	}
	return nil
}

// Validate checks 1 <= N <= MaxReplicas, 1 <= R <= N and 1 <= W <= N.
func (q Quorum) Validate() error {
	switch {
	case q.N <= 0:
		return &ValidationError{Field: "n", Reason: "N must be greater than zero"}
	case q.N > MaxReplicas:
		return &ValidationError{Field: "n", Reason: fmt.Sprintf("N must be at most %d", MaxReplicas)}
	case q.R <= 0:
		return &ValidationError{Field: "r", Reason: "R must be greater than zero"}
	case q.W <= 0:
		return &ValidationError{Field: "w", Reason: "W must be greater than zero"}
	case q.R > q.N:
		return &ValidationError{Field: "r", Reason: "R must be less than or equal to N"}
	case q.W > q.N:
		return &ValidationError{Field: "w", Reason: "W must be less than or equal to N"}
	}
	return nil
}

func validateTarget(key Key, q Quorum) error {
	if err := key.Validate(); err != nil {
		return err
	}
	return q.Validate()
}

func validateBound(field string, k Key) error {
	if k == nil {
		return nil
	}
	if err := k.Validate(); err != nil {
		verr := err.(*ValidationError)
		verr.Field = field
		return verr
	}
	return nil
}
