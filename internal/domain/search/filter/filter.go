package filter

import "fmt"

// MaxValuesPerCondition bounds an any-of condition (e.g. a document ID list).
const MaxValuesPerCondition = 32

// Field names that a scope filter may constrain.
const (
	KeyDocumentID = "document_id"
	KeyUserID     = "user_id"
	KeyThreadID   = "thread_id"
)

// Expression is a conjunction of any-of tag conditions.
type Expression struct {
	must []Condition
}

// NewExpression creates an Expression from conditions.
func NewExpression(must ...Condition) Expression {
	return Expression{must: must}
}

// Must returns the conjunctive conditions.
func (e Expression) Must() []Condition { return e.must }

// IsEmpty reports whether the expression has no conditions.
func (e Expression) IsEmpty() bool { return len(e.must) == 0 }

// Values returns the allowed values for key, nil if key is unconstrained.
func (e Expression) Values(key string) []string {
	for _, c := range e.must {
		if c.key == key {
			return c.values
		}
	}
	return nil
}

// Matches evaluates the expression against flattened metadata.
// Used as a client-side post-filter and by in-memory backends.
func (e Expression) Matches(fields map[string]string) bool {
	for _, c := range e.must {
		if !c.matches(fields[c.key]) {
			return false
		}
	}
	return true
}

// Condition matches a tag field against one or more values.
type Condition struct {
	key    string
	values []string
}

// NewAnyOf creates a condition that matches when the field equals any value.
func NewAnyOf(key string, values ...string) (Condition, error) {
	if key == "" {
		return Condition{}, fmt.Errorf("filter key is required")
	}
	if len(values) == 0 {
		return Condition{}, fmt.Errorf("at least one value is required for key %q", key)
	}
	if len(values) > MaxValuesPerCondition {
		return Condition{}, fmt.Errorf("too many values for key %q (max %d)", key, MaxValuesPerCondition)
	}
	for _, v := range values {
		if v == "" {
			return Condition{}, fmt.Errorf("empty value for key %q", key)
		}
	}
	return Condition{key: key, values: values}, nil
}

// Key returns the field name.
func (c Condition) Key() string { return c.key }

// Values returns the accepted values.
func (c Condition) Values() []string { return c.values }

// IsSingle reports whether the condition is a plain equality.
func (c Condition) IsSingle() bool { return len(c.values) == 1 }

func (c Condition) matches(v string) bool {
	for _, want := range c.values {
		if v == want {
			return true
		}
	}
	return false
}

// Scope builds a filter from optional document, user and thread restrictions.
func Scope(documentIDs []string, userID, threadID string) (Expression, error) {
	var must []Condition
	if len(documentIDs) > 0 {
		c, err := NewAnyOf(KeyDocumentID, documentIDs...)
		if err != nil {
			return Expression{}, err
		}
		must = append(must, c)
	}
	if userID != "" {
		must = append(must, Condition{key: KeyUserID, values: []string{userID}})
	}
	if threadID != "" {
		must = append(must, Condition{key: KeyThreadID, values: []string{threadID}})
	}
	return Expression{must: must}, nil
}
