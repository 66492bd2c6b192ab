// Package query assembles Mongo filters and aggregation pipelines from
// optional search parameters.
package query

import (
	"reflect"
	"regexp"
	"time"

	"github.com/juju/mgo/v3/bson"
)

type omitted struct{}

// Omit marks a criterion or stage that should be skipped.
var Omit interface{} = omitted{}

// Criterion is one field predicate of a filter.
type Criterion struct {
	Field     string
	Predicate interface{}
}

// Field builds a criterion.
func Field(name string, predicate interface{}) Criterion {
	return Criterion{Field: name, Predicate: predicate}
}

// BuildFilter merges criteria in order, skipping omitted ones. A field that
// appears twice accumulates: operator maps are merged, $in lists are
// unioned, and two plain values become an $in.
func BuildFilter(criteria ...Criterion) bson.M {
	filter := bson.M{}
	for _, c := range criteria {
		if c.Predicate == Omit {
			continue
		}
		existing, ok := filter[c.Field]
		if !ok {
			filter[c.Field] = c.Predicate
			continue
		}
		filter[c.Field] = merge(existing, c.Predicate)
	}
	return filter
}

func merge(earlier, later interface{}) interface{} {
	em, eok := earlier.(bson.M)
	lm, lok := later.(bson.M)
	switch {
	case eok && lok:
		out := make(bson.M, len(em)+len(lm))
		for k, v := range em {
			out[k] = v
		}
		for k, v := range lm {
			if k == "$in" {
				if prev, ok := out[k]; ok {
					out[k] = union(prev, v)
					continue
				}
			}
			out[k] = v
		}
		return out
	case eok:
		return merge(em, bson.M{"$eq": later})
	case lok:
		return merge(bson.M{"$eq": earlier}, lm)
	}
	return bson.M{"$in": union(earlier, later)}
}

// union concatenates two membership lists, dropping repeats of comparable
// values. Uncomparable values are kept as they come.
func union(a, b interface{}) []interface{} {
	var out []interface{}
	seen := map[interface{}]bool{}
	for _, list := range []interface{}{a, b} {
		for _, v := range asList(list) {
			if v != nil && !reflect.TypeOf(v).Comparable() {
				out = append(out, v)
				continue
			}
			if !seen[v] {
				seen[v] = true
				out = append(out, v)
			}
		}
	}
	return out
}

// asList flattens a slice of any element type. Anything else, including
// []byte, is a single value.
func asList(v interface{}) []interface{} {
	if l, ok := v.([]interface{}); ok {
		return l
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice || rv.Type().Elem().Kind() == reflect.Uint8 {
		return []interface{}{v}
	}
	out := make([]interface{}, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out
}

// Stage is one aggregation stage such as "$match".
type Stage struct {
	Name    string
	Payload interface{}
}

// BuildPipeline keeps every non-omitted stage in order. Stages never merge.
func BuildPipeline(stages ...Stage) []bson.M {
	pipeline := make([]bson.M, 0, len(stages))
	for _, s := range stages {
		if s.Payload == Omit {
			continue
		}
		pipeline = append(pipeline, bson.M{s.Name: s.Payload})
	}
	return pipeline
}

// Value omits the zero value of its type.
func Value[T comparable](v T) interface{} {
	var zero T
	if v == zero {
		return Omit
	}
	return v
}

// Regex matches a case-insensitive substring. Empty input is omitted. The
// operator form lets it merge with other predicates on the same field.
func Regex(s string) interface{} {
	if s == "" {
		return Omit
	}
	return bson.M{"$regex": regexp.QuoteMeta(s), "$options": "i"}
}

// Exact matches the whole value case-insensitively.
func Exact(s string) interface{} {
	if s == "" {
		return Omit
	}
	return bson.M{"$regex": "^" + regexp.QuoteMeta(s) + "$", "$options": "i"}
}

// OneOf matches any of values. An empty list is omitted.
func OneOf[T any](values []T) interface{} {
	if len(values) == 0 {
		return Omit
	}
	return bson.M{"$in": values}
}

// NoneOf excludes values. An empty list is omitted.
func NoneOf[T any](values []T) interface{} {
	if len(values) == 0 {
		return Omit
	}
	return bson.M{"$nin": values}
}

// Between builds an inclusive range from optional bounds.
func Between[T any](lo, hi *T) interface{} {
	if lo == nil && hi == nil {
		return Omit
	}
	r := bson.M{}
	if lo != nil {
		r["$gte"] = *lo
	}
	if hi != nil {
		r["$lte"] = *hi
	}
	return r
}

// Since is Between for a time window given as zero, one or two instants.
func Since(window []time.Time) interface{} {
	switch len(window) {
	case 0:
		return Omit
	case 1:
		return Between(&window[0], nil)
	}
	return Between(&window[0], &window[1])
}
