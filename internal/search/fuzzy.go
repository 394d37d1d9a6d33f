// Package search finds packages across buckets by fuzzy or substring match.
package search

import (
	"sort"
	"strings"

	"github.com/sahilm/fuzzy"
)

// Entry is one searchable package listed by a bucket.
type Entry struct {
	Name        string
	Bucket      string
	Type        string
	Version     string
	Description string
	// Remote is set when the bucket lists the package as a pointer to another repository.
	Remote string
}

// Result is a matched entry.
type Result struct {
	Entry Entry
	Score int // Higher is better
}

// entries adapts a slice for fuzzy.FindFrom.
type entries []Entry

func (e entries) String(i int) string {
	en := e[i]
	parts := []string{en.Name}
	if en.Description != "" {
		parts = append(parts, en.Description)
	}
	if en.Type != "" {
		parts = append(parts, en.Type)
	}
	return strings.ToLower(strings.Join(parts, " "))
}

func (e entries) Len() int {
	return len(e)
}

// FuzzySearch ranks every bucket's entries against query.
// An empty query returns everything in bucket then name order.
func FuzzySearch(byBucket map[string][]Entry, query string) []Result {
	query = strings.ToLower(strings.TrimSpace(query))
	var results []Result

	for _, bucket := range sortedKeys(byBucket) {
		list := byBucket[bucket]
		if len(list) == 0 {
			continue
		}

		if query == "" {
			for _, e := range list {
				results = append(results, Result{Entry: e})
			}
			continue
		}

		for _, match := range fuzzy.FindFrom(query, entries(list)) {
			results = append(results, Result{
				Entry: list[match.Index],
				Score: match.Score,
			})
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if results[i].Entry.Bucket != results[j].Entry.Bucket {
			return results[i].Entry.Bucket < results[j].Entry.Bucket
		}
		return results[i].Entry.Name < results[j].Entry.Name
	})

	return results
}

// SimpleSearch keeps entries whose name, description or type contains query.
func SimpleSearch(byBucket map[string][]Entry, query string) []Result {
	query = strings.ToLower(query)
	var results []Result

	for _, bucket := range sortedKeys(byBucket) {
		for _, e := range byBucket[bucket] {
			if matchesQuery(e, query) {
				results = append(results, Result{Entry: e, Score: 100})
			}
		}
	}
	return results
}

func matchesQuery(e Entry, query string) bool {
	for _, field := range []string{e.Name, e.Description, e.Type} {
		if strings.Contains(strings.ToLower(field), query) {
			return true
		}
	}
	return false
}

func sortedKeys(m map[string][]Entry) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
