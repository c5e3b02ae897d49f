// Package discovery turns public company directories, feeds, and local files
// into a deduplicated list of candidate company domains.
//
// Each configured Source names a parser from the Registry. The Aggregator
// runs sources one at a time, isolates their failures, paces between them,
// and keeps the first record seen for each registrable domain.
package discovery
