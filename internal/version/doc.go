// Package version orders version-like strings newest first.
//
// A batch is ordered by exactly one of three tiers:
//
//   - dotted: optional single letter prefix and up to three numeric
//     components ("1.20", "v1.7.10"); missing components are 0
//   - trailing integer: the last run of digits ("build117")
//   - lexical: raw byte comparison
//
// The finest tier that every element of the batch parses under is used for
// the whole batch. Mixing tiers inside one comparison would not be a total
// order, so a single malformed entry degrades the precision of the batch.
// Sort reports that degradation as a *FallbackWarning.
package version
