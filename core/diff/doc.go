/*
Package diff compares and merges wire documents under the lens of a
schema descriptor tree.

Compute reports field-level changes between two documents, skipping
fields the owning service synchronizes itself and masking secret values
on both sides.

The merge half is a schema-aware three-way merge: given a common base
document and two descendants, a Strategy decides which side wins on
fields both changed. Everything here is pure; no tree is mutated.
*/
package diff
