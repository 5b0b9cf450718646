// Package search finds clips by their free-text descriptions.
//
// Descriptions are turned into fixed-size hashed bag-of-words vectors and
// stored alongside the clip. A query is vectorised the same way and compared
// against every stored vector by cosine similarity; the catalog is small
// enough that a brute-force pass is fine.
package search
