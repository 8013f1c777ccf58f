// Package fingerprint holds the corpus-side helpers shared by every
// fingerprint store: MinHash similarity, LSH banding used to prefilter fuzzy
// candidates, binary codecs for signatures and embeddings, and the YAML
// loader behind `filegate ingest`.
//
// Store implementations live in the storage subpackage.
package fingerprint
