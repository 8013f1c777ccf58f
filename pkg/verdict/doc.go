// Package verdict defines the shared data model of the download decision
// core: file descriptors, corpus fingerprints, per-method similarity signals,
// decisions and the error taxonomy used across the request path.
//
// # Flow
//
//	Request → NewDescriptor (validation)
//	     ↓
//	cache.Resolve (hit returns immediately)
//	     ↓
//	orchestrator.Run → []Signal
//	     ↓
//	scoring.Engine.Score → Score
//	     ↓
//	decision.Engine.Decide → Decision
//
// Confidence follows a risk-increasing convention: higher values mean
// stronger evidence that a file is malicious.
//
// Signals reference fingerprints by a copied MatchRef and never hold
// pointers into a store, so a Decision stays immutable after the corpus
// changes.
package verdict
