// Package memory implements the retrieval side of a conversational
// memory system: typed records with a queryable metadata vocabulary,
// a deterministic strategy engine that turns a message into retrieval
// plans and write-time tags, a fork-join retriever that executes those
// plans against a vector store, and an assembler that folds ranked
// results into a bounded generation context.
//
// Memories are namespaced by owner. The owner id is a structural
// parameter on every store operation, never a filter entry, so callers
// cannot widen a search past their own records.
//
// Architecture:
//   - Store: vector storage backend (memstore for tests, chromem
//     embedded, sqlite durable, qdrant remote)
//   - Embedder: text-to-vector conversion (mock for tests, openai,
//     ollama, onnx local, cached decorator)
//   - Strategy: message -> interaction type, retrieval plans, write tags
//   - Retriever: plan fan-out, merge, composite ranking
//   - Assembler: dedup, budget truncation, auditable context
//
// The engine package wires these into the per-turn
// retrieve -> generate -> write loop.
package memory
