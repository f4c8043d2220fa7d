// Package domain holds the types shared by the engine, the resolvers and the
// adapters: workflow definitions, run state, events, assets, LLM requests and
// the sentinel errors used to classify failures.
package domain
