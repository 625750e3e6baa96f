// Package library is the embeddable public facade over the Library Engine:
// a vector+text search and knowledge-store subsystem built on Stacks
// (internal/stacks), the coordinating store that owns volumes, every
// derived index, and the adaptive learning engine.
//
// # Usage
//
//	lib, err := library.Open(ctx, library.Options{Path: "./data/library.simk"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer lib.Close(ctx)
//
//	id, err := lib.Add(ctx, "the quick brown fox", []float32{0.1, 0.2, 0.3}, nil)
//	results, err := lib.Search(library.SearchOptions{
//	    QueryEmbedding: queryVec,
//	    MaxResults:     5,
//	})
//
// # Thread Safety
//
// A *Library is safe for concurrent use: mutations serialize through the
// underlying Stacks write chain and saves through a separate chain. Reads
// do not queue on either chain, but they take the store's mutex and so wait
// while a mutation is being applied or a snapshot is being encoded.
package library
