// Package pipeline orchestrates a news run: search, store, vectorize,
// analyze, card generation, sentiment analysis and the session memory
// update, in that order.
//
// Each stage is isolated. A failing stage is recorded in the Response with
// its error and elapsed time, and the run carries on with whatever the
// earlier stages produced. Only request validation fails a run outright:
//
//	o, err := pipeline.New(pipeline.Collaborators{
//		Search:     provider,
//		Ingestion:  ingest,
//		Vectorizer: processor,
//		Retriever:  searcher,
//		Model:      model,
//		Memory:     store.Memory,
//	})
//	resp, err := o.Run(ctx, pipeline.Request{Session: "desk", Keywords: []string{"chips"}})
//	if err != nil {
//		// invalid request, nothing ran
//	}
//	for _, w := range resp.Warnings {
//		log.Println(w)
//	}
//
// A run succeeds when the search found articles and storing them did not
// fail. Later stages degrade to warnings.
package pipeline
