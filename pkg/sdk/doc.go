// Package lexrag embeds the lexrag document pipeline in a Go program:
// upload legal documents, let the background workers chunk and index them,
// then run hybrid search or ask questions with cited answers.
//
// The client talks to Redis 8+ (or Valkey without BM25) directly; no HTTP
// service is involved.
//
//	client, _ := lexrag.New(ctx,
//	    lexrag.WithRedis("localhost:6379", ""),
//	    lexrag.WithEmbedder(myEmbedder),
//	    lexrag.WithCompleter(myCompleter),
//	)
//	defer client.Close()
//
//	doc, _ := client.Documents().Upload(ctx, lexrag.Upload{Filename: "msa.pdf", Data: pdf})
//	doc, _ = client.Documents().Wait(ctx, doc.ID, time.Second)
//
//	res, _ := client.Query("Can either party terminate the agreement?").
//	    Documents(doc.ID).Limit(5).Do(ctx)
//	ans, _ := client.Query("What is the notice period?").Ask(ctx)
package lexrag
