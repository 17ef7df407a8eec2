/*
Package doubtflow runs pre-authored doubt-resolution flows: branching chat
scripts of Question, Answer and AI steps that guide a learner towards an
answer and hand free-text questions to an AI completion service.

# Concept

A flow is a graph of nodes. Question and Answer nodes offer options that
point at other nodes; AI nodes accept a free-text question, forward it with
the flow's subject and the session's AI history, and append the reply (or a
recoverable apology) to the transcript. Authors build flows through a
node/edge canvas that is converted into the canonical flow on save.

The package is laid out hexagonally: the model lives in pkg/domain, the
driven interfaces in pkg/ports and the adapters (memory, file, redis, openai,
http, mcp) under pkg/adapters. Engine wires the pieces for embedding.

# Usage

	eng, err := doubtflow.New(ctx,
		doubtflow.WithDefaultFlows(),
		doubtflow.WithEscalator(openai.New(openai.Config{APIKey: key})),
	)
	if err != nil {
		log.Fatal(err)
	}

	s, err := eng.Start(ctx, "math-algebra-flow")
	if err != nil {
		log.Fatal(err)
	}
	last, _ := s.LastMessage()
	s, err = eng.Select(ctx, s.ID, last.Options[0].ID)
*/
package doubtflow
