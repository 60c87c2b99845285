package index

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
)

// Generate retrieves the most relevant chunks for query and asks the chat
// model for an answer conditioned on them. Empty retrieval and empty
// generation are expected outcomes surfaced as sentinel errors, not faults.
func (q *Qdrant) Generate(ctx context.Context, query, repository string) (*GenerateResult, error) {
	var filter *SearchFilter
	if repository != "" {
		filter = &SearchFilter{Repository: repository}
	}

	chunks, err := q.Search(ctx, query, filter, q.searchLimit)
	if err != nil {
		return nil, fmt.Errorf("retrieve context: %w", err)
	}
	if len(chunks) == 0 {
		return nil, ErrNoResults
	}

	prompt := buildPrompt(query, chunks)

	resp, err := q.chat.Client().Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		Model: openai.ChatModel(q.chatModel),
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}

	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		q.logger.Warn("model returned empty completion", "query_length", len(query))
		return nil, ErrNoResponse
	}

	return &GenerateResult{
		Response:   resp.Choices[0].Message.Content,
		UsedChunks: chunks,
		Model:      q.chatModel,
	}, nil
}

// buildPrompt assembles the retrieved chunks and the question into a single
// analysis prompt.
func buildPrompt(query string, chunks []SearchResult) string {
	var b strings.Builder
	b.WriteString("You are analyzing code from a GitHub repository. Based on these code chunks:\n\n")
	for i, c := range chunks {
		fmt.Fprintf(&b, "--- Chunk %d (%s) ---\n%s\n\n", i+1, c.Path, c.Text)
	}
	b.WriteString("Answer this specific question: ")
	b.WriteString(query)
	b.WriteString("\nBe specific about the files and functionality found in the actual code.")
	return b.String()
}
