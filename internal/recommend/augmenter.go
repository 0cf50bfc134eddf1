package recommend

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"

	"github.com/lehigh-university-libraries/shelfscanner/internal/llmjson"
	"github.com/lehigh-university-libraries/shelfscanner/internal/models"
	"github.com/lehigh-university-libraries/shelfscanner/internal/providers"
)

const systemPrompt = "You are a data-formatting robot. Output strictly valid JSON."

const promptTemplate = `You are an expert librarian. I am looking at a bookshelf with these books:
%s

For each book, provide:
1. A 'reason': A short, compelling 1-sentence hook on why I should read it.
2. A 'score': A recommendation score from 0 to 100 based on general critical acclaim and popularity.

Return ONLY a JSON object with a single key 'books' containing an array of objects.
Each object MUST have these exact keys: 'title', 'author', 'reason', 'score'.`

// Augmenter attaches a reason and score to identified books
type Augmenter struct {
	provider providers.Provider
	model    string
}

// New returns an augmenter that calls model on provider
func New(provider providers.Provider, model string) *Augmenter {
	if model == "" {
		model = "gpt-3.5-turbo"
	}
	return &Augmenter{provider: provider, model: model}
}

// Augment scores books in one batched call and orders them by descending
// score. Any failure returns the input unchanged with augmented false.
func (a *Augmenter) Augment(ctx context.Context, books []models.Book) ([]models.Book, bool) {
	if len(books) == 0 {
		return []models.Book{}, false
	}

	recommended, err := a.recommend(ctx, books)
	if err != nil {
		slog.Warn("Recommendation generation failed, returning books unscored", "count", len(books), "err", err)
		return books, false
	}

	sort.SliceStable(recommended, func(i, j int) bool {
		return *recommended[i].Score > *recommended[j].Score
	})

	slog.Info("Generated recommendations", "count", len(recommended))
	return recommended, true
}

func (a *Augmenter) recommend(ctx context.Context, books []models.Book) ([]models.Book, error) {
	type candidate struct {
		Title  string `json:"title"`
		Author string `json:"author"`
	}
	candidates := make([]candidate, 0, len(books))
	for _, b := range books {
		candidates = append(candidates, candidate{Title: b.Title, Author: b.Author})
	}
	listing, err := json.Marshal(candidates)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal books: %w", err)
	}

	response, err := a.provider.Complete(ctx, providers.Config{
		Model:       a.model,
		Temperature: 0.2,
		System:      systemPrompt,
		Prompt:      fmt.Sprintf(promptTemplate, listing),
		JSON:        true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to call recommendation model: %w", err)
	}

	recommended, err := llmjson.DecodeRecommendations(response)
	if err != nil {
		return nil, fmt.Errorf("failed to parse recommendation response: %w", err)
	}
	if len(recommended) == 0 {
		return nil, fmt.Errorf("recommendation response contained no books")
	}
	return recommended, nil
}
