package recommend

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/lehigh-university-libraries/shelfscanner/internal/models"
	"github.com/lehigh-university-libraries/shelfscanner/internal/providers"
)

type stubProvider struct {
	response string
	err      error
	calls    []providers.Config
}

func (s *stubProvider) Complete(ctx context.Context, config providers.Config) (string, error) {
	s.calls = append(s.calls, config)
	return s.response, s.err
}

func TestAugmentEmptySkipsCall(t *testing.T) {
	p := &stubProvider{}
	a := New(p, "")

	got, augmented := a.Augment(context.Background(), nil)
	if len(got) != 0 || augmented {
		t.Errorf("Expected empty unaugmented result, got %v %v", got, augmented)
	}
	if len(p.calls) != 0 {
		t.Errorf("Expected no provider call, got %d", len(p.calls))
	}
}

func TestAugmentSortsByScore(t *testing.T) {
	p := &stubProvider{response: `{"books":[
		{"title":"A","author":"a","reason":"r","score":40},
		{"title":"B","author":"b","reason":"r","score":90},
		{"title":"C","author":"c","reason":"r","score":40},
		{"title":"D","author":"d","reason":"r","score":90}
	]}`}
	a := New(p, "gpt-3.5-turbo")

	input := []models.Book{{Title: "A"}, {Title: "B"}, {Title: "C"}, {Title: "D"}}
	got, augmented := a.Augment(context.Background(), input)
	if !augmented {
		t.Fatal("Expected augmentation to apply")
	}

	want := []string{"B", "D", "A", "C"}
	if len(got) != len(want) {
		t.Fatalf("Expected %d books, got %d", len(want), len(got))
	}
	for i, title := range want {
		if got[i].Title != title {
			t.Errorf("Position %d: expected %s, got %s", i, title, got[i].Title)
		}
	}

	if len(p.calls) != 1 {
		t.Fatalf("Expected exactly one batched call, got %d", len(p.calls))
	}
	call := p.calls[0]
	if !call.JSON || call.Model != "gpt-3.5-turbo" {
		t.Errorf("Unexpected request: %+v", call)
	}
	if !strings.Contains(call.Prompt, `"title":"A"`) || !strings.Contains(call.Prompt, `"title":"D"`) {
		t.Errorf("Expected all books in prompt, got %s", call.Prompt)
	}
}

func TestAugmentDune(t *testing.T) {
	p := &stubProvider{response: `{"books":[{"title":"Dune","author":"Frank Herbert","reason":"A landmark of science fiction.","score":95}]}`}
	got, augmented := New(p, "").Augment(context.Background(), []models.Book{{Title: "Dune", Author: "Frank Herbert"}})

	if !augmented || len(got) != 1 {
		t.Fatalf("Expected one augmented book, got %v %v", got, augmented)
	}
	if got[0].Score == nil || *got[0].Score != 95 {
		t.Errorf("Expected score 95, got %v", got[0].Score)
	}
	if got[0].Reason == "" {
		t.Error("Expected a reason")
	}
}

func TestAugmentFailureReturnsInput(t *testing.T) {
	tests := []struct {
		name     string
		provider *stubProvider
	}{
		{name: "call error", provider: &stubProvider{err: errors.New("rate limited")}},
		{name: "malformed json", provider: &stubProvider{response: `{"books": [`}},
		{name: "score out of range", provider: &stubProvider{response: `{"books":[{"title":"Dune","author":"Frank Herbert","reason":"r","score":250}]}`}},
		{name: "missing score", provider: &stubProvider{response: `{"books":[{"title":"Dune","author":"Frank Herbert","reason":"r"}]}`}},
		{name: "empty books", provider: &stubProvider{response: `{"books":[]}`}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := []models.Book{{Title: "Dune", Author: "Frank Herbert"}, {Title: "Emma", Author: "Jane Austen"}}
			got, augmented := New(tt.provider, "").Augment(context.Background(), input)

			if augmented {
				t.Error("Expected augmented false")
			}
			if len(got) != len(input) {
				t.Fatalf("Expected %d books, got %d", len(input), len(got))
			}
			for i := range input {
				if got[i] != input[i] {
					t.Errorf("Book %d changed: %+v", i, got[i])
				}
			}
		})
	}
}
