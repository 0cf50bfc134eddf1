// Package llmjson decodes the JSON objects that language models are asked to
// return. Models do not always honour a strict-JSON instruction, so fences are
// stripped and every entry is validated before it reaches the caller.
package llmjson

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/lehigh-university-libraries/shelfscanner/internal/models"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// ErrNotObject is returned when the response is not a JSON object
var ErrNotObject = errors.New("response is not a JSON object")

// StripCodeFences removes markdown code fences wrapped around a response
func StripCodeFences(response string) string {
	response = strings.TrimSpace(response)
	if !strings.HasPrefix(response, "```") {
		return response
	}
	response = strings.TrimPrefix(response, "```json")
	response = strings.TrimPrefix(response, "```JSON")
	response = strings.TrimPrefix(response, "```")
	response = strings.TrimSuffix(strings.TrimSpace(response), "```")
	return strings.TrimSpace(response)
}

type bookEntry struct {
	Title  string `validate:"max=512"`
	Author string `validate:"max=512"`
}

type recommendationEntry struct {
	Title  string   `validate:"max=512"`
	Author string   `validate:"max=512"`
	Reason string   `validate:"max=2000"`
	Score  *float64 `validate:"required,min=0,max=100"`
}

// DecodeBooks extracts the books array from a {"books": [...]} object.
// A missing or null books key yields an empty slice.
func DecodeBooks(response string) ([]models.Book, error) {
	entries, err := booksArray(response)
	if err != nil {
		return nil, err
	}

	books := make([]models.Book, 0, len(entries))
	for i, raw := range entries {
		fields, err := entryFields(raw)
		if err != nil {
			return nil, fmt.Errorf("book %d: %w", i, err)
		}
		entry := bookEntry{
			Title:  textField(fields["title"]),
			Author: textField(fields["author"]),
		}
		if err := getValidator().Struct(entry); err != nil {
			return nil, fmt.Errorf("book %d failed validation: %w", i, err)
		}
		books = append(books, models.Book{Title: entry.Title, Author: entry.Author})
	}

	return books, nil
}

// DecodeRecommendations extracts scored books. Every entry must carry a
// numeric score in [0,100].
func DecodeRecommendations(response string) ([]models.Book, error) {
	entries, err := booksArray(response)
	if err != nil {
		return nil, err
	}

	books := make([]models.Book, 0, len(entries))
	for i, raw := range entries {
		fields, err := entryFields(raw)
		if err != nil {
			return nil, fmt.Errorf("book %d: %w", i, err)
		}
		entry := recommendationEntry{
			Title:  textField(fields["title"]),
			Author: textField(fields["author"]),
			Reason: textField(fields["reason"]),
		}
		if s, ok := fields["score"]; ok {
			var score float64
			if err := json.Unmarshal(s, &score); err != nil {
				return nil, fmt.Errorf("book %d has non-numeric score: %w", i, err)
			}
			entry.Score = &score
		}
		if err := getValidator().Struct(entry); err != nil {
			return nil, fmt.Errorf("book %d failed validation: %w", i, err)
		}

		score := int(math.Round(*entry.Score))
		books = append(books, models.Book{
			Title:  entry.Title,
			Author: entry.Author,
			Reason: entry.Reason,
			Score:  &score,
		})
	}

	return books, nil
}

func booksArray(response string) ([]json.RawMessage, error) {
	cleaned := StripCodeFences(response)
	if !strings.HasPrefix(cleaned, "{") {
		return nil, ErrNotObject
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal([]byte(cleaned), &envelope); err != nil {
		return nil, fmt.Errorf("failed to parse JSON response: %w", err)
	}

	raw, ok := envelope["books"]
	if !ok || isNull(raw) {
		return []json.RawMessage{}, nil
	}

	var entries []json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("books is not an array: %w", err)
	}
	return entries, nil
}

func entryFields(raw json.RawMessage) (map[string]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, ErrNotObject
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return nil, fmt.Errorf("failed to parse book entry: %w", err)
	}
	return fields, nil
}

// textField reads a string field, tolerating null and lists of names.
func textField(raw json.RawMessage) string {
	if len(raw) == 0 || isNull(raw) {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}

	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		parts := make([]string, 0, len(list))
		for _, item := range list {
			if item = strings.TrimSpace(item); item != "" {
				parts = append(parts, item)
			}
		}
		return strings.Join(parts, ", ")
	}

	return strings.TrimSpace(string(raw))
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
