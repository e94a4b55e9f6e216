package contextpack

import (
	"reflect"
	"testing"
)

func TestExtractKeywords(t *testing.T) {
	tests := []struct {
		name    string
		message string
		want    []string
	}{
		{
			"question scaffolding stripped",
			"How do we handle authentication for the payments service?",
			[]string{"handle", "authentication", "payments", "service"},
		},
		{
			"punctuation and case",
			"Rate-Limiting: token bucket, or sliding window?",
			[]string{"rate", "limiting", "token", "bucket", "sliding", "window"},
		},
		{
			"duplicates collapsed",
			"cache cache CACHE invalidation",
			[]string{"cache", "invalidation"},
		},
		{
			"short tokens dropped",
			"go vs js on k8s",
			[]string{},
		},
		{"empty", "", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractKeywords(tt.message)
			if len(got) == 0 && len(tt.want) == 0 {
				return
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ExtractKeywords(%q) = %v, want %v", tt.message, got, tt.want)
			}
		})
	}
}

func TestScoreOverlap(t *testing.T) {
	tests := []struct {
		name     string
		keywords []string
		text     string
		want     float64
	}{
		{"full overlap", []string{"auth", "token"}, "Auth token rotation", 1.0},
		{"half overlap", []string{"auth", "billing"}, "auth middleware", 0.5},
		{"no overlap", []string{"billing"}, "auth middleware", 0.0},
		{"no keywords is neutral", nil, "anything", 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := scoreOverlap(tt.keywords, tt.text); got != tt.want {
				t.Errorf("scoreOverlap() = %v, want %v", got, tt.want)
			}
		})
	}
}
