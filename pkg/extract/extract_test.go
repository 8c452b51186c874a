package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFirstMatch_DirectField(t *testing.T) {
	doc := map[string]interface{}{
		"url": "https://ingest.example.io/abc123",
	}
	rules := []Rule{{Path: "url", Validate: HasPrefix("https://ingest.example.io")}}

	value, ok := FirstMatch(doc, rules)
	assert.True(t, ok)
	assert.Equal(t, "https://ingest.example.io/abc123", value)
}

func TestFirstMatch_NestedField(t *testing.T) {
	doc := map[string]interface{}{
		"integration": map[string]interface{}{
			"webhookKey": "a1b2c3d4e5f6",
		},
	}
	rules := []Rule{
		{Path: "webhookKey", Validate: Alphanumeric(10)},
		{Path: "integration.webhookKey", Validate: Alphanumeric(10)},
	}

	value, ok := FirstMatch(doc, rules)
	assert.True(t, ok)
	assert.Equal(t, "a1b2c3d4e5f6", value)
}

func TestFirstMatch_OrderEncodesPreference(t *testing.T) {
	// Both rules would match; the earlier one must win.
	doc := map[string]interface{}{
		"url":        "https://ingest.example.io/direct",
		"webhookKey": "fallbackkey123",
	}
	rules := []Rule{
		{Path: "url", Validate: HasPrefix("https://ingest.example.io")},
		{Path: "webhookKey", Validate: Alphanumeric(10)},
	}

	value, ok := FirstMatch(doc, rules)
	assert.True(t, ok)
	assert.Equal(t, "https://ingest.example.io/direct", value)
}

func TestFirstMatch_SkipsFailedValidation(t *testing.T) {
	doc := map[string]interface{}{
		"url":        "https://other.example.com/nope",
		"webhookKey": "a1b2c3d4e5f6",
	}
	rules := []Rule{
		{Path: "url", Validate: HasPrefix("https://ingest.example.io")},
		{Path: "webhookKey", Validate: Alphanumeric(10)},
	}

	value, ok := FirstMatch(doc, rules)
	assert.True(t, ok)
	assert.Equal(t, "a1b2c3d4e5f6", value)
}

func TestFirstMatch_NonStringValues(t *testing.T) {
	doc := map[string]interface{}{
		"url":        42,
		"webhook":    map[string]interface{}{"url": true},
		"webhookKey": []interface{}{"not", "a", "string"},
	}
	rules := []Rule{
		{Path: "url", Validate: nil},
		{Path: "webhook.url", Validate: nil},
		{Path: "webhookKey", Validate: nil},
	}

	_, ok := FirstMatch(doc, rules)
	assert.False(t, ok)
}

func TestFirstMatch_PathThroughNonObject(t *testing.T) {
	doc := map[string]interface{}{
		"integration": "flat string, not an object",
	}
	rules := []Rule{{Path: "integration.webhookKey", Validate: nil}}

	_, ok := FirstMatch(doc, rules)
	assert.False(t, ok)
}

func TestFirstMatch_MissingPath(t *testing.T) {
	doc := map[string]interface{}{"other": "value"}
	rules := []Rule{
		{Path: "url", Validate: nil},
		{Path: "integration.url", Validate: nil},
	}

	_, ok := FirstMatch(doc, rules)
	assert.False(t, ok)
}

func TestFirstMatch_NilValidatorAcceptsAnyString(t *testing.T) {
	doc := map[string]interface{}{"id": "x"}
	rules := []Rule{{Path: "id"}}

	value, ok := FirstMatch(doc, rules)
	assert.True(t, ok)
	assert.Equal(t, "x", value)
}

func TestFirstMatch_EmptyRules(t *testing.T) {
	doc := map[string]interface{}{"url": "https://ingest.example.io/abc"}

	_, ok := FirstMatch(doc, nil)
	assert.False(t, ok)
}

func TestHasPrefix(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  bool
	}{
		{"exact prefix", "https://ingest.example.io/abc", true},
		{"prefix only", "https://ingest.example.io", true},
		{"different host", "https://api.example.io/abc", false},
		{"empty string", "", false},
	}

	validate := HasPrefix("https://ingest.example.io")
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, validate(tt.input))
		})
	}
}

func TestAlphanumeric(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  bool
	}{
		{"long token", "abcdef1234", true},
		{"exactly min length", "0123456789", true},
		{"mixed case", "AbCdEf1234", true},
		{"too short", "abc123", false},
		{"contains dash", "abcdef-1234", false},
		{"contains slash", "abcdef/1234", false},
		{"contains space", "abcdef 1234", false},
		{"empty", "", false},
		{"unicode letters rejected", "abcdéf12345", false},
	}

	validate := Alphanumeric(10)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, validate(tt.input))
		})
	}
}
