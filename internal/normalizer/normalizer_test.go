package normalizer

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dthille/corpusqa/pkg/types"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "lowercases and trims",
			input: "  GitLab Remote Work Policy  ",
			want:  "gitlab remote work policy",
		},
		{
			name:  "strips interrogative words",
			input: "What is the remote work policy?",
			want:  "remote work policy",
		},
		{
			name:  "strips politeness phrases",
			input: "Can you please tell me about merge requests",
			want:  "about merge requests",
		},
		{
			name:  "collapses whitespace",
			input: "remote\t\twork\n policy",
			want:  "remote work policy",
		},
		{
			name:  "strips punctuation",
			input: "how does ci/cd work?",
			want:  "does ci cd work",
		},
		{
			name:  "empty input",
			input: "",
			want:  "",
		},
		{
			name:  "only stop words",
			input: "What is the?",
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize(tt.input)
			assert.Equal(t, tt.want, got.Text)
		})
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{
		"What is GitLab's remote work policy?",
		"Can you explain how pipelines work, please?",
		"",
		"   \t\n  ",
		"already normalized text",
		"UPPER Case With  Spaces!!!",
	}

	for _, in := range inputs {
		once := Normalize(in)
		twice := Normalize(once.Text)
		assert.Equal(t, once, twice, "normalize must be idempotent for %q", in)
	}
}

func TestNormalizeParaphrasesCollapse(t *testing.T) {
	a := Normalize("What is the remote work policy?")
	b := Normalize("Please explain the remote work policy")

	assert.Equal(t, a, b)
	assert.Equal(t, types.FingerprintOf(a), types.FingerprintOf(b))
}
