package search

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPathStem(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Assets/Art/Hero.prefab", "Assets/Art/Hero"},
		{"Assets/Resources/UI/Logo.png", "UI/Logo"},
		{"Assets/A/Resources/B/Resources/C.asset", "B/Resources/C"},
		{"Assets/v1.2/NoExt", "Assets/v1.2/NoExt"},
		{"Assets/Resources/Hero", "Hero"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, pathStem(tt.in))
		})
	}
}

func TestBuildPattern(t *testing.T) {
	targets := []target{
		{path: "Assets/Resources/A+B.asset", guid: guidA, stem: "A+B"},
		{path: "Assets/B.asset", guid: guidB, stem: "Assets/B"},
		{path: "Assets/Resources/NoGUID.png", stem: "NoGUID"},
	}

	assert.Equal(t, guidA+"|"+guidB, buildPattern(targets, false))

	p := buildPattern(targets, true)
	assert.Equal(t, `\b(`+guidA+"|"+guidB+`|A\+B|Assets/B|NoGUID)\b`, p)

	re := regexp.MustCompile(p)
	assert.True(t, re.MatchString(`Load("A+B")`))
	assert.False(t, re.MatchString(`Load("NoGUIDs")`))
}
