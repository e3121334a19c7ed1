package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalog.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	cat, err := Load("")
	require.NoError(t, err)
	assert.Len(t, cat.Categories, 3)
	assert.Len(t, cat.Languages, 6)
}

func TestLoadOverridesCategoriesOnly(t *testing.T) {
	path := writeFile(t, `
[[categories]]
key = "cooking"
title = "Cooking"
description = "Recipes"
webhook_label = "Cooking"
`)

	cat, err := Load(path)
	require.NoError(t, err)
	require.Len(t, cat.Categories, 1)
	assert.Equal(t, "Cooking", cat.Categories[0].Label())
	assert.Len(t, cat.Languages, 6)
}

func TestLoadRejectsDuplicateCategory(t *testing.T) {
	path := writeFile(t, `
[[categories]]
key = "a"
[[categories]]
key = "a"
`)

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRequiresDefaultLanguage(t *testing.T) {
	path := writeFile(t, `
[[languages]]
code = "hi"
label = "Hindi"
voice = "hi-IN"
`)

	_, err := Load(path)
	require.Error(t, err)
}
