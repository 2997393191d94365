package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetCategoryFromToolName(t *testing.T) {
	assert.Equal(t, "Calendar Tools", getCategoryFromToolName("calendar_list_events"))
	assert.Equal(t, "Account Tools", getCategoryFromToolName("google_get_auth_url"))
	assert.Equal(t, "Other", getCategoryFromToolName("ping"))
}

func TestGenerateToolsMarkdown(t *testing.T) {
	all, err := listTools(false)
	require.NoError(t, err)
	readOnly, err := listTools(true)
	require.NoError(t, err)
	require.Greater(t, len(all), len(readOnly))

	write := writeTools(all, readOnly)
	assert.True(t, write["calendar_create_event"])
	assert.False(t, write["calendar_list_events"])

	md := generateToolsMarkdown(all, write)
	assert.Contains(t, md, "- [Account Tools](#account-tools)")
	assert.Contains(t, md, "### calendar_create_event\n\n*write*\n\n")
	assert.Contains(t, md, "### calendar_list_events\n\n")
	assert.NotContains(t, md, "### calendar_list_events\n\n*write*")
	assert.Contains(t, md, "- `eventId` (")
}
