package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoginURL(t *testing.T) {
	u, err := loginURL("http://localhost:8431/", "publicData esi-skills.read_skills.v1")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8431/login?scopes=publicData%2Cesi-skills.read_skills.v1", u)

	u, err = loginURL("http://localhost:8431", "")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8431/login", u)

	_, err = loginURL("localhost", "")
	assert.Error(t, err)
}
