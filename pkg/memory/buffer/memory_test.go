package buffer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoriesLimit(t *testing.T) {
	m := Memories{Limit: 2}
	m.Add(Memory{Question: "q1", Answer: "a1"})
	m.Add(Memory{Question: "q2", Answer: "a2"})
	m.Add(Memory{Question: "q3", Answer: "a3"})
	require.Len(t, m.Items, 2)
	last, ok := m.Last()
	require.True(t, ok)
	assert.Equal(t, "a3", last.Answer)
	assert.Equal(t, "q2", m.Items[0].Question)
}

func TestMemoriesDumpLoad(t *testing.T) {
	m := Memories{}
	m.Add(Memory{Question: "q", Answer: "a"})
	raw, err := m.Dump()
	require.NoError(t, err)

	restored := Memories{}
	require.NoError(t, restored.Load(raw))
	assert.Equal(t, m.Items, restored.Items)

	require.NoError(t, restored.Load(nil))
	assert.Len(t, restored.Items, 1)
	assert.Error(t, restored.Load([]byte("{")))
}
