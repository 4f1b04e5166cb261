package workitem

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const seedDoc = `
items:
  - id: j1
    category: job
    base_price: 500
    requester_id: farmer-1
    fulfiller_id: lab-1
  - id: m1
    category: machine
    base_price: 300
    requester_id: farmer-1
    fulfiller_id: owner-1
    duration: 3 days
    deposit: 150
`

func TestLoadSeedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "items.yaml")
	require.NoError(t, os.WriteFile(path, []byte(seedDoc), 0o600))

	items, err := LoadSeedFile(path)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, CategoryLabour, items[0].Category)
	assert.Equal(t, "3 days", items[1].Duration)
	require.NotNil(t, items[1].Deposit)
	assert.Equal(t, 150.0, *items[1].Deposit)

	m := NewMemory(items...)
	w, err := m.Get(context.Background(), CategoryMachine, "m1")
	require.NoError(t, err)
	assert.Equal(t, "owner-1", w.FulfillerID)
}

func TestParseSeedYAMLRejects(t *testing.T) {
	for name, doc := range map[string]string{
		"bad category": "items:\n  - {id: x, category: boat, base_price: 1, requester_id: a, fulfiller_id: b}\n",
		"no id":        "items:\n  - {category: labour, base_price: 1, requester_id: a, fulfiller_id: b}\n",
		"same party":   "items:\n  - {id: x, category: labour, base_price: 1, requester_id: a, fulfiller_id: a}\n",
		"zero price":   "items:\n  - {id: x, category: labour, base_price: 0, requester_id: a, fulfiller_id: b}\n",
		"duplicate":    "items:\n  - {id: x, category: labour, base_price: 1, requester_id: a, fulfiller_id: b}\n  - {id: x, category: job, base_price: 2, requester_id: a, fulfiller_id: b}\n",
		"not yaml":     "items: [",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ParseSeedYAML([]byte(doc))
			assert.Error(t, err)
		})
	}

	items, err := ParseSeedYAML([]byte("  \n"))
	assert.NoError(t, err)
	assert.Empty(t, items)
}

func TestLoadSeedFileMissing(t *testing.T) {
	_, err := LoadSeedFile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
