package id

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGeneratorPrefixes(t *testing.T) {
	g := NewGenerator()

	assert.True(t, strings.HasPrefix(g.GenerateConversationID(), "cv_"))
	assert.True(t, strings.HasPrefix(g.GenerateMessageID(), "msg_"))
	assert.True(t, strings.HasPrefix(g.GenerateMemoryUnitID(), "mu_"))
	assert.True(t, strings.HasPrefix(g.GenerateMemoryUsageID(), "use_"))
	assert.True(t, strings.HasPrefix(g.GenerateRequestID(), "req_"))
}

func TestGeneratorUniqueness(t *testing.T) {
	g := NewGenerator()
	seen := make(map[string]struct{})
	for i := 0; i < 1000; i++ {
		id := g.GenerateMemoryUnitID()
		_, dup := seen[id]
		assert.False(t, dup, "duplicate ID %s", id)
		seen[id] = struct{}{}
	}
}

func TestGeneratorLength(t *testing.T) {
	g := NewGenerator()
	id := g.GenerateConversationID()
	assert.Len(t, id, len("cv_")+idLength)
}
