package id

import (
	"log"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

const (
	prefixConversation = "cv"
	prefixMessage      = "msg"
	prefixMemoryUnit   = "mu"
	prefixMemoryUsage  = "use"
	prefixRequest      = "req"

	idLength = 21
)

// Generator produces prefixed nanoid identifiers
type Generator struct{}

func NewGenerator() *Generator {
	return &Generator{}
}

func (g *Generator) GenerateConversationID() string {
	return g.generate(prefixConversation)
}

func (g *Generator) GenerateMessageID() string {
	return g.generate(prefixMessage)
}

func (g *Generator) GenerateMemoryUnitID() string {
	return g.generate(prefixMemoryUnit)
}

func (g *Generator) GenerateMemoryUsageID() string {
	return g.generate(prefixMemoryUsage)
}

func (g *Generator) GenerateRequestID() string {
	return g.generate(prefixRequest)
}

func (g *Generator) generate(prefix string) string {
	nid, err := gonanoid.New(idLength)
	if err != nil {
		// gonanoid only fails when crypto/rand does; nothing sane to
		// do but crash.
		log.Fatalf("[IDGenerator] failed to generate ID: %v", err)
	}
	return prefix + "_" + nid
}
