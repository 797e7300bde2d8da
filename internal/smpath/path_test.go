package smpath

import (
	"testing"

	"github.com/go-playground/assert/v2"
	"github.com/pbaille/happz/internal/domain"
)

func TestComposeEntryHash(t *testing.T) {
	eh, _, err := domain.HashEntry(domain.Meme{Filename: "a.png", BlobStr: "QQ=="})
	assert.Equal(t, err, nil)

	p := ComposeEntryHash(domain.MemezPath, eh)
	assert.Equal(t, p, "widget.memez.memez/"+eh.String())

	ns, addr, ok := Split(p)
	assert.Equal(t, ok, true)
	assert.Equal(t, ns, domain.MemezPath)
	back, err := domain.ParseEntryHash(addr)
	assert.Equal(t, err, nil)
	assert.Equal(t, back, eh)
}

func TestComposeInjective(t *testing.T) {
	namespaces := []string{domain.MemezPath, domain.AgentPath, domain.AnnotationzPath, "widget.memez"}

	var addrs []string
	for i := 0; i < 64; i++ {
		eh, _, err := domain.HashEntry(domain.Meme{Filename: "f", BlobStr: string(rune('A' + i))})
		assert.Equal(t, err, nil)
		addrs = append(addrs, eh.String())
	}
	// opaque addresses, including ones containing the separator
	addrs = append(addrs, "", "a", "a/b", "/", "memez/x")

	seen := map[string][2]string{}
	for _, ns := range namespaces {
		for _, addr := range addrs {
			p := Compose(ns, addr)
			if prev, dup := seen[p]; dup {
				t.Fatalf("collision: %q from %v and %v", p, prev, [2]string{ns, addr})
			}
			seen[p] = [2]string{ns, addr}

			gotNS, gotAddr, ok := Split(p)
			assert.Equal(t, ok, true)
			assert.Equal(t, gotNS, ns)
			assert.Equal(t, gotAddr, addr)
		}
	}
}

func TestComposeAgent(t *testing.T) {
	var agent domain.AgentPubKey
	for i := range agent {
		agent[i] = 0xff
	}
	p := ComposeAgent(domain.AgentPath, agent)
	_, addr, _ := Split(p)
	assert.Equal(t, addr, agent.String())
}
