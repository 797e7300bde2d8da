// Package smpath composes the string keys that address content and agents
// within an application's sensemaker namespace.
//
// A path is "<namespace>/<address>". Namespaces never contain the separator,
// and hash addresses are rendered in URL-safe base64, so splitting at the
// first separator always recovers the pair that produced a path.
package smpath

import (
	"strings"

	"github.com/pbaille/happz/internal/domain"
)

// Separator joins a namespace and an address.
const Separator = "/"

// Compose joins a namespace with an already stringified address.
func Compose(ns, addr string) string {
	return ns + Separator + addr
}

// ComposeEntryHash addresses an entry within ns.
func ComposeEntryHash(ns string, eh domain.EntryHash) string {
	return Compose(ns, eh.String())
}

// ComposeAgent addresses an agent within ns.
func ComposeAgent(ns string, agent domain.AgentPubKey) string {
	return Compose(ns, agent.String())
}

// Split inverts Compose.
func Split(path string) (ns, addr string, ok bool) {
	return strings.Cut(path, Separator)
}
