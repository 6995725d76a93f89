// Package nodename generates human-memorable node nicknames for logs and
// heartbeat display, distinct from the node's stable identity (NodeID).
package nodename

import petname "github.com/dustinkirkland/golang-petname"

// Generate returns a two-word adjective-animal nickname, e.g.
// "patient-falcon". It has no bearing on node identity; it exists so
// operators can tell nodes apart in logs without memorizing UUIDs.
func Generate() string {
	return petname.Generate(2, "-")
}
