// Package logging wires up the structured logger shared by every
// clustervote component, pre-tagged with the owning node's identity.
package logging

import (
	"os"

	"github.com/sirupsen/logrus"

	"github.com/clustervote/clustervote/internal/types"
)

// New returns a logrus entry tagged with node_id, ready to be passed down
// into transport, membership, election, and failure-detector components.
func New(id types.NodeID) *logrus.Entry {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return log.WithField("node_id", uint32(id))
}
