package event

import (
	"sync"
)

// commandPool recycles Command objects decoded by the API gateway.
//
// Usage:
//
//	cmd := AcquireCommand()
//	// ... decode, submit and wait for the result ...
//	ReleaseCommand(cmd)  // Only after the sequencer has replied
var commandPool = sync.Pool{
	New: func() interface{} {
		return &Command{}
	},
}

// AcquireCommand gets a Command from the pool.
// The returned command has zero values and must be initialized.
func AcquireCommand() *Command {
	return commandPool.Get().(*Command)
}

// ReleaseCommand returns a Command to the pool.
// The command is reset to zero values before being pooled.
func ReleaseCommand(c *Command) {
	if c == nil {
		return
	}
	*c = Command{}
	commandPool.Put(c)
}

// Warmup pre-allocates command objects to reduce GC pressure at startup.
func Warmup() {
	const batchSize = 64

	cmds := make([]*Command, 0, batchSize)
	for i := 0; i < batchSize; i++ {
		cmds = append(cmds, AcquireCommand())
	}
	for _, c := range cmds {
		ReleaseCommand(c)
	}
}
