/*
Package buffer provides generic bounded buffers that never block the writer.

# Overflow Policies

  - DropOldest: evict the oldest item to admit the new one (rolling logs)
  - DropNewest: keep what is buffered and discard the incoming item

# Usage

The stream coordinator keeps its error log in a DropOldest buffer of capacity 10 and
publishes Snapshot() copies into immutable state:

	log, err := buffer.NewCircularBuffer[ErrorRecord](10,
	    buffer.WithOverflowPolicy[ErrorRecord](buffer.DropOldest),
	    buffer.WithMetrics[ErrorRecord](registry, "error_log"),
	)
	_ = log.Write(record)
	state.Errors = log.Snapshot()

# Statistics

Statistics are always collected (writes, reads, overflows, drops, size high-water
mark). WithMetrics additionally exports writes, drops, size and utilization with a
"component" const label.

# Thread Safety

All operations are safe for concurrent use. Drop callbacks run after the internal
lock is released.
*/
package buffer
