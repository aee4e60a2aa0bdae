// Command coalescesim runs lane agents against a coalescer and an ideal
// memory and reports how much traffic was merged.
package main

import "github.com/tebeka/atexit"

func main() {
	atexit.Exit(execute())
}
