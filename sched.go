package dpx

import "runtime"

// yield gives other goroutines a chance to run. Pump loops call it between
// iterations of their poll loop so a busy channel cannot starve its siblings
// on a GOMAXPROCS=1 build; grounded on the teacher's use of runtime.Gosched
// in v2/mux_test.go's lock-step tests.
func yield() { runtime.Gosched() }
