// Package testing provides a deterministic harness for code built on pulse.
//
// # Quick Start
//
// Create a tester, build objects, and step the tick source:
//
//	func TestBlink(t *testing.T) {
//	    tester := pulsetest.NewEngineTester(t)
//	    cursor := tester.Object("cursor")
//
//	    blinks := 0
//	    blink := timer.New(func(any, timer.Tick) timer.Tick {
//	        blinks++
//	        return 30
//	    }, nil, 0)
//	    cursor.Schedule(blink, 30, true)
//
//	    tester.Advance(90)
//	    if blinks != 3 {
//	        t.Errorf("expected 3 blinks, got %d", blinks)
//	    }
//	}
//
// The tester drives a ManualSource that only moves when Advance is called,
// so timer expiry is exact. Errors reported through pkg/errors while the
// tester is alive are captured by its [ErrorRecorder] instead of being
// logged; the process-wide handler is restored on cleanup, which makes
// testers unsafe to use from parallel tests.
//
// # Asynchronous handlers
//
// Handlers flagged asynchronous run on executor goroutines. WaitIdle blocks
// until every submitted handler has completed:
//
//	tester.Post(nil, worker, "load", "s", "index.html")
//	if err := tester.WaitIdle(time.Second); err != nil {
//	    t.Fatal(err)
//	}
//
// # Import Alias
//
// Since this package has the same name as the standard library testing
// package, import it with an alias:
//
//	import pulsetest "github.com/go-drift/pulse/pkg/testing"
package testing
