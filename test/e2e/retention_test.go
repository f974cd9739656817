package e2e

import (
	"testing"

	"github.com/downfa11-org/partq/pkg/config"
)

// TestRetentionSweepAfterDrain verifies a fully-drained sealed part is
// removed while the active part stays.
func TestRetentionSweepAfterDrain(t *testing.T) {
	ctx := Given(t).
		WithQueue("retention").
		WithStartFromOldest().
		WithCleanupPolicy(config.CleanupDelete)
	defer ctx.Cleanup()

	ctx.When().
		StartWriter().
		PushBodies("a1", "a2").
		RestartWriter().
		PushBodies("b1").
		OpenConsumer("archiver").
		DrainConsumer("archiver").
		SweepQueue().
		Then().
		Expect(DrainedEverythingPushed("archiver")).
		And(SweptExactly(0)).
		And(PartsOnDisk(1))
}

// TestSweepSparesUnconsumedQueue verifies no part is removed while the
// queue has no registered consumers at all.
func TestSweepSparesUnconsumedQueue(t *testing.T) {
	ctx := Given(t).
		WithQueue("untended").
		WithCleanupPolicy(config.CleanupDelete)
	defer ctx.Cleanup()

	ctx.When().
		StartWriter().
		PushBodies("x").
		RestartWriter().
		PushBodies("y").
		SweepQueue().
		Then().
		Expect(SweptNothing()).
		And(PartsOnDisk(2))
}
