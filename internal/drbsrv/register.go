package drbsrv

import (
	"context"

	"github.com/navytux/xlte/internal/sched"
)

func init() {
	sched.RegisterSynth("x.drb_stats", func(ctx context.Context, wsuri string) (sched.SynthServer, error) {
		return New(ctx, wsuri)
	})
}
