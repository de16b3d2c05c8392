package render

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
)

var Module = fx.Module("render",
	fx.Provide(
		fx.Annotate(NewHTTPSynthesisClient, fx.As(new(SynthesisClient))),
		fx.Annotate(NewMinioBlobStore, fx.As(new(BlobStore))),
		NewBridge,
	),
)

func init() {
	prometheus.MustRegister(rendersTimedOut, rendersFailed)
}
