package personalize

import (
	"go.uber.org/fx"
)

var Module = fx.Module("personalize",
	fx.Provide(
		fx.Annotate(NewHTTPContentGenerator, fx.As(new(ContentGenerator))),
		NewGenerator,
	),
)
