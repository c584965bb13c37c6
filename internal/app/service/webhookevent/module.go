package webhookevent

import "go.uber.org/fx"

var Module = fx.Options(
	fx.Provide(NewService),
	fx.Provide(NewWorker),
	fx.Invoke(runWorker),
)
