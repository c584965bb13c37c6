package app

import (
	"time"

	"go.uber.org/fx"

	"github.com/dogparkjp/paygate/internal/app/api/server"
	"github.com/dogparkjp/paygate/internal/app/service/checkout"
	"github.com/dogparkjp/paygate/internal/app/service/customer"
	"github.com/dogparkjp/paygate/internal/app/service/notify"
	"github.com/dogparkjp/paygate/internal/app/service/points"
	"github.com/dogparkjp/paygate/internal/app/service/pricing"
	"github.com/dogparkjp/paygate/internal/app/service/webhookevent"
	"github.com/dogparkjp/paygate/internal/platform/db"
	"github.com/dogparkjp/paygate/internal/platform/linepush"
	"github.com/dogparkjp/paygate/internal/platform/stripegw"
	"github.com/dogparkjp/paygate/pkg/config"
	"github.com/dogparkjp/paygate/pkg/logger"
)

const (
	DefaultStartTimeout = 15 * time.Second
	DefaultStopTimeout  = 10 * time.Second
)

var Module = fx.Options(
	logger.Module,
	config.Module,
	db.Module,
	stripegw.Module,
	linepush.Module,
	server.Module,
	customer.Module,
	pricing.Module,
	points.Module,
	notify.Module,
	checkout.Module,
	webhookevent.Module,
)
