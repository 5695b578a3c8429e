package core

import (
	"github.com/bjarke-xyz/retirement-watch/internal/config"
)

type AppContext struct {
	Config *config.Config
	Infra  *AppInfra
	Deps   *AppDeps
}

type AppInfra struct {
	Watermarks WatermarkRepository
	Runs       RunRepository
	Feed       FeedSource
	Mail       Notifier
	Tickets    TicketCreator
	Alerts     Alerter
}

type AppDeps struct {
	Service AnnouncementService
}
