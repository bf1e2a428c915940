package main

import (
	"github.com/jonboulle/clockwork"

	"github.com/tickshare/tickshare/go/clients/timerapi"
	"github.com/tickshare/tickshare/go/internal/auth"
	"github.com/tickshare/tickshare/go/internal/commands"
	"github.com/tickshare/tickshare/go/internal/engine"
	"github.com/tickshare/tickshare/go/internal/shareview"
	"github.com/tickshare/tickshare/go/internal/store"
	"github.com/tickshare/tickshare/go/internal/ticker"
	"github.com/tickshare/tickshare/go/internal/transport"
)

type Services struct {
	Tokens    *auth.FileStore
	API       *timerapi.Client
	Store     *store.Store
	Ticker    *ticker.Ticker
	Channel   *transport.Adapter
	Commands  *commands.Gateway
	Engine    *engine.Engine
	ShareView *shareview.Handler
}

func setupServices(config *Config) *Services {
	// Wire up dependency injection chain
	// Token store → API client → store/ticker → channel → gateway → engine

	clock := clockwork.NewRealClock()

	tokens := auth.NewFileStore(config.Auth.TokenFile)
	apiClient := timerapi.NewClient(config.API.BaseURL, tokens)

	st := store.New(clock)
	tk := ticker.New(st, clock)

	channelCfg := transport.DefaultConfig()
	channelCfg.URL = config.Channel.URL
	channelCfg.ReconnectWait = config.reconnectWait()
	channelCfg.ResyncInterval = config.resyncInterval()
	channel := transport.New(channelCfg, tokens, clock, st.HasRunning)

	gateway := commands.NewGateway(st, apiClient, channel, tk, clock)

	engineCfg := engine.Config{PollInterval: config.pollInterval()}
	eng := engine.New(engineCfg, apiClient, channel, st, tk, clock)

	shareView := shareview.NewHandler(st, tk)

	return &Services{
		Tokens:    tokens,
		API:       apiClient,
		Store:     st,
		Ticker:    tk,
		Channel:   channel,
		Commands:  gateway,
		Engine:    eng,
		ShareView: shareView,
	}
}
