package controllers

import (
	"github.com/channelpass/channelpass/app/repository"
	"github.com/channelpass/channelpass/internal/pkg/cache"
	"github.com/channelpass/channelpass/internal/pkg/directory"
	"github.com/channelpass/channelpass/internal/pkg/notify"
	"github.com/channelpass/channelpass/internal/pkg/payment"
	"github.com/channelpass/channelpass/internal/pkg/reconcile"
	"github.com/channelpass/channelpass/internal/pkg/telegram"
)

var (
	reconciler *reconcile.Service
	channelDir *directory.Directory
	commission payment.CommissionPolicy
)

// cacheFlagger stores invite follow-up flags in the shared Redis client.
type cacheFlagger struct{}

func (cacheFlagger) FlagSession(sessionID, reason string) error {
	return cache.FlagSessionForFollowUp(sessionID, reason)
}

func (cacheFlagger) ClearSession(sessionID string) error {
	return cache.ClearFollowUpFlag(sessionID)
}

// InitializeControllers wires the reconciler and its collaborators from the
// global factories. Must run after database, cache and gateway setup.
func InitializeControllers() {
	repos := repository.GetGlobalRepositories()
	gateway := telegram.GetGateway()

	channelDir = directory.New(repos.ChannelLink, gateway, directory.NewCacheKV())
	sink := notify.NewSink(repos.Sale, repos.Email, gateway)
	reconciler = reconcile.NewService(repos.Membership, channelDir, gateway, sink, cacheFlagger{})
	commission = payment.NewCommissionPolicy()

	payment.Setup()
}
