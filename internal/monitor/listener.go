package monitor

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"netmonitor/internal/models"
	"netmonitor/internal/platform"
)

// listenOnline applies {online} patches for every platform transition.
func listenOnline(ctx context.Context, wg *sync.WaitGroup, events <-chan struct{}, p platform.Platform, store *Store, log *zap.Logger) {
	defer wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-events:
			if !ok {
				return
			}
			online := p.IsOnline()
			log.Info("platform connectivity changed", zap.Bool("online", online))
			_, _ = store.Apply(func(cur models.NetworkStatus) models.NetworkStatus {
				cur.Online = online
				return cur
			})
		}
	}
}

// listenLinkType applies {effectiveType} patches for every link change.
func listenLinkType(ctx context.Context, wg *sync.WaitGroup, events <-chan struct{}, p platform.Platform, store *Store, log *zap.Logger) {
	defer wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-events:
			if !ok {
				return
			}
			linkType := p.LinkType()
			log.Info("platform link type changed", zap.String("effective_type", linkType))
			_, _ = store.Apply(func(cur models.NetworkStatus) models.NetworkStatus {
				return cur.WithEffectiveType(linkType)
			})
		}
	}
}
