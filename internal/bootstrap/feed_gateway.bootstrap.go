package bootstrap

import (
	"context"
	"fmt"
	"net/http"

	"github.com/nepselabs/feed-service/internal/config"
	"github.com/nepselabs/feed-service/internal/entity"
	httpHandler "github.com/nepselabs/feed-service/internal/handler/feed/http"
	"github.com/nepselabs/feed-service/internal/infrastructure"
	"github.com/nepselabs/feed-service/internal/repository"
	"github.com/nepselabs/feed-service/internal/service/feed"
	"github.com/nepselabs/feed-service/internal/service/history"
	"github.com/nepselabs/feed-service/internal/service/session"
	"github.com/nepselabs/feed-service/internal/util"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func StartFeedGateway(cmd *cobra.Command, args []string) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		redisStore *repository.RedisSnapshotStore
		snapshots  *repository.FeedSnapshotRepository
	)
	if redisCfg, ok := config.Env.Redis["feed"]; ok && redisCfg.CacheDSN != "" {
		store, err := repository.NewRedisSnapshotStore(redisCfg.CacheDSN)
		util.ContinueOrFatal(err)
		redisStore = store
		snapshots = repository.NewFeedSnapshotRepository(store)
	} else {
		logrus.Warn("no redis snapshot store configured, warm start disabled")
	}

	nc, js, err := infrastructure.NewJetstream()
	util.ContinueOrFatal(err)

	quoteMirror := history.NewQuoteHistoryService(js, nil)
	err = quoteMirror.JetstreamEventInit(ctx)
	util.ContinueOrFatal(err)

	calendar, err := session.NewCalendar(config.Env.Market)
	util.ContinueOrFatal(err)

	feedService := feed.NewService(config.Env.Feed, calendar, snapshots,
		feed.WithMirror(func(q entity.Quote) {
			if err := quoteMirror.PublishQuote(q); err != nil {
				logrus.Errorf("failed to mirror quote update: %v", err)
			}
		}),
	)

	feedService.Restore(ctx)

	err = feedService.Connect(ctx)
	util.ContinueOrFatal(err)

	feedHTTPHandler := httpHandler.NewFeedHTTPHandler(feedService)
	httpMux := http.NewServeMux()
	feedHTTPHandler.Register(httpMux)

	httpPort := fmt.Sprintf(":%s", config.Env.Port["feed_gateway_http"])
	httpServer := infrastructure.NewHTTPServer(infrastructure.HTTPServerConfig{
		Addr:            httpPort,
		ShutdownTimeout: config.Env.GracefulShutdownTimeout,
	}, httpMux)

	go func() {
		err := httpServer.Start()
		if err != nil {
			logrus.Error(err)
		}
	}()
	logrus.Info(fmt.Sprintf("http server started on %s", httpPort))

	ops := map[string]operation{
		"feed engine": func(ctx context.Context) error {
			cancel()
			feedService.Disconnect()
			return nil
		},
		"http": func(ctx context.Context) error {
			return httpServer.Shutdown(ctx)
		},
		"nats connection": func(ctx context.Context) error {
			return infrastructure.CloseJetstream(nc)
		},
	}
	if redisStore != nil {
		ops["redis snapshot store"] = func(ctx context.Context) error {
			return redisStore.Close()
		}
	}

	wait := gracefulShutdown(ctx, config.Env.GracefulShutdownTimeout, ops)

	<-wait
}
