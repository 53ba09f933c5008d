package bootstrap

import (
	"context"

	"github.com/nepselabs/feed-service/internal/config"
	"github.com/nepselabs/feed-service/internal/entity"
	"github.com/nepselabs/feed-service/internal/infrastructure"
	"github.com/nepselabs/feed-service/internal/repository"
	"github.com/nepselabs/feed-service/internal/service/history"
	"github.com/nepselabs/feed-service/internal/util"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func StartMarketDataWorker(cmd *cobra.Command, args []string) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := infrastructure.NewPostgresConnection(ctx, config.Env.Database["market_data"])
	util.ContinueOrFatal(err)
	infrastructure.StartPostgresHealthCheck(ctx, db, config.Env.Database["market_data"].PingInterval)

	nc, js, err := infrastructure.NewJetstream()
	util.ContinueOrFatal(err)

	quoteHistoryRepo := repository.NewQuoteHistoryRepository(db)
	quoteHistoryService := history.NewQuoteHistoryService(js, quoteHistoryRepo)

	subscribers := []entity.Subscriber{quoteHistoryService}
	for _, subscriber := range subscribers {
		err := subscriber.JetstreamEventSubscribe(ctx)
		util.ContinueOrFatal(err)
	}
	logrus.Info("market data worker consuming quote history events")

	wait := gracefulShutdown(ctx, config.Env.GracefulShutdownTimeout, map[string]operation{
		"database": func(ctx context.Context) error {
			cancel()
			return db.Close()
		},
		"nats connection": func(ctx context.Context) error {
			return infrastructure.CloseJetstream(nc)
		},
	})

	<-wait
}
