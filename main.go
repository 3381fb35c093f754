package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	prefixed "github.com/matterbridge/logrus-prefixed-formatter"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"maunium.net/go/mautrix/id"

	"github.com/chatlab/fedisync/bridge"
	"github.com/chatlab/fedisync/bridge/wsrpc"
	"github.com/chatlab/fedisync/config"
	"github.com/chatlab/fedisync/pkg/store"
	"github.com/chatlab/fedisync/syncer"
)

var (
	flagConfig = pflag.StringP("conf", "c", "fedisync.toml", "config file")
	flagDebug  = pflag.Bool("debug", false, "enable debug logging")
	flagTrace  = pflag.Bool("trace", false, "enable trace logging")
)

func main() {
	pflag.Parse()

	ourlog := logrus.New()
	ourlog.SetFormatter(&prefixed.TextFormatter{
		PrefixPadding: 14,
		FullTimestamp: true,
	})
	logger := ourlog.WithFields(logrus.Fields{"prefix": "main"})

	if *flagDebug {
		ourlog.SetLevel(logrus.DebugLevel)
	}
	if *flagTrace {
		ourlog.SetLevel(logrus.TraceLevel)
	}

	v, err := config.LoadConfig(*flagConfig)
	if err != nil {
		logger.Fatalf("reading config: %v", err)
	}
	config.Logger = ourlog.WithFields(logrus.Fields{"prefix": "config"})

	syncer.SetLogger(ourlog.WithFields(logrus.Fields{"prefix": "syncer"}))
	wsrpc.SetLogger(ourlog.WithFields(logrus.Fields{"prefix": "bridge/wsrpc"}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tr, err := wsrpc.Dial(ctx, v.GetString("bridge.url"), v.GetString("bridge.token"))
	if err != nil {
		logger.Fatalf("connecting bridge: %v", err)
	}
	defer tr.Close()

	db, err := store.Open(v.GetString("statedb"))
	if err != nil {
		logger.Fatalf("opening state db: %v", err)
	}
	defer db.Close()

	me := id.UserID(v.GetString("userid"))

	engine := syncer.New(tr, v, db, nil, me)
	if err := engine.Start(ctx); err != nil {
		logger.Fatalf("starting sync: %v", err)
	}

	go func() {
		<-ctx.Done()
		engine.Stop()
	}()

	for update := range engine.Updates() {
		switch data := update.Data.(type) {
		case *bridge.SyncStatusUpdate:
			logger.Infof("sync status: %s", data.Status)
		case *bridge.RoomListUpdate:
			logger.Infof("room list: %d rooms", len(data.Rooms))
		case *bridge.TimelineUpdate:
			logger.Debugf("timeline %s: %d events", data.RoomID, len(data.Events))
		case *bridge.RoomMemberUpdate:
			logger.Debugf("members %s: %d", data.RoomID, len(data.Members))
		case *bridge.ProcessingError:
			if data.Fatal {
				logger.Errorf("subscription %s needs refresh: %v", data.Target, data.Err)
			} else {
				logger.Warnf("processing error on %s: %v", data.Target, data.Err)
			}
		}
	}
}
