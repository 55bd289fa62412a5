package main

import (
	"net/http"
	"os"
	"os/signal"

	"github.com/driftwire/driftwire/auth"
	"github.com/driftwire/driftwire/config"
	"github.com/driftwire/driftwire/globals"
	"github.com/driftwire/driftwire/persistence"
	"github.com/driftwire/driftwire/registry"
	"github.com/driftwire/driftwire/rooms"
	"github.com/driftwire/driftwire/ws"
	"github.com/gorilla/mux"
	"github.com/hashicorp/go-hclog"
	"github.com/spf13/pflag"
)

var (
	configPath = pflag.StringP("config", "c", "", "path to config file or directory")
	addr       = pflag.String("addr", "localhost:8000", "service address (including port)")
	sslCert    = pflag.String("ssl-cert", "", "SSL cert (optional)")
	sslKey     = pflag.String("ssl-key", "", "SSL key (optional)")
)

func main() {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt)

	flagSet := config.GetFlagSet()
	pflag.CommandLine.AddFlagSet(flagSet)
	pflag.Parse()

	cfg, err := config.ReadConfiguration(*configPath, flagSet)
	if err != nil {
		panic(err)
	}
	if cfg.LogLevel != "" {
		globals.AppLogger.SetLevel(hclog.LevelFromString(cfg.LogLevel))
	}

	persister, err := persistence.NewPersister(cfg)
	if err != nil {
		panic(err)
	}
	if persister != nil {
		defer persister.Close()
	}

	store, err := rooms.NewStore(persister)
	if err != nil {
		panic(err)
	}
	store.Seed(cfg.Rooms)

	reg := registry.NewRegistry()
	membership := rooms.NewMembership()
	access := rooms.NewController(store, membership)
	if cfg.AccessCheckExpr != "" {
		checker, err := rooms.NewExprChecker(cfg.AccessCheckExpr)
		if err != nil {
			panic(err)
		}
		access.SetChecker(checker)
	}

	authenticator, err := auth.NewAuthenticator(cfg)
	if err != nil {
		panic(err)
	}

	hub := ws.NewHub(cfg, reg, store, membership, access, authenticator, persister)
	go hub.Run()

	go func() {
		<-c
		globals.AppLogger.Info("interrupted, shutting down")
		if persister != nil {
			persister.Close()
		}
		os.Exit(0)
	}()

	gateway := ws.NewGateway(hub, authenticator)
	router := mux.NewRouter()
	router.HandleFunc(cfg.PathPrefix, gateway.Handler).Methods(http.MethodGet)
	ws.NewAdminAPI(hub).Routes(router.PathPrefix("/admin").Subrouter())

	globals.AppLogger.Info("listening", "addr", *addr, "path", cfg.PathPrefix, "strict_auth", cfg.StrictAuth)
	if *sslCert != "" && *sslKey != "" {
		err = http.ListenAndServeTLS(*addr, *sslCert, *sslKey, router)
	} else {
		err = http.ListenAndServe(*addr, router)
	}
	globals.AppLogger.Error("stopped listening", "error", err)
}
