// Package server handles client requests for JSON and websocket connections
// and manages the server's lifetime
package server

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"runtime"

	"github.com/blindspot/blindspot/auth"
	"github.com/blindspot/blindspot/config"
	"github.com/blindspot/blindspot/db"
	"github.com/blindspot/blindspot/feeds"
	"github.com/blindspot/blindspot/mlog"
	"github.com/blindspot/blindspot/records"
	"github.com/blindspot/blindspot/util"
	"github.com/blindspot/blindspot/websockets"
	"github.com/facebookgo/grace/gracehttp"
	"github.com/go-playground/log"
)

var (
	isWindows = runtime.GOOS == "windows"

	// Is assigned in ./daemon.go to control/spawn a daemon process. That file
	// is never compiled on Windows and this function is never called.
	handleDaemon func(string)

	// CLI mode arguments and descriptions
	arguments = map[string]string{
		"start":   "start the blindspot server",
		"stop":    "stop a running daemonised blindspot server",
		"restart": "combination of stop + start",
		"debug":   "start server in debug mode without daemonizing (default)",
		"export":  "write all posts and chat messages to an xz compressed JSON file",
		"help":    "print this help text",
	}
)

// Start parses command line arguments and initializes the server.
func Start() {
	mlog.Init(mlog.Console)
	if err := config.Server.Load(); err != nil {
		log.Fatalf("loading configuration: %s", err)
	}

	// Flags override the configuration file and environment
	conf := &config.Server
	flag.StringVar(
		&conf.Server.Address,
		"a",
		conf.Server.Address,
		"address to listen on for incoming HTTP connections",
	)
	flag.StringVar(
		&conf.Database.Driver,
		"d",
		conf.Database.Driver,
		"database driver: memory, bolt, sqlite or postgres",
	)
	flag.StringVar(
		&conf.Database.URL,
		"u",
		conf.Database.URL,
		"database file path or connection URL",
	)
	flag.StringVar(
		&conf.Redis,
		"redis",
		conf.Redis,
		"Redis URL for session storage. Sessions are kept in memory, if unset.",
	)
	flag.BoolVar(
		&conf.Server.ReverseProxied,
		"r",
		conf.Server.ReverseProxied,
		"assume server is behind reverse proxy, when resolving client IPs",
	)
	flag.StringVar(
		&auth.ReverseProxyIP,
		"R",
		"",
		"IP of the reverse proxy. Only needed, when reverse proxy is not on localhost.",
	)
	flag.BoolVar(
		&conf.Server.Gzip,
		"g",
		conf.Server.Gzip,
		"compress all traffic with gzip",
	)
	flag.Usage = printUsage

	// Parse command line arguments
	flag.Parse()
	auth.IsReverseProxied = conf.Server.ReverseProxied
	arg := flag.Arg(0)
	if arg == "" {
		arg = "debug"
	}

	switch {
	case arg == "export":
		if flag.NArg() < 2 {
			printUsage()
		}
		if err := exportArchive(flag.Arg(1)); err != nil {
			log.Fatal(err)
		}
	case isWindows:
		// Can't daemonise in windows, so only args they have is "start" and
		// "help"
		switch arg {
		case "debug", "start":
			startServer()
		case "init": // For internal use only
			os.Exit(0)
		default:
			printUsage()
		}
	default:
		handleDaemon(arg)
	}
}

// Constructs and prints the CLI help text
func printUsage() {
	os.Stderr.WriteString("Usage: blindspot [OPTIONS]... [MODE]\n\nMODES:\n")

	toPrint := []string{"start"}
	if !isWindows {
		toPrint = append(toPrint, []string{"stop", "restart"}...)
	} else {
		arguments["debug"] = `alias of "start"`
	}
	toPrint = append(toPrint, []string{"debug", "export", "help"}...)

	help := new(bytes.Buffer)
	for _, arg := range toPrint {
		fmt.Fprintf(help, "  %s\n    \t%s\n", arg, arguments[arg])
	}

	help.WriteString("\nOPTIONS:\n")
	os.Stderr.Write(help.Bytes())
	flag.PrintDefaults()
	os.Stderr.WriteString(
		"\nConsult the bundled README.md for more information\n",
	)

	os.Exit(1)
}

// Open the configured document store
func openStore() (db.Store, error) {
	conf := config.Server.Database
	switch conf.Driver {
	case config.DriverMemory:
		return db.NewMemory(), nil
	case config.DriverBolt:
		return db.OpenBolt(conf.URL)
	case config.DriverSQLite, config.DriverPostgres:
		return db.OpenSQL(conf.Driver, conf.URL)
	default:
		return nil, fmt.Errorf("unknown database driver: %s", conf.Driver)
	}
}

// Open the configured session store
func openSessions() (auth.SessionStore, error) {
	if config.Server.Redis == "" {
		return auth.NewMemoryStore(), nil
	}
	return auth.NewRedisStore(config.Server.Redis)
}

func startServer() {
	mlog.Init(mlog.Email)

	var (
		store    db.Store
		sessions auth.SessionStore
	)
	err := util.Parallel(
		func() (err error) {
			store, err = openStore()
			if err != nil {
				err = util.WrapError("opening document store", err)
			}
			return
		},
		func() (err error) {
			sessions, err = openSessions()
			if err != nil {
				err = util.WrapError("opening session store", err)
			}
			return
		},
	)
	if err != nil {
		log.Fatal(err)
	}
	defer store.Close()
	defer sessions.Close()

	boards := config.GetBoards()
	svc := websockets.NewService(
		store,
		feeds.New(store, records.New(boards)),
		auth.NewProvider(sessions),
	)

	if path := config.Server.Path; path != "" {
		stop, err := config.Watch(path)
		if err != nil {
			log.Errorf("config: watching %s: %s", path, err)
		} else {
			defer stop()
		}
	}
	util.Hook(util.ConfigReloaded, func() error {
		if !equalBoards(boards, config.GetBoards()) {
			log.Warn("config: board list changes take effect after restart")
		}
		return nil
	})

	if err := startWebServer(svc); err != nil {
		log.Fatal(err)
	}
}

func equalBoards(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func startWebServer(svc *websockets.Service) (err error) {
	addr := config.Server.Server.Address
	log.Info("listening on " + addr)

	err = gracehttp.Serve(&http.Server{
		Addr:    addr,
		Handler: createRouter(svc),
	})
	if err != nil {
		return util.WrapError("error starting web server", err)
	}
	return
}

// Dump all documents of the configured store to an xz compressed archive
func exportArchive(path string) (err error) {
	store, err := openStore()
	if err != nil {
		return
	}
	defer store.Close()

	f, err := os.Create(path)
	if err != nil {
		return
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	err = db.Export(context.Background(), store, f)
	if err != nil {
		return util.WrapError("exporting documents", err)
	}
	log.Infof("exported documents to %s", path)
	return
}
