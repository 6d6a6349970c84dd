//go:build linux || darwin

// Daemonisation logic for the server

package server

import (
	"os"
	"syscall"
	"time"

	"github.com/blindspot/blindspot/mlog"
	"github.com/go-playground/log"
	"github.com/sevlyar/go-daemon"
)

func init() {
	handleDaemon = func(arg string) {
		switch arg {
		case "debug":
			startServer()
		case "stop":
			killDaemon()
			fallthrough
		case "init": // For internal use only
			os.Exit(0)
		case "restart":
			killDaemon()
			fallthrough
		case "start":
			daemonise()
		default:
			printUsage()
		}
	}
}

// Configuration variables for handling daemons
var daemonContext = &daemon.Context{
	PidFileName: ".pid",
	LogFileName: "error.log",
}

// Spawn a detached process to work in the background
func daemonise() {
	child, err := daemonContext.Reborn()
	if err != nil && err.Error() == "resource temporarily unavailable" {
		log.Fatal("server already running")
	}
	if child != nil {
		return
	}
	mlog.Daemonized = true
	defer daemonContext.Release()
	log.Info("server started ------------------------------------")
	go startServer()
	if err := daemon.ServeSignals(); err != nil {
		log.Fatalf("daemon runtime error: %s", err)
	}
	log.Info("server terminated")
}

// Terminate the running blindspot server daemon
func killDaemon() {
	proc, err := daemonContext.Search()
	if err != nil && (!os.IsNotExist(err) && err.Error() != "EOF") {
		log.Fatalf("error locating running daemon: %s", err)
	}
	if proc != nil {
		if err := proc.Signal(syscall.SIGTERM); err != nil {
			log.Fatalf("error killing running daemon: %s", err)
		}

		// Ascertain process has exited
		for {
			if err := proc.Signal(syscall.Signal(0)); err != nil {
				if err.Error() == "os: process already finished" {
					break
				}
				log.Fatalf("error ascertaining daemon exited: %s", err)
			}
			time.Sleep(100 * time.Millisecond)
		}
	}
}
