// Package mlog handles the log and its handlers
package mlog

import (
	"sync"

	"github.com/blindspot/blindspot/config"
	"github.com/go-playground/log"
	"github.com/go-playground/log/handlers/console"
	"github.com/go-playground/log/handlers/email"
)

// Handler is a log handler that can be attached with Init
type Handler uint8

const (
	DefaultTimeFormat = "2006-01-02 15:04:05"

	Console Handler = iota
	Email
)

var (
	// Is the server daemonized?
	Daemonized bool

	// Ensures no data races
	rw sync.Mutex

	// Ensure each handler is only added once
	consoleOnce, emailOnce sync.Once
)

// Init attaches a handler to the logger. Repeated calls with the same handler
// are no-ops.
func Init(h Handler) {
	rw.Lock()
	defer rw.Unlock()

	switch h {
	case Console:
		consoleOnce.Do(func() {
			c := console.New(true)
			c.SetTimestampFormat(DefaultTimeFormat)
			c.SetDisplayColor(!Daemonized)
			log.AddHandler(c, log.AllLevels...)
		})
	case Email:
		conf := config.Server.EmailErrors
		if !conf.Enabled {
			return
		}
		emailOnce.Do(func() {
			e := email.New(conf.Server, int(conf.Port), conf.Address,
				conf.Password, conf.Address, []string{conf.Address})
			e.SetTimestampFormat(DefaultTimeFormat)
			log.AddHandler(e, log.ErrorLevel, log.PanicLevel, log.AlertLevel,
				log.FatalLevel)
		})
	default:
		log.Fatal("invalid log handler: ", h)
	}
}
