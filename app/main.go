package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	log "github.com/go-pkgz/lgr"
	"github.com/umputun/go-flags"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/pkondratev/gymlog/app/web"
)

var opts struct {
	Listen string `short:"l" long:"listen" env:"GYMLOG_LISTEN" default:"localhost:8080" description:"listen address"`
	DB     string `long:"db" env:"GYMLOG_DB" default:"gymlog.db" description:"sqlite database file"`
	Secret string `long:"secret" env:"GYMLOG_SECRET" default:"dev" description:"secret key for signed cookies"`
	Events string `long:"events" env:"GYMLOG_EVENTS" default:"logs.txt" description:"event trace file"`

	Log struct {
		Enabled         bool   `long:"enabled" env:"ENABLED" description:"enable file logging"`
		Filename        string `long:"file" env:"FILE" default:"gymlog.log" description:"log file name"`
		MaxSize         int    `long:"max-size" env:"MAX_SIZE" default:"100" description:"max size of log file (in Mb)"`
		MaxAge          int    `long:"max-age" env:"MAX_AGE" default:"0" description:"max age of log files (in days)"`
		MaxBackups      int    `long:"max-backups" env:"MAX_BACKUPS" default:"7" description:"max number of rotated log files"`
		EnabledCompress bool   `long:"enabled-compress" env:"ENABLED_COMPRESS" description:"enable compression of rotated log files"`
	} `group:"log" namespace:"log" env-namespace:"GYMLOG_LOG"`

	Dbg bool `long:"dbg" env:"GYMLOG_DEBUG" description:"debug mode"`
}

var revision = "unknown"

func main() {
	fmt.Printf("gymlog %s\n", revision)

	if _, err := flags.Parse(&opts); err != nil {
		os.Exit(2)
	}
	setupLogs()

	defer func() {
		if x := recover(); x != nil {
			log.Printf("[WARN] run time panic:\n%v", x)
			panic(x)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	signals(cancel) // handle SIGQUIT and SIGTERM

	srv, err := web.New(web.Config{
		DBPath:       opts.DB,
		EventLogPath: opts.Events,
		Secret:       opts.Secret,
		Version:      revision,
	})
	if err != nil {
		log.Fatalf("[ERROR] failed to create server: %v", err)
	}

	if err := srv.Run(ctx, opts.Listen); err != nil {
		log.Fatalf("[ERROR] server terminated, %v", err)
	}
}

// setupLogs configures lgr and returns the active log writer, a rotated
// file when file logging is enabled and stdout otherwise
func setupLogs() io.Writer {
	if !opts.Log.Enabled {
		if opts.Dbg {
			log.Setup(log.Debug, log.Msec, log.CallerFunc, log.CallerPkg, log.CallerFile)
			return os.Stdout
		}
		log.Setup(log.Msec)
		return os.Stdout
	}

	fileWriter := &lumberjack.Logger{
		Filename:   opts.Log.Filename,
		MaxSize:    opts.Log.MaxSize,
		MaxAge:     opts.Log.MaxAge,
		MaxBackups: opts.Log.MaxBackups,
		Compress:   opts.Log.EnabledCompress,
	}

	logOpts := []log.Option{log.Out(fileWriter), log.Err(fileWriter), log.Msec}
	if opts.Dbg {
		logOpts = append(logOpts, log.Debug, log.CallerFunc, log.CallerPkg, log.CallerFile)
	}
	log.Setup(logOpts...)
	return fileWriter
}

func signals(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	go func() {
		stacktrace := make([]byte, 8192)
		for sig := range sigChan {
			if sig == syscall.SIGQUIT { // catch SIGQUIT and print stack traces
				length := runtime.Stack(stacktrace, true)
				fmt.Println(string(stacktrace[:length]))
				continue
			}
			cancel() // terminate on SIGTERM/SIGINT
		}
	}()
	signal.Notify(sigChan, syscall.SIGQUIT, syscall.SIGTERM, syscall.SIGINT)
}
