// Command r2span runs one or more R2/MFC-R2 signaling spans and the
// admin control surface that manages them.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	r2span "github.com/telecore/r2span/src"
	"github.com/spf13/pflag"
)

func main() {
	var configFile = pflag.StringP("config-file", "c", "", "Span configuration file (YAML).")
	var name = pflag.StringP("name", "n", "span0", "Span name, used in log lines and the control surface.")
	var listen = pflag.StringP("listen", "l", "127.0.0.1:7402", "Admin control surface listen address.")
	var logLevels = pflag.StringP("log-levels", "L", "notice,warning,error", "Comma-separated log levels: debug,notice,warning,error.")
	var showVersion = pflag.BoolP("version", "V", false, "Print version and exit.")

	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "r2span - R2/MFC-R2 channel-associated-signaling span daemon.\n\n")
		fmt.Fprintf(os.Stderr, "Usage: r2span -c span.yaml [options]\n\n")
		pflag.PrintDefaults()
	}
	pflag.Parse()

	if *showVersion {
		fmt.Println(r2span.VersionString())
		os.Exit(0)
	}

	if *configFile == "" {
		fmt.Fprintln(os.Stderr, "r2span: -c/--config-file is required")
		pflag.Usage()
		os.Exit(1)
	}

	log := r2span.NewLogger(r2span.ParseLevelMask(*logLevels))

	cfg, err := r2span.LoadSpanConfig(*configFile)
	if err != nil {
		log.Errorf("load config: %v", err)
		os.Exit(1)
	}

	pe := r2span.NewLoopbackPE(cfg.Variant)

	bus := r2span.FuncTALBus(func(e r2span.UpwardEvent) *r2span.StartDecision {
		log.Infof("chan=%d event=%s ani=%q dnis=%q", e.Channel, e.Kind, e.ANI, e.DNIS)
		if e.Kind == r2span.EventStart {
			return &r2span.StartDecision{Accept: true}
		}
		return nil
	})

	tals := func(id r2span.ChannelID) (r2span.TALChannel, error) {
		path := fmt.Sprintf("/dev/r2span/%s/c%d", *name, id)
		return r2span.NewTALSerial(id, *name, path, 9600)
	}

	span, err := r2span.Configure(*name, cfg, pe, tals, bus, log)
	if err != nil {
		log.Errorf("configure span %s: %v", *name, err)
		os.Exit(1)
	}
	defer span.Destroy()

	reg := r2span.NewRegistry()
	if err := reg.Register(span); err != nil {
		log.Errorf("register span: %v", err)
		os.Exit(1)
	}

	ctrl := r2span.NewControlServer(reg, log, r2span.VersionString())
	go func() {
		if err := ctrl.ListenAndServe(*listen); err != nil {
			log.Errorf("control surface: %v", err)
		}
	}()
	defer ctrl.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	log.Infof("span %s running, admin on %s", *name, *listen)
	span.Run(ctx)
}
