// Command eureka-client registers an instance with Eureka-compatible
// registries and inspects their contents.
//
// Usage:
//
//	eureka-client [flags] run                 register, renew until SIGINT/SIGTERM, deregister
//	eureka-client [flags] apps                print all applications
//	eureka-client [flags] app                 print the instances of the configured app
//	eureka-client [flags] instance            print the registry's view of this instance
//	eureka-client [flags] status <STATUS>     override this instance's status
//	eureka-client [flags] deregister          remove this instance
//
// With -metrics-addr, run also serves Prometheus metrics on /metrics.
//
// Configuration comes from defaults, EUREKA_* environment variables, the
// optional -config file and finally the flags.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/itsneelabh/eureka"
)

func main() {
	var (
		configFile      = flag.String("config", "", "JSON or YAML configuration file")
		serviceURLs     = flag.String("url", "", "comma separated registry URLs, tried in order")
		app             = flag.String("app", "", "application name")
		ip              = flag.String("ip", "", "instance IP address")
		port            = flag.Int("port", 0, "instance port")
		logLevel        = flag.String("log-level", "", "log level (debug, info, warn, error)")
		metricsAddr     = flag.String("metrics-addr", "", "serve Prometheus metrics on this address (run only)")
		timeout         = flag.Duration("timeout", 10*time.Second, "timeout for one-shot commands")
		shutdownTimeout = flag.Duration("shutdown-timeout", 10*time.Second, "time allowed to deregister on shutdown")
	)
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] run|apps|app|instance|status <STATUS>|deregister\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	command := flag.Arg(0)
	if command == "" {
		flag.Usage()
		os.Exit(2)
	}

	opts := []eureka.Option{}
	if *configFile != "" {
		opts = append(opts, eureka.WithConfigFile(*configFile))
	}
	if *serviceURLs != "" {
		opts = append(opts, eureka.WithServiceURLs(strings.Split(*serviceURLs, ",")...))
	}
	if *app != "" || *ip != "" || *port != 0 {
		inst := &eureka.InstanceConfig{App: *app, IPAddr: *ip}
		if *port != 0 {
			inst.Port = eureka.NewPort(*port)
		}
		opts = append(opts, eureka.WithInstance(inst))
	}
	if *logLevel != "" {
		opts = append(opts, eureka.WithLogLevel(*logLevel))
	}
	if *metricsAddr != "" && command == "run" {
		opts = append(opts, eureka.WithMetricsAddr(*metricsAddr))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registrar, err := eureka.New(ctx, opts...)
	if err != nil {
		log.Fatalf("Failed to create registry client: %v", err)
	}

	if err := execute(ctx, registrar, command, flag.Args()[1:], *timeout, *shutdownTimeout); err != nil {
		_ = registrar.Close(context.Background())
		log.Fatalf("%s: %v", command, err)
	}
}

func execute(ctx context.Context, registrar *eureka.Registrar, command string, args []string, timeout, shutdownTimeout time.Duration) error {
	if command == "run" {
		err := registrar.Run(ctx, shutdownTimeout)
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	}
	defer registrar.Close(context.Background())

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	client := registrar.Client()

	switch command {
	case "apps":
		return printPayload(client.QueryAll(ctx))
	case "app":
		return printPayload(client.QueryByApp(ctx))
	case "instance":
		return printPayload(client.QueryInstance(ctx))
	case "status":
		if len(args) != 1 {
			return fmt.Errorf("expected exactly one status value")
		}
		return client.UpdateStatus(ctx, eureka.Status(args[0]))
	case "deregister":
		status, err := client.Deregister(ctx)
		if err != nil {
			return err
		}
		fmt.Println(status)
		return nil
	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

func printPayload(payload json.RawMessage, err error) error {
	if err != nil {
		return err
	}
	var out bytes.Buffer
	if err := json.Indent(&out, payload, "", "  "); err != nil {
		_, werr := os.Stdout.Write(payload)
		return werr
	}
	out.WriteByte('\n')
	_, err = out.WriteTo(os.Stdout)
	return err
}
