package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"

	"github.com/opaluk/terneod/terneo"
)

func main() {
	host := flag.String("host", "", "thermostat IP address or hostname")
	sn := flag.String("sn", "", "thermostat serial number")
	httpPort := flag.Int("httpport", 8080, "HTTP port to listen on")
	interval := flag.Int("interval", 30, "poll interval in seconds")
	mqttBroker := flag.String("mqtt", "", "MQTT broker URL (tcp://host:1883), empty disables MQTT")
	diagnostics := flag.Bool("diagnostics", false, "expose raw parameter values over the API")
	debug := flag.Bool("debug", false, "log wire telegrams")

	flag.Parse()

	if *host == "" || *sn == "" {
		fmt.Print("must provide host and sn\n")
		flag.PrintDefaults()
		os.Exit(1)
	}

	log.SetLevel(log.InfoLevel)
	if *debug {
		log.SetLevel(log.DebugLevel)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := terneo.NewClient(ctx, terneo.Config{
		Host:         *host,
		SerialNumber: *sn,
		PollInterval: time.Duration(*interval) * time.Second,
	})
	if err != nil {
		log.Fatalf("invalid configuration: %s", err)
	}
	defer client.Stop()

	prometheus.MustRegister(newCollector(client, *sn))

	if *mqttBroker != "" {
		launchMQTT(ctx, *mqttBroker, *sn, client)
	}

	launchWebserver(ctx, *httpPort, client, *sn, *diagnostics)
}
