package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

func main() {
	var cf = flag.String("config", "modbus_gateway.yml", "path to configuration file")
	flag.Parse()

	config, err := ReadConfigFile(*cf)
	if err != nil {
		log.Fatalf("read config: %s\n", err)
	}
	if config.Serial.Dump || config.Gateway.Dump {
		log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)
	}

	serial, err := OpenSerial(config.Serial)
	if err != nil {
		log.Fatalf("serial: %s\n", err)
	}
	defer serial.Close()
	dir, err := NewDirectionControl(config.Serial, serial)
	if err != nil {
		log.Fatalf("serial: %s\n", err)
	}
	link, err := NewLinkFramer(serial, dir, config.Serial.FrameSilence())
	if err != nil {
		log.Fatalf("serial: %s\n", err)
	}
	link.dump = config.Serial.Dump

	tcp, err := ListenTCP(config.Gateway.Listen)
	if err != nil {
		log.Fatalf("gateway: %s\n", err)
	}
	metrics := NewGatewayMetrics(config.Metrics)
	gateway := NewGateway(config.Gateway, tcp, link, metrics)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	if config.Metrics != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := metrics.Run(ctx); err != nil {
				log.Fatalf("metrics: %s\n", err)
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		tcp.Serve(ctx)
	}()
	wg.Add(1)
	go func() {
		defer wg.Done()
		gateway.Run(ctx)
	}()
	wg.Wait()
	log.Printf("Shutting down")
}
