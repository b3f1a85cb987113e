// relaytest is a load generator for the realtime channel. It ramps up a
// number of concurrent authenticated clients, holds them for a sustain
// period and reports delivery counters while a broadcast source (the
// domain services, or manual NATS publishes) feeds the channel.
package main

import (
	"flag"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/badarshafiq1122/mental-health-tracker/internal/auth"
	"github.com/badarshafiq1122/mental-health-tracker/internal/logging"
	"github.com/badarshafiq1122/mental-health-tracker/internal/protocol"
	"github.com/badarshafiq1122/mental-health-tracker/pkg/wsclient"
)

type counters struct {
	connected atomic.Int64
	messages  atomic.Int64
	errors    atomic.Int64
}

func main() {
	var (
		wsURL    = flag.String("url", "ws://localhost:3002/ws", "channel endpoint")
		secret   = flag.String("secret", "", "JWT secret shared with the server")
		clients  = flag.Int("clients", 100, "number of concurrent clients")
		rampRate = flag.Int("ramp", 25, "clients started per second")
		sustain  = flag.Duration("sustain", time.Minute, "hold duration after ramp-up")
		report   = flag.Duration("report", 5*time.Second, "reporting interval")
		owners   = flag.Int64("owners", 10, "number of distinct owner identities")
	)
	flag.Parse()

	logger := logging.New("info", "pretty")
	if *secret == "" {
		logger.Fatal().Msg("-secret is required")
	}

	validator := auth.NewValidator(*secret, logger)
	stats := &counters{}

	managers := make([]*wsclient.Manager, 0, *clients)
	interval := time.Second / time.Duration(max(*rampRate, 1))

	logger.Info().
		Int("clients", *clients).
		Int("ramp_per_sec", *rampRate).
		Dur("sustain", *sustain).
		Msg("starting load test")

	for i := 0; i < *clients; i++ {
		token, err := validator.Generate(int64(i)%*owners+1, time.Hour)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to mint token")
		}

		m := wsclient.NewManager(wsclient.Options{
			URL:    *wsURL,
			Token:  token,
			Logger: zerolog.Nop(),
		})
		m.Subscribe(wsclient.Subscriber{
			OnMessage: func(msg protocol.Message) {
				if msg.Type != protocol.TypePing && msg.Type != protocol.TypePong {
					stats.messages.Add(1)
				}
			},
			OnConnectionChange: func(connected bool) {
				if connected {
					stats.connected.Add(1)
				} else {
					stats.connected.Add(-1)
				}
			},
			OnError: func(error) { stats.errors.Add(1) },
		})
		m.Connect()
		managers = append(managers, m)

		time.Sleep(interval)
	}

	logger.Info().Int("clients", len(managers)).Msg("ramp-up complete")

	ticker := time.NewTicker(*report)
	defer ticker.Stop()
	deadline := time.After(*sustain)
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

loop:
	for {
		select {
		case <-ticker.C:
			logger.Info().
				Int64("connected", stats.connected.Load()).
				Int64("messages", stats.messages.Load()).
				Int64("errors", stats.errors.Load()).
				Msg("progress")
		case <-deadline:
			break loop
		case <-sig:
			logger.Warn().Msg("interrupted")
			break loop
		}
	}

	for _, m := range managers {
		m.Close()
	}

	logger.Info().
		Int64("messages", stats.messages.Load()).
		Int64("errors", stats.errors.Load()).
		Msg("load test finished")
}
