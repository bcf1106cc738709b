// snapsink - snapcast streaming output daemon.
//
// Serves a synthetic PCM stream to snapcast clients over TCP, advertises
// the service over zeroconf, and exposes a status dashboard.
//
// Usage: SNAPSINK_PORT=1704 SNAPSINK_CODEC=wave go run ./cmd/snapsink
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/soundweave/snapsink/internal/config"
	"github.com/soundweave/snapsink/internal/log"
	"github.com/soundweave/snapsink/pkg/codec"
	"github.com/soundweave/snapsink/pkg/output"
	"github.com/soundweave/snapsink/pkg/pcm"
	"github.com/soundweave/snapsink/pkg/tags"
	"github.com/soundweave/snapsink/pkg/web"
)

// demoTracks rotate through SendTag so stream-tag delivery is observable
// from a real snapclient.
var demoTracks = []struct {
	artist, album, title string
}{
	{"Test Tone Orchestra", "Calibration Classics", "440 Hz Forever"},
	{"Test Tone Orchestra", "Calibration Classics", "Concert Pitch"},
	{"Sine Language", "Pure Waves", "No Harmonics"},
}

func main() {
	log.Init(config.LogLevel())
	logger := log.Component("main")

	cfg := output.DefaultConfig()
	cfg.Port = config.Port()
	cfg.BindAddresses = config.BindAddresses()
	cfg.Zeroconf = config.Zeroconf()
	cfg.Codec = config.Codec()

	out, err := output.New(cfg, log.Component("output"))
	if err != nil {
		logger.Error("bad configuration", "err", err)
		os.Exit(1)
	}

	if err := out.Enable(); err != nil {
		logger.Error("bind failed", "err", err)
		os.Exit(1)
	}

	format := codec.Format{SampleRate: 44100, Bits: 16, Channels: 2}
	if cfg.Codec == "opus" {
		format.SampleRate = 48000
	}

	if err := out.Open(format); err != nil {
		logger.Error("open failed", "err", err)
		os.Exit(1)
	}

	var dashboard *web.Server
	if port := config.WebPort(); port != "off" {
		dashboard = web.NewServer(port, log.Component("web"))
		dashboard.StatusFunc = out.Status
		dashboard.StartAsync()
	}

	srcCfg := pcm.DefaultConfig()
	srcCfg.SampleRate = format.SampleRate
	srcCfg.Channels = format.Channels

	src := pcm.NewSineGenerator(srcCfg, pcm.WithTone(440, 0.3))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go rotateTags(ctx, out, dashboard)

	logger.Info("streaming", "port", cfg.Port, "codec", cfg.Codec)

	// the producer loop: feed PCM, then sleep the pacing delay so
	// submission tracks real time
loop:
	for {
		select {
		case sig := <-sigCh:
			logger.Info("shutting down", "signal", sig.String())
			break loop
		default:
		}

		chunk := src.Next()
		if _, err := out.Play(chunk.Bytes()); err != nil {
			logger.Error("play failed", "err", err)
			break loop
		}

		time.Sleep(out.Delay())
	}

	cancel()

	// let connected clients hear everything we produced
	out.Drain()

	if err := out.Close(); err != nil {
		logger.Warn("close failed", "err", err)
	}
	if err := out.Disable(); err != nil {
		logger.Warn("unbind failed", "err", err)
	}
	if dashboard != nil {
		dashboard.Shutdown()
	}
}

// rotateTags cycles the demo metadata while the stream runs.
func rotateTags(ctx context.Context, out *output.Output, dashboard *web.Server) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	i := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			track := demoTracks[i%len(demoTracks)]
			i++

			t := tags.New()
			t.Add(tags.Artist, track.artist)
			t.Add(tags.Album, track.album)
			t.Add(tags.Title, track.title)
			out.SendTag(t)

			if dashboard != nil {
				dashboard.AddLog("tag", track.artist+" - "+track.title)
			}
		}
	}
}
