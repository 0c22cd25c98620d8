// Command jackshim-demo is a manual test host for the shim: it opens a
// handful of in-process clients wired together through internal/client,
// runs a real-time cycle driver against them, and exposes a debug HTTP
// surface for poking at live object/ring state.
//
// Grounded on server/api.go's echo.New()-based debug server (HideBanner,
// recover middleware, JSON error handler) and server/server.go's
// top-level wiring of one process's long-running pieces.
package main

import (
	"context"
	"encoding/json"
	"log"
	"log/slog"
	"math"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"jackshim/internal/client"
	"jackshim/internal/portmix"
	"jackshim/internal/registry"
	"jackshim/internal/rtdriver"
	"jackshim/internal/shimconfig"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	cfg := shimconfig.Load(logger)

	pool := registry.NewFreePool()
	producer, err := client.Open("demo-producer", cfg, 1, pool, logger)
	if err != nil {
		log.Fatalf("open producer: %v", err)
	}
	consumer, err := client.Open("demo-consumer", cfg, 2, pool, logger)
	if err != nil {
		log.Fatalf("open consumer: %v", err)
	}
	producer.Activate()
	consumer.Activate()

	out, err := producer.RegisterPort("out", portmix.DirectionOutput, portmix.TypeAudio, portmix.FlagOutput)
	if err != nil {
		log.Fatalf("register out: %v", err)
	}
	in, err := consumer.RegisterPort("in", portmix.DirectionInput, portmix.TypeAudio, portmix.FlagInput)
	if err != nil {
		log.Fatalf("register in: %v", err)
	}
	mix := out.CreateMix(in, 1)
	in.Mixes = append(in.Mixes, mix)

	const demoFrames = 256
	sampleRate := cfg.Rate
	if sampleRate == 0 {
		sampleRate = 48000
	}
	paSource := maybeOpenPortaudioSource(logger, os.Getenv("JACKSHIM_DEMO_AUDIO") == "1", float64(sampleRate), demoFrames)
	if paSource != nil {
		defer paSource.Close()
	}

	driver := rtdriver.New(10*time.Millisecond, demoFrames)
	driver.SetProcess(func(frames uint32) bool {
		buf := out.PrepareOutput(frames)
		if paSource != nil {
			captured, err := paSource.Read()
			if err != nil {
				logger.Warn("portaudio read failed, falling back to silence", "error", err)
				paSource = nil
			} else {
				writePCMFloats(buf, captured)
			}
		}
		if paSource == nil {
			for i := range buf {
				buf[i] = 0
			}
		}
		out.CompleteProcess()
		_ = in.GetBuffer(frames)
		producer.DrainNotifications()
		consumer.DrainNotifications()
		return true
	})

	ctx, cancel := context.WithCancel(context.Background())
	go driver.Run(ctx)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	e.GET("/debug/objects", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]any{
			"producer_ports_out": producer.PortCount(portmix.DirectionOutput),
			"consumer_ports_in":  consumer.PortCount(portmix.DirectionInput),
			"links":              len(consumer.Links().Links()),
		})
	})
	e.GET("/debug/ring", func(c echo.Context) error {
		stats := driver.CycleTimes()
		return c.JSON(http.StatusOK, map[string]any{
			"cycle_min_ns": stats.Min.Nanoseconds(),
			"cycle_max_ns": stats.Max.Nanoseconds(),
			"cycle_avg_ns": stats.Avg.Nanoseconds(),
			"xruns":        stats.XRuns,
			"samples":      stats.Samples,
		})
	})

	addr := os.Getenv("JACKSHIM_DEMO_ADDR")
	if addr == "" {
		addr = ":17819"
	}
	go func() {
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Error("debug server exited", "error", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	cancel()
	shutCtx, shutCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutCancel()
	e.Shutdown(shutCtx)

	encodeFinal(logger, driver)
}

// writePCMFloats copies captured PCM float32 samples into an output port's
// raw little-endian byte buffer (portmix.Port.GetBuffer's wire shape).
func writePCMFloats(dst []byte, src []float32) {
	for i, v := range src {
		if (i+1)*4 > len(dst) {
			break
		}
		bits := math.Float32bits(v)
		dst[i*4+0] = byte(bits)
		dst[i*4+1] = byte(bits >> 8)
		dst[i*4+2] = byte(bits >> 16)
		dst[i*4+3] = byte(bits >> 24)
	}
}

func encodeFinal(logger *slog.Logger, driver *rtdriver.Driver) {
	stats := driver.CycleTimes()
	b, _ := json.Marshal(stats)
	logger.Info("final cycle stats", "stats", string(b))
}
