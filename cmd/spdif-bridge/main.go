package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"

	"github.com/spf13/pflag"

	"spdifbridge/bridge"
	"spdifbridge/bridge/ac3codec"
	"spdifbridge/bridge/device"
	"spdifbridge/bridge/sink"
)

const usage = "usage: spdif-bridge [--config path/to/config.yaml] [--ac3-decoder path/to/decoder.wasm] <input-source-name> [latency-microseconds]"

func main() {
	configPath := pflag.String("config", "", "path to a YAML config override file")
	decoderPath := pflag.String("ac3-decoder", "ac3dec.wasm", "path to the compiled AC-3 decoder WASM module")
	outputName := pflag.String("output", "", "playback device name (default device if empty)")
	pflag.Parse()

	args := pflag.Args()
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(1)
	}
	inputName := args[0]

	latencyMicros := 0
	if len(args) > 1 {
		v, err := strconv.Atoi(args[1])
		if err != nil || v <= 0 {
			fmt.Fprintln(os.Stderr, "advisory: latency argument unparseable or non-positive, using per-sink default buffer sizes")
		} else {
			latencyMicros = v
		}
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	cfg, err := bridge.LoadConfigOverrides(*configPath)
	if err != nil {
		logger.Error("config error", "error", err)
		os.Exit(1)
	}
	cfg.LatencyMicros = latencyMicros

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	capture, err := device.OpenPortAudioCapture(inputName, cfg.SampleRate, cfg.ChunkBytes/4)
	if err != nil {
		logger.Error("opening capture device failed", "error", err)
		os.Exit(1)
	}

	b := bridge.New(logger, cfg, bridge.Options{
		Capture: capture,
		OpenPCMPlayback: func() (device.Playback, error) {
			bufBytes := sink.BufferBytes(cfg.LatencyMicros, 2, cfg.PCMDefaultBufBytes)
			latencySeconds := float64(bufBytes) / (4.0 * 2 * float64(cfg.SampleRate))
			blockFrames := cfg.PCMConsumerBlock / 2
			return device.OpenPortAudioPlayback(*outputName, cfg.SampleRate, 2, blockFrames, latencySeconds)
		},
		OpenAC3Playback: func() (device.Playback, error) {
			bufBytes := sink.BufferBytes(cfg.LatencyMicros, 6, cfg.AC3DefaultBufBytes)
			latencySeconds := float64(bufBytes) / (4.0 * 6 * float64(cfg.SampleRate))
			blockFrames := cfg.AC3ConsumerBlock / 6
			return device.OpenPortAudioPlayback(*outputName, cfg.SampleRate, 6, blockFrames, latencySeconds)
		},
		OpenDecoder: func() (ac3codec.Decoder, error) {
			return ac3codec.OpenWASMDecoder(context.Background(), *decoderPath)
		},
	})

	logger.Info("spdif bridge starting", "input", inputName, "latency_micros", latencyMicros)
	if err := b.Run(ctx); err != nil {
		logger.Error("bridge run failed", "error", err)
		os.Exit(1)
	}
	logger.Info("spdif bridge shut down cleanly")
}
