// Command oggseek inspects an Ogg file: it prints the stream metadata and
// buffered ranges, seeks, dumps frames, or serves frames over websocket and
// WebRTC.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/vdkogg/oggseek/av"
	"github.com/vdkogg/oggseek/format/ogg"
	"github.com/vdkogg/oggseek/format/ogg/source"
)

func main() {
	var (
		configPath = flag.String("config", "", "YAML config file")
		debug      = flag.Bool("debug", false, "debug logging")
		seek       = flag.Duration("seek", 0, "seek to this time before dumping frames")
		frames     = flag.Int("frames", 0, "number of frames to dump, -1 for all")
		listen     = flag.String("serve", "", "serve /stream and /webrtc on this address")
	)
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] file.ogg\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if *debug {
		cfg.LogLevel = "debug"
	}
	if *listen != "" {
		cfg.Listen = *listen
	}
	log := newLogger(os.Stderr, cfg.LogLevel)
	slog.SetDefault(log)
	cfg.Ogg.Logger = log

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	if cfg.Listen != "" {
		if err := serve(ctx, cfg, log, flag.Arg(0)); err != nil {
			log.Error("serve", "error", err)
			os.Exit(1)
		}
		return
	}
	if err := inspect(ctx, os.Stdout, flag.Arg(0), cfg.Ogg, *seek, *frames); err != nil {
		log.Error("inspect", "file", flag.Arg(0), "error", err)
		os.Exit(1)
	}
}

func inspect(ctx context.Context, w io.Writer, path string, cfg ogg.Config, seek time.Duration, frames int) error {
	f, err := source.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	d := ogg.NewDemuxerConfig(f, cfg)
	defer d.Close()

	meta, err := d.ReadMetadata(ctx)
	if err != nil {
		return err
	}
	printMetadata(w, meta)
	ranges, err := d.Buffered(ctx)
	if err != nil {
		return err
	}
	for _, r := range ranges {
		fmt.Fprintf(w, "buffered  %v - %v\n", r.Start, r.End)
	}
	fmt.Fprintf(w, "seekable  %v\n", d.IsSeekable())

	if seek > 0 {
		res, err := d.Seek(ctx, seek, 0, -1)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "seek      %v -> offset %d time %v (%d iterations, indexed %v)\n",
			seek, res.Offset, res.Time, res.Iterations, res.Indexed)
	}
	for n := 0; frames < 0 || n < frames; n++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		pkt, err := d.ReadPacket()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		printPacket(w, pkt)
	}
	if d.IsChained() {
		fmt.Fprintln(w, "chained   true")
	}
	return nil
}

func printMetadata(w io.Writer, meta *ogg.Metadata) {
	if meta.Audio != nil {
		fmt.Fprintf(w, "audio     %v %d Hz %d ch\n", meta.Audio.Type(), meta.Audio.SampleRate(), meta.Audio.Channels())
	}
	if meta.Video != nil {
		fmt.Fprintf(w, "video     %v %dx%d\n", meta.Video.Type(), meta.Video.Width(), meta.Video.Height())
	}
	if meta.Duration == av.UnknownDuration {
		fmt.Fprintln(w, "duration  unknown")
	} else {
		fmt.Fprintf(w, "duration  %v\n", meta.Duration)
	}
	fmt.Fprintf(w, "indexed   %v\n", meta.Indexed)
}

func printPacket(w io.Writer, pkt av.Packet) {
	key := ""
	if pkt.IsKeyFrame {
		key = " key"
	}
	fmt.Fprintf(w, "frame     #%d %12v %10v %6d bytes%s\n", pkt.Idx, pkt.Time, pkt.Duration, len(pkt.Data), key)
}
