package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/vdkogg/oggseek/av"
	"github.com/vdkogg/oggseek/format/ogg"
	"github.com/vdkogg/oggseek/format/ogg/source"
	webrtc "github.com/vdkogg/oggseek/format/webrtcv3"
	"github.com/vdkogg/oggseek/format/wsframe"
)

// server hands every client its own demuxer over path.
type server struct {
	path string
	cfg  ogg.Config
	log  *slog.Logger
}

func serve(ctx context.Context, cfg config, log *slog.Logger, path string) error {
	s := &server{path: path, cfg: cfg.Ogg, log: log}
	mux := http.NewServeMux()
	mux.HandleFunc("/stream", s.handleStream)
	mux.HandleFunc("/webrtc", s.handleWebRTC)
	srv := &http.Server{Addr: cfg.Listen, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdown)
	}()
	log.Info("listening", "addr", cfg.Listen, "file", path)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// open returns a demuxer positioned at the t query parameter.
func (s *server) open(r *http.Request) (*source.File, *ogg.Demuxer, error) {
	f, err := source.Open(s.path)
	if err != nil {
		return nil, nil, err
	}
	d := ogg.NewDemuxerConfig(f, s.cfg)
	fail := func(err error) (*source.File, *ogg.Demuxer, error) {
		d.Close()
		f.Close()
		return nil, nil, err
	}
	if _, err := d.ReadMetadata(r.Context()); err != nil {
		return fail(err)
	}
	if v := r.URL.Query().Get("t"); v != "" {
		t, err := time.ParseDuration(v)
		if err != nil {
			return fail(err)
		}
		if _, err := d.Seek(r.Context(), t, 0, -1); err != nil {
			return fail(err)
		}
	}
	return f, d, nil
}

func (s *server) handleStream(w http.ResponseWriter, r *http.Request) {
	f, d, err := s.open(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	defer f.Close()
	defer d.Close()
	streams, err := d.Streams()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	m, err := wsframe.NewMuxer(r, w)
	if err != nil {
		s.log.Warn("websocket upgrade", "error", err)
		return
	}
	defer m.WriteTrailer()
	log := s.log.With("session", m.Session())
	m.SetDuration(d.Duration())
	if err := m.WriteHeader(streams); err != nil {
		log.Warn("write header", "error", err)
		return
	}
	n, err := pump(r.Context(), d, m.WritePacket, false)
	log.Info("stream done", "frames", n, "error", err)
}

// handleWebRTC answers a base64 SDP offer posted as the request body and
// plays the Opus stream to the peer in real time.
func (s *server) handleWebRTC(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST an SDP offer", http.StatusMethodNotAllowed)
		return
	}
	offer, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	f, d, err := s.open(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	streams, err := d.Streams()
	if err != nil {
		d.Close()
		f.Close()
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	m := webrtc.NewMuxer()
	answer, err := m.WriteHeader(streams, string(offer))
	if err != nil {
		d.Close()
		f.Close()
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.Write([]byte(answer))

	go func() {
		defer f.Close()
		defer d.Close()
		defer m.Close()
		n, err := pump(context.Background(), d, m.WritePacket, true)
		s.log.Info("webrtc done", "frames", n, "error", err)
	}()
}

// pump copies packets from d to write until the end of the stream. With
// realtime set, packets are released no earlier than their media time.
func pump(ctx context.Context, d *ogg.Demuxer, write func(av.Packet) error, realtime bool) (n int, err error) {
	var (
		start time.Time
		base  time.Duration
	)
	for ; ; n++ {
		if err = ctx.Err(); err != nil {
			return
		}
		var pkt av.Packet
		if pkt, err = d.ReadPacket(); err != nil {
			if errors.Is(err, io.EOF) {
				err = nil
			}
			return
		}
		if realtime {
			if start.IsZero() {
				start, base = time.Now(), pkt.Time
			}
			if wait := time.Until(start.Add(pkt.Time - base)); wait > 0 {
				time.Sleep(wait)
			}
		}
		if err = write(pkt); err != nil {
			return
		}
	}
}
