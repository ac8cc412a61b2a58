// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Cybenetics Labs

package cmd

import (
	"net/http"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/cybenetics/powenetics-go/pkg/powenetics"
)

var listenAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Publish live measurements to WebSocket clients",
	Long: `Start measurement and broadcast every frame to WebSocket clients.

Clients connect to ws://<listen>/stream and receive one binary CBOR message
per frame containing the frame timestamp and, for each channel: name,
voltage (mV), current (mA), and accumulated energy (nJ).

A slow client is disconnected rather than allowed to stall the stream.
Stops on Ctrl+C.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&listenAddr, "listen", "", "HTTP listen address (default \"localhost:8480\")")
}

// streamChannel is the per-channel section of a stream message.
type streamChannel struct {
	Name    string `cbor:"name"`
	Voltage uint16 `cbor:"voltage_mv"`
	Current uint32 `cbor:"current_ma"`
	Energy  uint64 `cbor:"energy_nj"`
}

// streamMessage is one frame on the wire.
type streamMessage struct {
	Timestamp int64           `cbor:"timestamp_us"`
	Channels  []streamChannel `cbor:"channels"`
}

// hub tracks connected WebSocket clients. Broadcast runs on the
// measurement goroutine; register/unregister run on HTTP goroutines.
type hub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
	log     zerolog.Logger
}

func newHub(log zerolog.Logger) *hub {
	return &hub{
		clients: make(map[*websocket.Conn]struct{}),
		log:     log,
	}
}

func (h *hub) add(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[conn] = struct{}{}
	h.log.Info().Str("remote", conn.RemoteAddr().String()).Int("clients", len(h.clients)).Msg("client connected")
}

func (h *hub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
		conn.Close()
		h.log.Info().Str("remote", conn.RemoteAddr().String()).Int("clients", len(h.clients)).Msg("client disconnected")
	}
}

// broadcast sends one message to every client, dropping clients whose
// writes fail or stall past the deadline.
func (h *hub) broadcast(payload []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for conn := range h.clients {
		conn.SetWriteDeadline(time.Now().Add(time.Second))
		if err := conn.WriteMessage(websocket.BinaryMessage, payload); err != nil {
			delete(h.clients, conn)
			conn.Close()
			h.log.Warn().Err(err).Str("remote", conn.RemoteAddr().String()).Msg("dropping client")
		}
	}
}

func (h *hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		conn.Close()
		delete(h.clients, conn)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	log := newLogger("serve")

	p, err := openDriver()
	if err != nil {
		return err
	}
	defer p.Close()

	addr := listenAddr
	if addr == "" {
		addr = cfg.Listen
	}
	if addr == "" {
		addr = "localhost:8480"
	}

	h := newHub(log)
	upgrader := websocket.Upgrader{
		ReadBufferSize:  256,
		WriteBufferSize: 4096,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/stream", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warn().Err(err).Msg("upgrade failed")
			return
		}
		h.add(conn)

		// Drain client messages to observe the close handshake.
		go func() {
			defer h.remove(conn)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()
	})

	server := &http.Server{Addr: addr, Handler: mux}
	go func() {
		log.Info().Str("listen", addr).Msg("websocket server listening on /stream")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("http server failed")
		}
	}()

	var stop atomic.Bool
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigs
		log.Info().Msg("interrupt received, stopping after current frame")
		stop.Store(true)
	}()

	p.Subscribe(powenetics.SubscriberFunc(func(d *powenetics.Data) (bool, error) {
		msg := streamMessage{
			Timestamp: d.LastUpdate().UnixMicro(),
			Channels:  make([]streamChannel, 0, powenetics.ChannelCount),
		}
		for _, ch := range d.Channels() {
			msg.Channels = append(msg.Channels, streamChannel{
				Name:    ch.Name(),
				Voltage: ch.Voltage(),
				Current: ch.Current(),
				Energy:  ch.Energy(),
			})
		}

		payload, err := cbor.Marshal(msg)
		if err != nil {
			return false, err
		}
		h.broadcast(payload)

		return stop.Load(), nil
	}))

	log.Info().Msg("starting measurement")
	streamErr := p.StartMeasurement()

	h.closeAll()
	server.Close()

	return streamErr
}
