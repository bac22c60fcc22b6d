package observer

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"microbots.ai/internal/observerproto"
	"microbots.ai/internal/sim/engine"
	"microbots.ai/internal/sim/tuning"
)

// Runner is the part of engine.Runner the observer needs.
type Runner interface {
	Current() *engine.Engine
	Restart()
}

type Options struct {
	// AllowRemote accepts observers from non-loopback addresses.
	AllowRemote bool

	// AckTimeout releases a round that an ack-subscribed client has not
	// acknowledged in time. Zero waits indefinitely.
	AckTimeout time.Duration
}

type Stats struct {
	Clients     int
	AckClients  int
	AckTimeouts uint64
	Dropped     uint64
}

type client struct {
	id         string
	ack        bool
	countsOnly bool

	rounds  chan []byte
	results chan []byte

	acked  atomic.Uint64
	closed atomic.Bool
}

type Server struct {
	runner Runner
	log    *log.Logger
	opts   Options

	upgrader websocket.Upgrader
	nextID   atomic.Uint64

	mu      sync.Mutex
	clients map[string]*client
	changed chan struct{}

	ackTimeouts atomic.Uint64
	dropped     atomic.Uint64
}

func NewServer(r Runner, logger *log.Logger, opts Options) *Server {
	return &Server{
		runner: r,
		log:    logger,
		opts:   opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
		clients: map[string]*client{},
		changed: make(chan struct{}),
	}
}

func (s *Server) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Stats{
		Clients:     len(s.clients),
		AckTimeouts: s.ackTimeouts.Load(),
		Dropped:     s.dropped.Load(),
	}
	for _, c := range s.clients {
		if c.ack {
			st.AckClients++
		}
	}
	return st
}

// Pump consumes committed rounds from the engine sink, fans them out to every
// client and acknowledges each round once all ack-subscribed clients have.
// It returns when ctx is done or in is closed.
func (s *Server) Pump(ctx context.Context, in <-chan engine.RoundDone) {
	stopWait := func() {}
	defer func() { stopWait() }()
	for {
		select {
		case <-ctx.Done():
			return
		case rd, ok := <-in:
			if !ok {
				return
			}
			stopWait()
			waiting := s.broadcast(rd.Snapshot)
			if len(waiting) == 0 {
				release(rd.Ack)
				stopWait = func() {}
				continue
			}
			wctx, cancel := context.WithCancel(ctx)
			stopWait = cancel
			go s.awaitAcks(wctx, rd, waiting)
		}
	}
}

func release(ack chan<- struct{}) {
	if ack == nil {
		return
	}
	select {
	case ack <- struct{}{}:
	default:
	}
}

// broadcast sends snap to every client and returns the ack-subscribed ones.
func (s *Server) broadcast(snap *engine.Snapshot) []*client {
	if snap == nil {
		return nil
	}
	full, err := json.Marshal(RoundMessage(snap, true))
	if err != nil {
		s.logf("observer: encode round: %v", err)
		return nil
	}
	counts, _ := json.Marshal(RoundMessage(snap, false))

	s.mu.Lock()
	defer s.mu.Unlock()
	var waiting []*client
	for _, c := range s.clients {
		b := full
		if c.countsOnly {
			b = counts
		}
		if c.ack {
			c.acked.Store(0)
			waiting = append(waiting, c)
		}
		if !sendLatest(c.rounds, b) {
			s.dropped.Add(1)
		}
	}
	return waiting
}

func (s *Server) awaitAcks(ctx context.Context, rd engine.RoundDone, waiting []*client) {
	defer release(rd.Ack)
	var timeout <-chan time.Time
	if s.opts.AckTimeout > 0 {
		t := time.NewTimer(s.opts.AckTimeout)
		defer t.Stop()
		timeout = t.C
	}
	round := rd.Snapshot.Round
	for {
		s.mu.Lock()
		changed := s.changed
		s.mu.Unlock()
		if allAcked(waiting, round) {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-timeout:
			s.ackTimeouts.Add(1)
			s.logf("observer: round %d not acknowledged within %s; continuing", round, s.opts.AckTimeout)
			return
		case <-changed:
		}
	}
}

func allAcked(waiting []*client, round uint64) bool {
	for _, c := range waiting {
		if !c.closed.Load() && c.acked.Load() != round {
			return false
		}
	}
	return true
}

// notify wakes every ack waiter.
func (s *Server) notify() {
	s.mu.Lock()
	close(s.changed)
	s.changed = make(chan struct{})
	s.mu.Unlock()
}

// sendLatest enqueues b, replacing the oldest pending message when ch is full.
// It reports false when a message was displaced.
func sendLatest(ch chan []byte, b []byte) bool {
	select {
	case ch <- b:
		return true
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- b:
	default:
	}
	return false
}

// RoundMessage converts a snapshot into its wire form.
func RoundMessage(snap *engine.Snapshot, withBots bool) observerproto.RoundMsg {
	msg := observerproto.RoundMsg{
		Type:            observerproto.TypeRound,
		ProtocolVersion: observerproto.Version,
		RunID:           snap.RunID,
		Round:           snap.Round,
		ElapsedMS:       snap.Elapsed.Milliseconds(),
		State:           snap.State.String(),
		Reason:          snap.Reason,
		Winner:          string(snap.Winner),
		PacingMS:        snap.Pacing.Milliseconds(),
		Counts:          make(map[string]int, len(snap.Counts)),
		Total:           snap.Total,
	}
	for id, n := range snap.Counts {
		msg.Counts[string(id)] = n
	}
	if withBots {
		msg.Bots = make([]observerproto.BotState, len(snap.Bots))
		for i, b := range snap.Bots {
			msg.Bots[i] = observerproto.BotState{
				I:       b.Index,
				Row:     b.Pos.Row,
				Col:     b.Pos.Col,
				Facing:  b.Facing.String(),
				Species: string(b.Species),
			}
		}
	}
	return msg
}

func (s *Server) BootstrapHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !s.allowed(r) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		e := s.runner.Current()
		if e == nil {
			http.Error(rw, "no run", http.StatusServiceUnavailable)
			return
		}

		m := e.Arena().Map()
		snap := e.Latest()
		resp := observerproto.BootstrapResponse{
			ProtocolVersion: observerproto.Version,
			RunID:           e.RunID(),
			Round:           snap.Round,
			State:           snap.State.String(),
			PacingMS:        e.Pacing().Milliseconds(),
			Rates:           tuning.RateNames(),
			Victory:         e.Victory().String(),
			Arena: observerproto.ArenaParams{
				MapID:    m.ID(),
				Rows:     m.Rows(),
				Cols:     m.Cols(),
				Boundary: e.Arena().Boundary().String(),
				Layout:   m.Layout(),
			},
		}
		for _, sp := range e.Species() {
			resp.Species = append(resp.Species, observerproto.SpeciesInfo{ID: string(sp.ID), Name: sp.Name, Color: sp.Color})
		}

		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(resp)
	}
}

func (s *Server) WSHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !s.allowed(r) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// Handshake: must send SUBSCRIBE first.
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var sub observerproto.SubscribeMsg
		if err := json.Unmarshal(msg, &sub); err != nil {
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "bad subscribe"), time.Now().Add(time.Second))
			return
		}
		if sub.Type != observerproto.TypeSubscribe || sub.ProtocolVersion != observerproto.Version {
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected SUBSCRIBE"), time.Now().Add(time.Second))
			return
		}

		c := &client{
			id:         fmt.Sprintf("O%d", s.nextID.Add(1)),
			ack:        sub.Ack,
			countsOnly: sub.CountsOnly,
			rounds:     make(chan []byte, 1),
			results:    make(chan []byte, 16),
		}
		s.join(c)
		defer s.leave(c)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// Writer goroutine.
		writeErr := make(chan error, 1)
		go func() {
			for {
				var b []byte
				select {
				case <-ctx.Done():
					writeErr <- ctx.Err()
					return
				case b = <-c.results:
				case b = <-c.rounds:
				}
				_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
				if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
					writeErr <- err
					return
				}
			}
		}()

		// Reader loop: ACKs and control commands.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			var cmd observerproto.CommandMsg
			if err := json.Unmarshal(msg, &cmd); err != nil {
				s.reply(c, "", observerproto.ErrBadRequest, "malformed command")
				continue
			}
			s.handle(c, cmd)
		}

		cancel()
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))

		// Best-effort wait for the writer to stop so it doesn't outlive conn.
		select {
		case <-writeErr:
		case <-time.After(500 * time.Millisecond):
		}
	}
}

func (s *Server) join(c *client) {
	s.mu.Lock()
	s.clients[c.id] = c
	s.mu.Unlock()
	// A new client starts from the latest committed round.
	if e := s.runner.Current(); e != nil {
		if snap := e.Latest(); snap != nil {
			if b, err := json.Marshal(RoundMessage(snap, !c.countsOnly)); err == nil {
				sendLatest(c.rounds, b)
			}
		}
	}
	s.logf("observer: %s joined (ack=%t)", c.id, c.ack)
}

func (s *Server) leave(c *client) {
	c.closed.Store(true)
	s.mu.Lock()
	delete(s.clients, c.id)
	s.mu.Unlock()
	s.notify()
	s.logf("observer: %s left", c.id)
}

func (s *Server) handle(c *client, cmd observerproto.CommandMsg) {
	if cmd.ProtocolVersion != observerproto.Version {
		s.reply(c, cmd.Type, observerproto.ErrBadRequest, "unsupported protocol_version")
		return
	}
	if cmd.Type == observerproto.TypeAck {
		c.acked.Store(cmd.Round)
		s.notify()
		return
	}
	if cmd.Type == observerproto.TypeRestart {
		s.runner.Restart()
		s.reply(c, cmd.Type, "", "")
		return
	}

	e := s.runner.Current()
	if e == nil {
		s.reply(c, cmd.Type, observerproto.ErrNoRun, "no run")
		return
	}
	switch cmd.Type {
	case observerproto.TypeCancel:
		if e.State() == engine.Terminated {
			s.reply(c, cmd.Type, observerproto.ErrTerminated, "run already terminated")
			return
		}
		e.RequestCancel()
		s.reply(c, cmd.Type, "", "")
	case observerproto.TypeSetRate:
		d := time.Duration(cmd.PacingMS) * time.Millisecond
		if cmd.Rate != "" {
			var ok bool
			if d, ok = tuning.RatePacing(cmd.Rate); !ok {
				s.reply(c, cmd.Type, observerproto.ErrBadRate, fmt.Sprintf("unknown rate %q", cmd.Rate))
				return
			}
		}
		if err := e.SetPacing(d); err != nil {
			s.reply(c, cmd.Type, observerproto.ErrBadRate, err.Error())
			return
		}
		s.reply(c, cmd.Type, "", "")
	default:
		s.reply(c, cmd.Type, observerproto.ErrBadRequest, fmt.Sprintf("unknown command %q", cmd.Type))
	}
}

func (s *Server) reply(c *client, forType, code, message string) {
	b, err := json.Marshal(observerproto.ResultMsg{
		Type:            observerproto.TypeResult,
		ProtocolVersion: observerproto.Version,
		For:             forType,
		OK:              code == "",
		Code:            code,
		Message:         message,
	})
	if err != nil {
		return
	}
	select {
	case c.results <- b:
	default:
		s.dropped.Add(1)
	}
}

func (s *Server) allowed(r *http.Request) bool {
	return s.opts.AllowRemote || isLoopbackRemote(r.RemoteAddr)
}

func (s *Server) logf(format string, args ...any) {
	if s.log != nil {
		s.log.Printf(format, args...)
	}
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
