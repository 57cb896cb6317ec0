package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"slipstream/internal/config"
	"slipstream/internal/grid"
	"slipstream/internal/physics"
	"slipstream/internal/race"
	"slipstream/internal/shared/logger"
	"slipstream/internal/shared/types"
	"slipstream/internal/simulation"
)

type client struct {
	carID string
	conn  *websocket.Conn
	send  chan []byte
}

type server struct {
	log      zerolog.Logger
	cfg      config.Config
	world    *simulation.World
	roster   *grid.Roster
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[string]*client
}

func main() {
	configPath := flag.String("config", "", "path to optional YAML config file")
	flag.Parse()

	log := logger.New("raceserver")

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("configuration failed")
	}

	track := race.DefaultTrack()
	if cfg.TrackFile != "" {
		track, err = race.LoadTrack(cfg.TrackFile)
		if err != nil {
			log.Fatal().Err(err).Msg("track failed validation")
		}
	}

	profile, err := physics.ByName(cfg.PhysicsModel)
	if err != nil {
		log.Fatal().Err(err).Msg("unknown physics model")
	}

	raceID := cfg.RaceID
	if raceID == "" {
		raceID = fmt.Sprintf("local_%d", time.Now().UTC().Unix())
	}

	world, err := simulation.NewWorld(raceID, track, cfg.TotalLaps, profile,
		physics.NewChipmunkSolver(), nil, log)
	if err != nil {
		log.Fatal().Err(err).Msg("race session failed to start")
	}

	// Audio/scoring collaborators subscribe to impacts; the server itself
	// keeps a diagnostic subscriber.
	world.Subscribe(race.ImpactListenerFunc(func(imp race.Impact) {
		log.Debug().
			Str("car", imp.CarID).
			Str("other", imp.OtherID).
			Float64("severity", imp.Severity).
			Msg("impact")
	}))

	s := &server{
		log:    log,
		cfg:    cfg,
		world:  world,
		roster: grid.NewRoster(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		clients: make(map[string]*client),
	}

	go s.runSimulationLoop()
	go s.runReplicationLoop()

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/ws", s.handleWS)

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	log.Info().
		Str("addr", cfg.ListenAddr).
		Str("race", raceID).
		Str("track", track.Name).
		Int("laps", cfg.TotalLaps).
		Msg("authoritative race server listening")
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("server failed")
	}
}

func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *server) handleWS(w http.ResponseWriter, r *http.Request) {
	carID := r.URL.Query().Get("car_id")
	displayName := r.URL.Query().Get("display_name")

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket upgrade error")
		return
	}

	entry := s.roster.Join(carID, displayName, 0, false)
	if err := s.world.EnsureCar(entry.CarID, entry.DisplayName); err != nil {
		s.log.Warn().Err(err).Str("car", entry.CarID).Msg("join rejected")
		_ = conn.Close()
		return
	}

	c := &client{carID: entry.CarID, conn: conn, send: make(chan []byte, 64)}
	s.register(c)

	s.log.Info().
		Str("car", entry.CarID).
		Str("remote", r.RemoteAddr).
		Msg("client connected")

	welcome := types.ServerEnvelope{
		Type:     "welcome",
		State:    ptrState(s.world.Snapshot()),
		ServerMS: time.Now().UTC().UnixMilli(),
		Message:  entry.CarID,
	}
	if payload, err := json.Marshal(welcome); err == nil {
		select {
		case c.send <- payload:
		default:
		}
	}

	go s.writePump(c)
	s.readPump(c)
}

func (s *server) readPump(c *client) {
	defer func() {
		s.unregister(c.carID)
		_ = c.conn.Close()
	}()

	_ = c.conn.SetReadDeadline(time.Now().Add(90 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(90 * time.Second))
		return nil
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Info().Str("car", c.carID).Msg("client disconnected")
				return
			}
			s.log.Warn().Err(err).Str("car", c.carID).Msg("read error")
			return
		}

		var in types.ClientEnvelope
		if err := json.Unmarshal(msg, &in); err != nil {
			s.sendError(c, "bad_payload")
			continue
		}

		switch in.Type {
		case "input":
			if in.Input == nil {
				s.sendError(c, "missing_input")
				continue
			}
			in.Input.CarID = c.carID
			s.world.ApplyControls(*in.Input)
		case "ping":
			pong := types.ServerEnvelope{Type: "pong", ServerMS: time.Now().UTC().UnixMilli()}
			if payload, err := json.Marshal(pong); err == nil {
				select {
				case c.send <- payload:
				default:
				}
			}
		default:
			s.sendError(c, "unsupported_message_type")
		}
	}
}

func (s *server) writePump(c *client) {
	ticker := time.NewTicker(20 * time.Second)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, []byte("keepalive")); err != nil {
				return
			}
		}
	}
}

func (s *server) register(c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[c.carID] = c
}

func (s *server) unregister(carID string) {
	s.mu.Lock()
	if c, ok := s.clients[carID]; ok {
		close(c.send)
		delete(s.clients, carID)
	}
	s.mu.Unlock()

	s.world.RemoveCar(carID)
}

func (s *server) sendError(c *client, message string) {
	payload, _ := json.Marshal(types.ServerEnvelope{
		Type:    "error",
		Message: message,
	})
	select {
	case c.send <- payload:
	default:
	}
}

func (s *server) runSimulationLoop() {
	ticker := time.NewTicker(time.Second / time.Duration(s.cfg.TickRate))
	defer ticker.Stop()
	dt := 1.0 / float64(s.cfg.TickRate)

	for range ticker.C {
		s.world.Tick(dt)
	}
}

func (s *server) runReplicationLoop() {
	ticker := time.NewTicker(time.Second / time.Duration(s.cfg.SnapshotRate))
	defer ticker.Stop()

	for range ticker.C {
		state := s.world.Snapshot()
		env := types.ServerEnvelope{
			Type:     "state",
			Tick:     state.Tick,
			State:    &state,
			ServerMS: time.Now().UTC().UnixMilli(),
		}
		payload, err := json.Marshal(env)
		if err != nil {
			s.log.Warn().Err(err).Msg("marshal state failed")
			continue
		}

		s.mu.RLock()
		for _, c := range s.clients {
			select {
			case c.send <- payload:
			default:
			}
		}
		s.mu.RUnlock()
	}
}

func ptrState(s types.RaceState) *types.RaceState {
	return &s
}
