package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/irradiance_calibration/internal/config"
)

// Server exposes calibration runs and their results over HTTP.
type Server struct {
	cfg       *config.Config
	publisher Publisher

	// runMu allows one pipeline run at a time; runs share output files.
	runMu sync.Mutex

	mu         sync.RWMutex
	lastResult *CalibrationResult
}

// NewServer returns a server for cfg. pub may be nil.
func NewServer(cfg *config.Config, pub Publisher) *Server {
	return &Server{cfg: cfg, publisher: pub}
}

// RunWeb serves the calibration UI on WEB_SERVER_PORT. When MQTT_BROKER is
// set, results are published there and results published by other runs
// are picked up from MQTT_TOPIC.
func RunWeb() error {
	cfg := config.Get()
	if cfg == nil {
		return errors.New("configuration not initialized")
	}

	srv := NewServer(cfg, nil)
	if cfg.MQTTBroker != "" {
		if err := srv.connectMQTT(); err != nil {
			log.Printf("web: continuing without MQTT: %v", err)
		}
	}

	addr := fmt.Sprintf(":%d", cfg.WebServerPort)
	log.Printf("web: server listening on %s", addr)
	return http.ListenAndServe(addr, srv.Handler())
}

func (s *Server) connectMQTT() error {
	pub, err := NewMQTTPublisher(s.cfg.MQTTBroker, s.cfg.MQTTClientID+"-web")
	if err != nil {
		return err
	}

	token := pub.client.Subscribe(s.cfg.MQTTTopic, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var res CalibrationResult
		if err := json.Unmarshal(msg.Payload(), &res); err != nil {
			log.Printf("web: MQTT payload unmarshal error: %v", err)
			return
		}
		s.setLatest(res)
	})
	token.Wait()
	if token.Error() != nil {
		pub.Close()
		return token.Error()
	}
	log.Printf("web: subscribed to MQTT topic %s", s.cfg.MQTTTopic)

	s.publisher = pub
	return nil
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/calibration/ws", s.HandleCalibrationWS)
	mux.HandleFunc("/api/calibration/latest", s.handleLatest)
	mux.Handle("/output/", http.StripPrefix("/output/", outputFilter(http.FileServer(http.Dir(s.outputDir())))))

	// Static files from ./web as the root
	mux.Handle("/", http.FileServer(http.Dir("web")))
	return mux
}

func (s *Server) outputDir() string {
	if s.cfg.OutputDir == "" {
		return "."
	}
	return s.cfg.OutputDir
}

// outputFilter only lets plots and result files through.
func outputFilter(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch strings.ToLower(filepath.Ext(r.URL.Path)) {
		case ".png", ".json":
			next.ServeHTTP(w, r)
		default:
			http.NotFound(w, r)
		}
	})
}

func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	res, err := s.latest()
	if errors.Is(err, os.ErrNotExist) {
		http.Error(w, "no calibration yet", http.StatusServiceUnavailable)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(res); err != nil {
		log.Printf("web: json encode error: %v", err)
	}
}

func (s *Server) setLatest(res CalibrationResult) {
	s.mu.Lock()
	s.lastResult = &res
	s.mu.Unlock()
}

// latest returns the most recent result seen by this server, falling back
// to the result file on disk.
func (s *Server) latest() (*CalibrationResult, error) {
	s.mu.RLock()
	res := s.lastResult
	s.mu.RUnlock()
	if res != nil {
		return res, nil
	}
	return ReadResult(s.cfg.OutputPath(s.cfg.ResultFile))
}
