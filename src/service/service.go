// Package service exposes the state of a helisync node over HTTP.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"

	"github.com/campnet/helisync/src/common"
	"github.com/campnet/helisync/src/node"
	"github.com/campnet/helisync/src/records"
	"github.com/campnet/helisync/src/store"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// Service ...
type Service struct {
	sync.Mutex

	bindAddress string
	node        *node.Node
	router      *mux.Router
	server      *http.Server
	logger      *logrus.Entry
}

// NewService ...
func NewService(bindAddress string, n *node.Node, logger *logrus.Entry) *Service {
	service := Service{
		bindAddress: bindAddress,
		node:        n,
		router:      mux.NewRouter(),
		logger:      logger,
	}

	service.registerHandlers()

	service.server = &http.Server{
		Addr:    bindAddress,
		Handler: service.router,
	}

	return &service
}

func (s *Service) registerHandlers() {
	s.logger.Debug("Registering helisync API handlers")
	s.router.HandleFunc("/stats", s.makeHandler(s.GetStats)).Methods("GET")
	s.router.HandleFunc("/requests", s.makeHandler(s.GetRequests)).Methods("GET")
	s.router.HandleFunc("/requests/{ticket}", s.makeHandler(s.GetRequest)).Methods("GET")
	s.router.HandleFunc("/timetable", s.makeHandler(s.GetTimetable)).Methods("GET")
	s.router.HandleFunc("/timetable/{flight}", s.makeHandler(s.GetTimetableEntry)).Methods("GET")
	s.router.HandleFunc("/peers/{role}", s.makeHandler(s.GetPeers)).Methods("GET")
	s.router.HandleFunc("/flight", s.makeHandler(s.GetFlight)).Methods("GET")
	s.router.Handle("/metrics", s.node.Metrics().Handler()).Methods("GET")
}

func (s *Service) makeHandler(fn func(http.ResponseWriter, *http.Request)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.Lock()
		defer s.Unlock()

		// enable CORS
		w.Header().Set("Access-Control-Allow-Origin", "*")

		fn(w, r)
	}
}

// Handler returns the router of the service.
func (s *Service) Handler() http.Handler {
	return s.router
}

// Serve calls ListenAndServe. This is a blocking call.
func (s *Service) Serve() {
	s.logger.WithField("bind_address", s.bindAddress).Debug("Serving helisync API")

	err := s.server.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.logger.Error(err)
	}
}

// Shutdown stops the HTTP server.
func (s *Service) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// GetStats ...
func (s *Service) GetStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.node.GetStats())
}

// GetRequests lists requests. The passenger query parameter restricts the
// list to the bookings of a passenger, unchecked=true to the requests the
// air company has not checked yet.
func (s *Service) GetRequests(w http.ResponseWriter, r *http.Request) {
	var (
		requests []*records.Request
		err      error
	)

	query := r.URL.Query()
	switch {
	case query.Get("passenger") != "":
		requests, err = store.BookingsByPassenger(s.node.Store(), query.Get("passenger"))
	case query.Get("unchecked") == "true":
		requests, err = store.Unchecked(s.node.Store())
	default:
		requests, err = s.node.Store().AllRequests()
	}

	if err != nil {
		s.logger.WithError(err).Error("Retrieving requests")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, requests)
}

// GetRequest ...
func (s *Service) GetRequest(w http.ResponseWriter, r *http.Request) {
	param := mux.Vars(r)["ticket"]

	ticket, err := records.ParseTicket(param)
	if err != nil {
		s.logger.WithError(err).Errorf("Parsing ticket parameter %s", param)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	request, err := s.node.Store().GetRequest(ticket)
	if err != nil {
		s.storeError(w, err, "Retrieving request "+param)
		return
	}

	writeJSON(w, request)
}

// GetTimetable ...
func (s *Service) GetTimetable(w http.ResponseWriter, r *http.Request) {
	timetable, err := s.node.Store().Timetable()
	if err != nil {
		s.logger.WithError(err).Error("Retrieving timetable")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, timetable)
}

// GetTimetableEntry ...
func (s *Service) GetTimetableEntry(w http.ResponseWriter, r *http.Request) {
	param := mux.Vars(r)["flight"]

	flightNumber, err := strconv.ParseInt(param, 10, 32)
	if err != nil {
		s.logger.WithError(err).Errorf("Parsing flight parameter %s", param)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	entry, err := s.node.Store().TimetableEntry(int32(flightNumber))
	if err != nil {
		s.storeError(w, err, "Retrieving flight "+param)
		return
	}

	writeJSON(w, entry)
}

// GetPeers ...
func (s *Service) GetPeers(w http.ResponseWriter, r *http.Request) {
	param := mux.Vars(r)["role"]

	role, err := records.ParseRole(param)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	peers, err := s.node.Peers(role)
	if err != nil {
		s.logger.WithError(err).Errorf("Resolving %s peers", role)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, peers)
}

// GetFlight ...
func (s *Service) GetFlight(w http.ResponseWriter, r *http.Request) {
	res := map[string]string{
		"role":  s.node.Role().String(),
		"state": s.node.FlightState().String(),
	}
	if d := s.node.FlightDuration(); d > 0 {
		res["duration"] = d.String()
	}
	writeJSON(w, res)
}

func (s *Service) storeError(w http.ResponseWriter, err error, msg string) {
	if common.IsStore(err, common.KeyNotFound) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	s.logger.WithError(err).Error(msg)
	http.Error(w, err.Error(), http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")

	json.NewEncoder(w).Encode(v)
}
