package cmd

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/rs/cors"
	"github.com/spf13/cobra"
	"github.com/stellar/kelp/internal/balance"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Serves a read-only HTTP view of the balance manager's current state",
}

var serverManager *balance.Manager

// SetServerManager wires the balance manager the server command reports on; the trade command
// calls this before starting its bot loop. The trade command does not start the server, and a
// separate `kelp server` process has no manager wired, so its /balances and /reservations answer
// 503 Service Unavailable.
func SetServerManager(manager *balance.Manager) {
	serverManager = manager
}

func init() {
	port := serverCmd.Flags().Uint16P("port", "p", 8000, "port on which to serve")
	allowedOrigin := serverCmd.Flags().String("allowed-origin", "*", "CORS allowed origin for the status API")

	serverCmd.Run = func(ccmd *cobra.Command, args []string) {
		log.Printf("Starting Kelp status server: %s [%s]\n", version, gitHash)

		r := chi.NewRouter()
		r.Use(middleware.RequestID)
		r.Use(middleware.RealIP)
		r.Use(middleware.Logger)
		r.Use(middleware.Recoverer)
		r.Use(middleware.Timeout(10 * time.Second))
		r.Use(cors.New(cors.Options{AllowedOrigins: []string{*allowedOrigin}}).Handler)

		r.Get("/health", handleHealth)
		r.Get("/balances", handleBalances)
		r.Get("/reservations", handleReservations)

		portString := fmt.Sprintf(":%d", *port)
		log.Printf("Serving status API on HTTP port: %d\n", *port)
		log.Fatal(http.ListenAndServe(portString, r))
	}
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

func handleBalances(w http.ResponseWriter, r *http.Request) {
	if serverManager == nil {
		http.Error(w, "balance manager is not wired to this server", http.StatusServiceUnavailable)
		return
	}
	balances, e := serverManager.GetBalances()
	if e != nil {
		http.Error(w, e.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]interface{}{"initTime": balances.InitTime()})
}

func handleReservations(w http.ResponseWriter, r *http.Request) {
	if serverManager == nil {
		http.Error(w, "balance manager is not wired to this server", http.StatusServiceUnavailable)
		return
	}
	balances, e := serverManager.GetBalances()
	if e != nil {
		http.Error(w, e.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, balances.Reservations())
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if e := json.NewEncoder(w).Encode(v); e != nil {
		http.Error(w, e.Error(), http.StatusInternalServerError)
	}
}
