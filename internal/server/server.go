package server

import "net/http"

// Handler wires the websocket endpoint and the history API onto one mux.
func Handler(hub *Hub, sessions SessionManager, store RecordStore, opts Options) http.Handler {
	mux := http.NewServeMux()

	registerWSRoute(mux, hub, sessions)
	registerAPIRoutes(mux, store, opts)

	return mux
}
