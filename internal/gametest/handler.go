package gametest

import (
	"encoding/json"
	"net/http"

	"github.com/mesh-intelligence/goldrush/pkg/types"
)

// Handler serves w over the wire protocol.
func (w *World) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /explore", func(rw http.ResponseWriter, r *http.Request) {
		var area types.Area
		if !decode(rw, r, &area) {
			return
		}
		reply[types.Explore](rw)(w.Explore(r.Context(), area))
	})

	mux.HandleFunc("POST /licenses", func(rw http.ResponseWriter, r *http.Request) {
		var coins []types.Coin
		if !decode(rw, r, &coins) {
			return
		}
		reply[types.License](rw)(w.IssueLicense(r.Context(), coins))
	})

	mux.HandleFunc("GET /licenses", func(rw http.ResponseWriter, r *http.Request) {
		reply[[]types.License](rw)(w.ListLicenses(r.Context()))
	})

	mux.HandleFunc("POST /dig", func(rw http.ResponseWriter, r *http.Request) {
		var req types.DigRequest
		if !decode(rw, r, &req) {
			return
		}
		reply[[]string](rw)(w.Dig(r.Context(), req))
	})

	mux.HandleFunc("POST /cash", func(rw http.ResponseWriter, r *http.Request) {
		var tok string
		if !decode(rw, r, &tok) {
			return
		}
		reply[[]types.Coin](rw)(w.Cash(r.Context(), tok))
	})

	return mux
}

func decode(rw http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(rw, http.StatusUnprocessableEntity, map[string]any{"code": http.StatusUnprocessableEntity, "message": err.Error()})
		return false
	}
	return true
}

// reply adapts a (value, error) result into a response.
func reply[T any](rw http.ResponseWriter) func(T, error) {
	return func(v T, err error) {
		if err != nil {
			status := statusOf(err)
			writeJSON(rw, status, map[string]any{"code": status, "message": err.Error()})
			return
		}
		writeJSON(rw, http.StatusOK, v)
	}
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(v)
}
