package response

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
)

func RespondWithError(w http.ResponseWriter, code int, msg string, err error) {
	if err != nil {
		zap.L().Warn("Request failed", zap.Int("status", code), zap.String("msg", msg), zap.Error(err))
	}
	if code >= http.StatusInternalServerError {
		zap.L().Error("Responding with 5XX error", zap.String("msg", msg))
	}
	type errorResponse struct {
		Error string `json:"error"`
	}
	RespondWithJSON(w, code, errorResponse{Error: msg})
}

func RespondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	dat, err := json.Marshal(payload)
	if err != nil {
		zap.L().Error("Error marshalling JSON", zap.Error(err))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.WriteHeader(code)
	_, _ = w.Write(dat)
}
