package reporter

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"

	log "github.com/sirupsen/logrus"
)

const letters = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

func (rep *Reporter) randomString(size int) string {
	rep.randMu.Lock()
	defer rep.randMu.Unlock()
	return randomString(rep.rand, size)
}

func randomString(rand *rand.Rand, size int) string {
	b := make([]byte, size)
	for i := range b {
		b[i] = letters[rand.Intn(len(letters))]
	}
	return string(b)
}

func (rep *Reporter) newRequestLogger(r *http.Request) log.FieldLogger {
	return rep.logger.WithFields(log.Fields{
		"method": r.Method,
		"url":    r.URL.String(),
		"logID":  rep.randomString(10),
	})
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeErrorResponse(logger log.FieldLogger, w http.ResponseWriter, r *http.Request, status int, message string, args ...interface{}) {
	msg := fmt.Sprintf(message, args...)
	if status >= http.StatusInternalServerError {
		logger.Error(msg)
	} else {
		logger.Debug(msg)
	}
	writeResponseAsJSON(logger, w, status, errorResponse{Error: msg})
}

func writeResponseAsJSON(logger log.FieldLogger, w http.ResponseWriter, code int, resp interface{}) {
	enc, err := json.Marshal(resp)
	if err != nil {
		logger.WithError(err).Error("failed JSON-encoding HTTP response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if _, err = w.Write(enc); err != nil {
		logger.WithError(err).Error("failed writing HTTP response")
	}
}
