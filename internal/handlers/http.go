package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"os"

	"go.uber.org/zap"

	"netgazer/internal/engine"
	"netgazer/internal/models"
)

const maxUploadSize = 100 << 20 // 100 MB

// DecodeResponse is the body returned by /api/decode.
type DecodeResponse struct {
	Frames  []models.FrameInfo `json:"frames"`
	Skipped int                `json:"skipped"`
}

// RegisterRoutes sets up all HTTP routes on the given mux.
func RegisterRoutes(mux *http.ServeMux, eng *engine.Engine, logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("http")

	mux.HandleFunc("/ws", HandleWebSocket(eng, logger))
	mux.HandleFunc("/api/interfaces", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, eng.GetInterfaces())
	})
	mux.HandleFunc("/api/stats", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, eng.Stats())
	})
	mux.HandleFunc("/api/flows", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, eng.Flows())
	})
	// Streams an uploaded capture to WebSocket clients.
	mux.HandleFunc("/api/upload", handleUpload(eng, logger, false))
	// Returns the decoded frames of an uploaded capture in the response.
	mux.HandleFunc("/api/decode", handleUpload(eng, logger, true))
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func handleUpload(eng *engine.Engine, logger *zap.Logger, respond bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST only", http.StatusMethodNotAllowed)
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
		if err := r.ParseMultipartForm(maxUploadSize); err != nil {
			http.Error(w, "File too large (max 100MB)", http.StatusBadRequest)
			return
		}

		file, header, err := r.FormFile("file")
		if err != nil {
			http.Error(w, "Missing file", http.StatusBadRequest)
			return
		}
		defer file.Close()

		// pcap readers work on files, so spool the upload to disk
		tmpFile, err := os.CreateTemp("", "netgazer-*.pcap")
		if err != nil {
			http.Error(w, "Failed to create temp file", http.StatusInternalServerError)
			return
		}
		tmpPath := tmpFile.Name()
		defer os.Remove(tmpPath)

		if _, err := io.Copy(tmpFile, file); err != nil {
			tmpFile.Close()
			http.Error(w, "Failed to save file", http.StatusInternalServerError)
			return
		}
		tmpFile.Close()
		logger.Info("capture uploaded", zap.String("file", header.Filename), zap.Int64("size", header.Size))

		if respond {
			frames, skipped, err := eng.DecodeFile(tmpPath)
			if err != nil {
				http.Error(w, "Failed to read pcap: "+err.Error(), http.StatusBadRequest)
				return
			}
			if frames == nil {
				frames = []models.FrameInfo{}
			}
			writeJSON(w, DecodeResponse{Frames: frames, Skipped: skipped})
			return
		}

		// Stop any active capture before loading file
		eng.StopCapture()

		if err := eng.LoadPcapFile(tmpPath); err != nil {
			http.Error(w, "Failed to read pcap: "+err.Error(), http.StatusBadRequest)
			return
		}

		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}
}
