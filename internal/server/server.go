package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/audiolibrelab/actura/internal/audio"
	"github.com/audiolibrelab/actura/internal/output"
	"github.com/audiolibrelab/actura/internal/service"
	"github.com/audiolibrelab/actura/internal/watch"
)

// maxUploadSize bounds blobs accepted by /save
const maxUploadSize = 512 << 20

const shutdownTimeout = 5 * time.Second

// Server exposes the recorder over HTTP
type Server struct {
	service service.Service
	port    int
}

// StatusResponse represents the JSON response for status endpoint
type StatusResponse struct {
	Status          string             `json:"status"`
	Message         string             `json:"message,omitempty"`
	Session         *audio.SessionInfo `json:"session,omitempty"`
	LastError       string             `json:"last_error,omitempty"`
	Watch           *watch.Event       `json:"watch,omitempty"`
	OutputDirectory string             `json:"output_directory"`
}

// FilesResponse represents the JSON response for the files endpoint
type FilesResponse struct {
	Files           []service.RecordingInfo `json:"files"`
	TotalCount      int                     `json:"total_count"`
	OutputDirectory string                  `json:"output_directory"`
}

// New creates a new web server instance
func New(svc service.Service, port int) *Server {
	return &Server{
		service: svc,
		port:    port,
	}
}

// Handler returns the routes served by the server
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/start", s.handleStartRecording)
	mux.HandleFunc("/stop", s.handleStopRecording)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/save", s.handleSave)
	mux.HandleFunc("/devices", s.handleDevices)
	mux.HandleFunc("/api/files", s.handleFiles)
	mux.HandleFunc("/api/files/download/", s.handleFileDownload)
	return mux
}

// Start serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	localIP := getLocalIP()
	slog.Info("Starting Actura Web Server",
		"port", s.port,
		"local_url", fmt.Sprintf("http://%s:%d", localIP, s.port),
		"localhost_url", fmt.Sprintf("http://localhost:%d", s.port))

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// handleIndex lists the available endpoints
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	fmt.Fprint(w, `Actura recorder

POST /start              Start recording from the default input device
POST /stop               Stop the current recording
GET  /status             Recorder state and session info
POST /save?filename=     Save the request body in the output directory
GET  /devices            List capture devices
GET  /api/files          List recordings
`)
}

// handleStartRecording starts a new recording session
func (s *Server) handleStartRecording(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.sendMethodNotAllowed(w)
		return
	}

	path, err := s.service.StartRecording(r.Context())
	if err != nil {
		code := http.StatusInternalServerError
		switch {
		case errors.Is(err, audio.ErrAlreadyRecording):
			code = http.StatusConflict
		case audio.IsDeviceError(err):
			code = http.StatusServiceUnavailable
		}
		s.sendErrorResponse(w, code,
			fmt.Sprintf("Failed to start recording: %v", err),
			"operation", "start_recording")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Recording started",
		"path":    path,
	})
}

// handleStopRecording requests the current recording to stop. Stopping
// when idle is not an error.
func (s *Server) handleStopRecording(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.sendMethodNotAllowed(w)
		return
	}

	s.service.StopRecording()

	response := map[string]interface{}{
		"success": true,
		"message": "Recording stop requested",
	}

	if r.URL.Query().Get("wait") == "true" {
		info, err := s.service.WaitForRecording(r.Context())
		if err != nil {
			s.sendErrorResponse(w, http.StatusInternalServerError,
				fmt.Sprintf("Recording did not finish cleanly: %v", err),
				"operation", "stop_recording")
			return
		}
		response["message"] = "Recording stopped"
		if info != nil {
			response["session"] = info
		}
	}

	writeJSON(w, http.StatusOK, response)
}

// handleStatus returns the current status and session info
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendMethodNotAllowed(w)
		return
	}

	status, session := s.service.GetRecordingStatus()

	writeJSON(w, http.StatusOK, StatusResponse{
		Status:          string(status),
		Message:         generateStatusMessage(status, session),
		Session:         session,
		LastError:       s.service.GetLastError(),
		Watch:           s.service.GetWatchStatus(),
		OutputDirectory: s.service.OutputDirectory(),
	})
}

func generateStatusMessage(status audio.Status, session *audio.SessionInfo) string {
	switch status {
	case audio.StatusRecording:
		if session != nil {
			return fmt.Sprintf("Recording to %s", filepath.Base(session.OutputFile))
		}
		return "Recording"
	case audio.StatusStopping:
		return "Finalizing recording"
	default:
		if session != nil && session.Failed {
			return fmt.Sprintf("Last recording failed: %s", session.Error)
		}
		return "Idle"
	}
}

// handleSave stores the request body verbatim
func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.sendMethodNotAllowed(w)
		return
	}

	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxUploadSize))
	if err != nil {
		s.sendErrorResponse(w, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("Failed to read upload: %v", err),
			"operation", "save")
		return
	}

	filename := r.URL.Query().Get("filename")
	path, err := s.service.SaveRawAudio(data, filename)
	if err != nil {
		code := http.StatusInternalServerError
		if filename != "" && output.SafeName(filename) == "" {
			code = http.StatusBadRequest
		}
		s.sendErrorResponse(w, code,
			fmt.Sprintf("Failed to save audio: %v", err),
			"filename", filename, "operation", "save")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"path":    path,
		"size":    len(data),
	})
}

// handleDevices lists capture devices
func (s *Server) handleDevices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendMethodNotAllowed(w)
		return
	}

	devices, err := s.service.ListDevices()
	if err != nil {
		s.sendErrorResponse(w, http.StatusServiceUnavailable,
			fmt.Sprintf("Failed to list devices: %v", err),
			"operation", "list_devices")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"devices": devices,
	})
}

// handleFiles lists recordings in the output directory
func (s *Server) handleFiles(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendMethodNotAllowed(w)
		return
	}

	files, err := s.service.ListRecordings()
	if err != nil {
		s.sendErrorResponse(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to read output directory: %v", err),
			"operation", "list_files")
		return
	}

	writeJSON(w, http.StatusOK, FilesResponse{
		Files:           files,
		TotalCount:      len(files),
		OutputDirectory: s.service.OutputDirectory(),
	})
}

// handleFileDownload serves a recording for download
func (s *Server) handleFileDownload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	filename := strings.TrimPrefix(r.URL.Path, "/api/files/download/")
	if filename == "" {
		http.Error(w, "Filename required", http.StatusBadRequest)
		return
	}

	// Validate filename (prevent path traversal)
	if output.SafeName(filename) != filename || !strings.HasPrefix(filename, output.RecordingPrefix) {
		http.Error(w, "Invalid filename", http.StatusBadRequest)
		return
	}

	filePath := filepath.Join(s.service.OutputDirectory(), filename)
	file, err := os.Open(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			http.Error(w, "File not found", http.StatusNotFound)
		} else {
			http.Error(w, "Error accessing file", http.StatusInternalServerError)
		}
		return
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		http.Error(w, "Error accessing file", http.StatusInternalServerError)
		return
	}

	contentType := mime.TypeByExtension(filepath.Ext(filename))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", filename))

	http.ServeContent(w, r, filename, info.ModTime(), file)
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("Failed to encode response", "error", err)
	}
}

func (s *Server) sendMethodNotAllowed(w http.ResponseWriter) {
	writeJSON(w, http.StatusMethodNotAllowed, map[string]interface{}{
		"success": false,
		"error":   "Method not allowed",
	})
}

func (s *Server) sendErrorResponse(w http.ResponseWriter, statusCode int, errorMsg string, logContext ...interface{}) {
	// Log the error with structured context
	logFields := []interface{}{"error_message", errorMsg, "status_code", statusCode}
	if len(logContext) > 0 {
		logFields = append(logFields, logContext...)
	}
	slog.Error("Sending error response to client", logFields...)

	writeJSON(w, statusCode, map[string]interface{}{
		"success": false,
		"error":   errorMsg,
	})
}

func getLocalIP() string {
	// Try to connect to a remote address to determine local IP
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "localhost"
	}
	defer conn.Close()

	localAddr := conn.LocalAddr().(*net.UDPAddr)
	return localAddr.IP.String()
}
