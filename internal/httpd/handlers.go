package httpd

import (
	"context"
	"net/http"
	"os"
	"runtime"
	"sort"
	"time"

	"github.com/shirou/gopsutil/v3/process"
	"go.uber.org/zap"

	"github.com/matchforge/configurator/internal/client"
	"github.com/matchforge/configurator/pkg/json"
	"github.com/matchforge/configurator/pkg/logger"
)

// ConfigService is what the HTTP facade needs from the configuration
// client.
type ConfigService interface {
	ListDataSources(ctx context.Context) ([]string, error)
	AddDataSources(ctx context.Context, codes []string) (client.AddResult, error)
	ActiveConfigID(ctx context.Context) (int64, bool, error)
}

// Handler holds the route implementations.
type Handler struct {
	service ConfigService
	proc    *process.Process
	started time.Time
	logger  *zap.Logger
}

// NewHandler returns a Handler over the given service.
func NewHandler(service ConfigService) *Handler {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		logger.Get().Warn("cannot attach process stats collector", zap.Error(err))
	}
	return &Handler{
		service: service,
		proc:    proc,
		started: time.Now(),
		logger:  logger.Get().With(zap.String("component", "httpd")),
	}
}

// GetDataSources answers GET /datasources with the sorted registry codes.
func (h *Handler) GetDataSources(w http.ResponseWriter, r *http.Request) {
	codes, err := h.service.ListDataSources(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	sort.Strings(codes)
	writeJSON(w, http.StatusOK, codes)
}

// AddDataSources answers POST /datasources. The body is a JSON array of
// proposed codes; the response reports which were already present and
// which were created.
func (h *Handler) AddDataSources(w http.ResponseWriter, r *http.Request) {
	var codes []string
	if err := json.NewDecoder(r.Body).Decode(&codes); err != nil {
		writeInvalidRequest(w, "request body must be a JSON array of datasource codes")
		return
	}

	result, err := h.service.AddDataSources(r.Context(), codes)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

// healthResponse is the GET /health body.
type healthResponse struct {
	Status         string       `json:"status"`
	ActiveConfigID int64        `json:"activeConfigID"`
	Uptime         float64      `json:"uptime"`
	Process        processStats `json:"process"`
}

// processStats carries point-in-time process resource usage. Collection
// failures leave individual fields zero rather than failing the check.
type processStats struct {
	PID            int32   `json:"pid"`
	MemoryRSSBytes uint64  `json:"memoryRssBytes"`
	MemoryVMSBytes uint64  `json:"memoryVmsBytes"`
	CPUPercent     float64 `json:"cpuPercent"`
	Goroutines     int     `json:"goroutines"`
	Threads        int32   `json:"threads"`
	OpenFDs        int32   `json:"openFds"`
}

// Health answers GET /health with the active configuration ID, uptime in
// seconds, and process stats. A store that cannot answer makes the service
// unavailable.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	configID, _, err := h.service.ActiveConfigID(r.Context())
	if err != nil {
		h.logger.Error("health check cannot read configuration pointer", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, apiError{
			Code:    errCodeUnavailable,
			Message: "configuration store unavailable",
		})
		return
	}

	writeJSON(w, http.StatusOK, healthResponse{
		Status:         "UP",
		ActiveConfigID: configID,
		Uptime:         time.Since(h.started).Seconds(),
		Process:        h.processStats(),
	})
}

func (h *Handler) processStats() processStats {
	stats := processStats{Goroutines: runtime.NumGoroutine()}
	if h.proc == nil {
		return stats
	}

	stats.PID = h.proc.Pid
	if memInfo, err := h.proc.MemoryInfo(); err == nil {
		stats.MemoryRSSBytes = memInfo.RSS
		stats.MemoryVMSBytes = memInfo.VMS
	}
	if cpuPercent, err := h.proc.CPUPercent(); err == nil {
		stats.CPUPercent = cpuPercent
	}
	stats.Threads, _ = h.proc.NumThreads()
	stats.OpenFDs, _ = h.proc.NumFDs()
	return stats
}
