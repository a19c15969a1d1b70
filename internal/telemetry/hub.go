// Package telemetry keeps the status history of a worker session and serves
// it, the current device parameters and the latest spectrum over HTTP.
package telemetry

import (
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/rjboer/gosoapy/internal/device"
	"github.com/rjboer/gosoapy/internal/dsp"
)

const (
	defaultHistoryLimit = 500
	maxHistoryLimit     = 10_000

	// dbFloor replaces -Inf bins, which JSON cannot carry.
	dbFloor = -200.0
)

// Event is one status line from the worker.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Text      string    `json:"text"`
}

// SpectrumSnapshot is the most recent spectrum of received samples.
type SpectrumSnapshot struct {
	Updated    time.Time `json:"updated"`
	SampleRate float64   `json:"sampleRate"`
	PeakOffset float64   `json:"peakOffsetHz"`
	PeakDBFS   float64   `json:"peakDbfs"`
	MeanPower  float64   `json:"meanPowerDbfs"`
	Bins       []float64 `json:"bins"`
}

// Hub collects history and fans out status events to subscribers.
type Hub struct {
	mu           sync.RWMutex
	history      []Event
	historyLimit int
	subscribers  map[chan Event]struct{}
	params       func() device.Parameters
	spectrum     SpectrumSnapshot
}

// NewHub builds a hub keeping at most historyLimit events; zero or negative
// selects the default.
func NewHub(historyLimit int) *Hub {
	if historyLimit <= 0 {
		historyLimit = defaultHistoryLimit
	}
	historyLimit = min(historyLimit, maxHistoryLimit)
	return &Hub{
		historyLimit: historyLimit,
		subscribers:  make(map[chan Event]struct{}),
	}
}

// Report implements device.Reporter and records a status line.
func (h *Hub) Report(text string) {
	ev := Event{Timestamp: time.Now(), Text: text}

	h.mu.Lock()
	h.history = append(h.history, ev)
	if len(h.history) > h.historyLimit {
		h.history = h.history[len(h.history)-h.historyLimit:]
	}
	for ch := range h.subscribers {
		select {
		case ch <- ev:
		default:
		}
	}
	h.mu.Unlock()
}

// History returns a copy of the stored events.
func (h *Hub) History() []Event {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Event, len(h.history))
	copy(out, h.history)
	return out
}

// Subscribe registers a listener for live events. Slow listeners miss events.
func (h *Hub) Subscribe() (chan Event, func()) {
	ch := make(chan Event, 16)
	h.mu.Lock()
	h.subscribers[ch] = struct{}{}
	h.mu.Unlock()
	cancel := func() {
		h.mu.Lock()
		delete(h.subscribers, ch)
		close(ch)
		h.mu.Unlock()
	}
	return ch, cancel
}

// SetParams installs the source of the /api/params snapshot, typically
// soapy.Settings.DeviceParameters.
func (h *Hub) SetParams(fn func() device.Parameters) {
	h.mu.Lock()
	h.params = fn
	h.mu.Unlock()
}

// UpdateSpectrum replaces the spectrum snapshot.
func (h *Hub) UpdateSpectrum(spec dsp.Spectrum, meanPower float64) {
	offset, level := spec.Peak()
	snap := SpectrumSnapshot{
		Updated:    time.Now(),
		SampleRate: spec.SampleRate,
		PeakOffset: offset,
		PeakDBFS:   floor(level),
		MeanPower:  floor(meanPower),
		Bins:       make([]float64, len(spec.Bins)),
	}
	for i, v := range spec.Bins {
		snap.Bins[i] = floor(v)
	}

	h.mu.Lock()
	h.spectrum = snap
	h.mu.Unlock()
}

// Spectrum returns the latest snapshot.
func (h *Hub) Spectrum() SpectrumSnapshot {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.spectrum
}

func floor(v float64) float64 {
	if math.IsNaN(v) || v < dbFloor {
		return dbFloor
	}
	return v
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func getOnly(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func (h *Hub) handleStatus(w http.ResponseWriter, r *http.Request) {
	if getOnly(w, r) {
		writeJSON(w, h.History())
	}
}

func (h *Hub) handleParams(w http.ResponseWriter, r *http.Request) {
	if !getOnly(w, r) {
		return
	}
	h.mu.RLock()
	fn := h.params
	h.mu.RUnlock()
	if fn == nil {
		http.Error(w, "no device attached", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, fn())
}

func (h *Hub) handleSpectrum(w http.ResponseWriter, r *http.Request) {
	if getOnly(w, r) {
		writeJSON(w, h.Spectrum())
	}
}

func (h *Hub) handleLive(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch, cancel := h.Subscribe()
	defer cancel()

	for _, ev := range h.History() {
		writeEvent(w, ev)
	}
	flusher.Flush()

	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return
			}
			writeEvent(w, ev)
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

func writeEvent(w http.ResponseWriter, ev Event) {
	payload, _ := json.Marshal(ev)
	fmt.Fprintf(w, "data: %s\n\n", payload)
}
