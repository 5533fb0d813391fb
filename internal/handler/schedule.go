package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/emberhearth/scheduler/internal/model"
	"github.com/emberhearth/scheduler/internal/schedule"
)

// ScheduleHandler is the transport boundary for the engine's
// collaborators: the conversational layer, the activity generator, and
// the desktop panels all go through these endpoints.
type ScheduleHandler struct {
	manager *schedule.Manager
	logger  *slog.Logger
}

func NewScheduleHandler(m *schedule.Manager, logger *slog.Logger) *ScheduleHandler {
	return &ScheduleHandler{manager: m, logger: logger}
}

// Routes registers the schedule endpoints on mux.
func (h *ScheduleHandler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/schedules", h.Create)
	mux.HandleFunc("GET /api/schedules", h.List)
	mux.HandleFunc("GET /api/schedules/{id}", h.Get)
	mux.HandleFunc("PATCH /api/schedules/{id}", h.Update)
	mux.HandleFunc("DELETE /api/schedules/{id}", h.Delete)
	mux.HandleFunc("POST /api/schedules/{id}/confirm", h.Confirm)
	mux.HandleFunc("GET /api/schedules/pending", h.Pending)
	mux.HandleFunc("GET /api/free-slots", h.FreeSlots)
	mux.HandleFunc("GET /api/day-summary", h.DaySummary)
}

type createRequest struct {
	Title           string  `json:"title"`
	Description     string  `json:"description"`
	Location        string  `json:"location"`
	Kind            string  `json:"kind"`
	Priority        *int    `json:"priority"`
	StartTime       string  `json:"start_time"`
	EndTime         string  `json:"end_time"`
	Date            string  `json:"date"`
	AnchorDate      string  `json:"anchor_date"`
	Pattern         string  `json:"recurrence_pattern"`
	RecurrenceEnd   *string `json:"recurrence_end_date"`
	InvolvesUser    bool    `json:"involves_user"`
	GeneratedReason string  `json:"generated_reason"`
	Metadata        string  `json:"metadata"`
	CheckConflict   bool    `json:"check_conflict"`
}

type createResponse struct {
	Success  bool             `json:"success"`
	Schedule *model.Schedule  `json:"schedule,omitempty"`
	Message  string           `json:"message"`
	Evicted  []model.Schedule `json:"evicted,omitempty"`
}

func (h *ScheduleHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	start, err := model.ParseClock(req.StartTime)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "start_time must be HH:MM"})
		return
	}
	end, err := model.ParseClock(req.EndTime)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "end_time must be HH:MM"})
		return
	}

	createReq := schedule.CreateRequest{
		Title:           req.Title,
		Description:     req.Description,
		Location:        req.Location,
		Kind:            model.Kind(req.Kind),
		Start:           start,
		End:             end,
		Pattern:         req.Pattern,
		InvolvesUser:    req.InvolvesUser,
		GeneratedReason: req.GeneratedReason,
		Metadata:        req.Metadata,
		CheckConflict:   req.CheckConflict,
	}
	if req.Priority != nil {
		createReq.Priority = model.Priority(*req.Priority)
	}
	if req.Date != "" {
		d, err := time.Parse("2006-01-02", req.Date)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "date must be YYYY-MM-DD"})
			return
		}
		createReq.Date = d
	}
	if req.AnchorDate != "" {
		d, err := time.Parse("2006-01-02", req.AnchorDate)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "anchor_date must be YYYY-MM-DD"})
			return
		}
		createReq.Anchor = d
	}
	if req.RecurrenceEnd != nil {
		d, err := time.Parse("2006-01-02", *req.RecurrenceEnd)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "recurrence_end_date must be YYYY-MM-DD"})
			return
		}
		createReq.RecurrenceEnd = &d
	}

	result, err := h.manager.Create(createReq)
	if err != nil {
		h.logger.Error("create schedule", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to create schedule"})
		return
	}

	status := http.StatusCreated
	if !result.OK {
		// A conflict or invalid request is a negotiable outcome, not a
		// server failure.
		status = http.StatusConflict
	}
	writeJSON(w, status, createResponse{
		Success:  result.OK,
		Schedule: result.Schedule,
		Message:  result.Message,
		Evicted:  result.Evicted,
	})
}

func (h *ScheduleHandler) Get(w http.ResponseWriter, r *http.Request) {
	sched, err := h.manager.Get(r.PathValue("id"))
	if err != nil {
		h.logger.Error("get schedule", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to get schedule"})
		return
	}
	if sched == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "schedule not found"})
		return
	}
	writeJSON(w, http.StatusOK, sched)
}

func (h *ScheduleHandler) List(w http.ResponseWriter, r *http.Request) {
	start, err := parseDateParam(r, "start")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "start must be YYYY-MM-DD"})
		return
	}
	end, err := parseDateParam(r, "end")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "end must be YYYY-MM-DD"})
		return
	}
	queryableOnly := r.URL.Query().Get("queryable_only") != "false"

	occurrences, err := h.manager.InRange(start, end, queryableOnly)
	if err != nil {
		h.logger.Error("list schedules", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list schedules"})
		return
	}
	if occurrences == nil {
		occurrences = []schedule.Occurrence{}
	}
	writeJSON(w, http.StatusOK, occurrences)
}

type updateRequest struct {
	Title         *string `json:"title"`
	Description   *string `json:"description"`
	Location      *string `json:"location"`
	Priority      *int    `json:"priority"`
	StartTime     *string `json:"start_time"`
	EndTime       *string `json:"end_time"`
	Date          *string `json:"date"`
	AnchorDate    *string `json:"anchor_date"`
	RecurrenceEnd *string `json:"recurrence_end_date"`
	Metadata      *string `json:"metadata"`
}

func (h *ScheduleHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req updateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	update := model.Update{
		Title:       req.Title,
		Description: req.Description,
		Location:    req.Location,
		Metadata:    req.Metadata,
	}
	if req.Priority != nil {
		p := model.Priority(*req.Priority)
		update.Priority = &p
	}
	for _, f := range []struct {
		raw  *string
		dest **model.Clock
	}{{req.StartTime, &update.Start}, {req.EndTime, &update.End}} {
		if f.raw == nil {
			continue
		}
		c, err := model.ParseClock(*f.raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "clock times must be HH:MM"})
			return
		}
		*f.dest = &c
	}
	for _, f := range []struct {
		raw  *string
		dest **time.Time
	}{{req.Date, &update.Date}, {req.AnchorDate, &update.Anchor}, {req.RecurrenceEnd, &update.RecurrenceEnd}} {
		if f.raw == nil {
			continue
		}
		d, err := time.Parse("2006-01-02", *f.raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "dates must be YYYY-MM-DD"})
			return
		}
		*f.dest = &d
	}

	sched, err := h.manager.Update(r.PathValue("id"), update)
	if err != nil {
		if errors.Is(err, schedule.ErrInvalidUpdate) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		h.logger.Error("update schedule", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to update schedule"})
		return
	}
	if sched == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "schedule not found"})
		return
	}
	writeJSON(w, http.StatusOK, sched)
}

func (h *ScheduleHandler) Delete(w http.ResponseWriter, r *http.Request) {
	deleted, err := h.manager.Delete(r.PathValue("id"))
	if err != nil {
		h.logger.Error("delete schedule", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to delete schedule"})
		return
	}
	if !deleted {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "schedule not found"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type confirmRequest struct {
	Accept bool `json:"accept"`
}

func (h *ScheduleHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	var req confirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	ok, err := h.manager.Confirm(r.PathValue("id"), req.Accept)
	if err != nil {
		h.logger.Error("confirm schedule", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to confirm schedule"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"confirmed": ok})
}

func (h *ScheduleHandler) Pending(w http.ResponseWriter, r *http.Request) {
	pending, err := h.manager.Pending()
	if err != nil {
		h.logger.Error("list pending", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list pending schedules"})
		return
	}
	if pending == nil {
		pending = []model.Schedule{}
	}
	writeJSON(w, http.StatusOK, pending)
}

func (h *ScheduleHandler) FreeSlots(w http.ResponseWriter, r *http.Request) {
	date, err := parseDateParam(r, "date")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "date must be YYYY-MM-DD"})
		return
	}

	window := schedule.FullDay
	if from := r.URL.Query().Get("from"); from != "" {
		c, err := model.ParseClock(from)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "from must be HH:MM"})
			return
		}
		window.Start = c
	}
	if to := r.URL.Query().Get("to"); to != "" {
		c, err := model.ParseClock(to)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "to must be HH:MM"})
			return
		}
		window.End = c
	}

	slots, err := h.manager.FreeSlots(date, window)
	if err != nil {
		h.logger.Error("free slots", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to compute free slots"})
		return
	}
	if slots == nil {
		slots = []schedule.Interval{}
	}
	writeJSON(w, http.StatusOK, slots)
}

func (h *ScheduleHandler) DaySummary(w http.ResponseWriter, r *http.Request) {
	date, err := parseDateParam(r, "date")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "date must be YYYY-MM-DD"})
		return
	}

	summary, err := h.manager.DaySummary(date)
	if err != nil {
		h.logger.Error("day summary", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to build day summary"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"summary": summary})
}

func parseDateParam(r *http.Request, name string) (time.Time, error) {
	return time.Parse("2006-01-02", r.URL.Query().Get(name))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
