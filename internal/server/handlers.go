package server

import (
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/GriffinCanCode/soundwatch/internal/audio"
	apperrors "github.com/GriffinCanCode/soundwatch/internal/errors"
	"github.com/GriffinCanCode/soundwatch/internal/patterns"
	"github.com/GriffinCanCode/soundwatch/internal/store"
	"github.com/GriffinCanCode/soundwatch/internal/trace"
)

// patternView is the API shape of a pattern; profiles stay server side.
type patternView struct {
	Name              string    `json:"name"`
	Active            bool      `json:"isActive"`
	DurationSeconds   float64   `json:"durationSeconds"`
	SampleRate        int       `json:"sampleRate"`
	DominantFrequency float64   `json:"dominantFrequency"`
	CreatedAt         time.Time `json:"createdAt"`
}

func viewOf(p patterns.Pattern) patternView {
	return patternView{
		Name:              p.Name,
		Active:            p.Active,
		DurationSeconds:   p.Duration().Seconds(),
		SampleRate:        p.SampleRate,
		DominantFrequency: p.Profile.Spectral.DominantFrequency,
		CreatedAt:         p.CreatedAt,
	}
}

// addPatternRequest is the JSON upload form. WAV uploads carry name and
// active as query parameters instead.
type addPatternRequest struct {
	Name       string    `json:"name"`
	Samples    []float32 `json:"samples"`
	SampleRate int       `json:"sample_rate"`
	Active     *bool     `json:"active"`
}

type addPatternResponse struct {
	Pattern patternView `json:"pattern"`
	Similar []string    `json:"similar,omitempty"`
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.det.ProcessingStats())
}

func (s *Server) handleListPatterns(w http.ResponseWriter, _ *http.Request) {
	snap := s.det.Patterns().Snapshot()
	out := make([]patternView, len(snap))
	for i, p := range snap {
		out[i] = viewOf(p)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAddPattern(w http.ResponseWriter, r *http.Request) {
	ctx, span := trace.StartSpan(r.Context(), "http_add_pattern")
	defer span.End()

	req, err := decodePattern(w, r)
	if err != nil {
		span.SetError(err)
		writeError(w, r, err)
		return
	}
	span.SetAttr("pattern", req.Name)

	if req.SampleRate < 0 {
		writeError(w, r, apperrors.Newf(apperrors.CodeInvalidArgument, "invalid sample_rate %d", req.SampleRate))
		return
	}
	rate := s.det.ProcessingStats().SampleRate
	samples := req.Samples
	if req.SampleRate > 0 && req.SampleRate != rate {
		if samples, err = audio.Resample(samples, req.SampleRate, rate); err != nil {
			writeError(w, r, err)
			return
		}
	}
	audio.Clamp(samples)

	active := req.Active == nil || *req.Active
	prev, replaced := s.det.Patterns().Get(req.Name)
	p, similar, err := s.det.AddReferencePattern(ctx, req.Name, samples, active)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if s.store != nil {
		rec := store.PatternRecord{Name: p.Name, SampleRate: rate, Samples: samples, Active: p.Active, CreatedAt: p.CreatedAt}
		if err := s.store.SavePattern(rec); err != nil {
			// Live patterns must match what survives a restart.
			if replaced {
				s.det.Patterns().Add(prev)
			} else {
				_ = s.det.RemoveReferencePattern(p.Name)
			}
			span.SetError(err)
			writeError(w, r, err)
			return
		}
	}
	writeJSON(w, http.StatusCreated, addPatternResponse{Pattern: viewOf(p), Similar: similar})
}

// decodePattern accepts either a JSON body or a raw WAV file.
func decodePattern(w http.ResponseWriter, r *http.Request) (addPatternRequest, error) {
	body := http.MaxBytesReader(w, r.Body, MaxPatternBodyBytes)
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	switch mediaType {
	case "audio/wav", "audio/x-wav", "audio/wave":
		data, err := io.ReadAll(body)
		if err != nil {
			return addPatternRequest{}, apperrors.Wrap(err, apperrors.CodeInvalidArgument, "read upload")
		}
		clip, err := audio.DecodeWAV(data)
		if err != nil {
			return addPatternRequest{}, err
		}
		req := addPatternRequest{Name: r.URL.Query().Get("name"), Samples: clip.Samples, SampleRate: clip.SampleRate}
		if v := r.URL.Query().Get("active"); v != "" {
			active, err := strconv.ParseBool(v)
			if err != nil {
				return addPatternRequest{}, apperrors.Newf(apperrors.CodeInvalidArgument, "invalid active flag %q", v)
			}
			req.Active = &active
		}
		return req, nil
	default:
		var req addPatternRequest
		if err := json.NewDecoder(body).Decode(&req); err != nil {
			return addPatternRequest{}, apperrors.Wrap(err, apperrors.CodeInvalidArgument, "invalid pattern body")
		}
		return req, nil
	}
}

func (s *Server) handleSetActive(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	var body struct {
		Active *bool `json:"active"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Active == nil {
		writeError(w, r, apperrors.New(apperrors.CodeInvalidArgument, `body must be {"active": bool}`))
		return
	}
	if err := s.det.UpdatePatternActive(name, *body.Active); err != nil {
		writeError(w, r, err)
		return
	}
	if s.store != nil {
		// Folder-watched patterns are not stored; that is fine.
		if err := s.store.SetPatternActive(name, *body.Active); err != nil && !apperrors.IsCode(err, apperrors.CodeNotFound) {
			writeError(w, r, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"name": name, "isActive": *body.Active})
}

func (s *Server) handleRemovePattern(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if err := s.det.RemoveReferencePattern(name); err != nil {
		writeError(w, r, err)
		return
	}
	if s.store != nil {
		if err := s.store.DeletePattern(name); err != nil {
			writeError(w, r, err)
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if err := s.det.Start(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"running": true})
}

func (s *Server) handleStop(w http.ResponseWriter, _ *http.Request) {
	s.det.Stop()
	writeJSON(w, http.StatusOK, map[string]bool{"running": false})
}

func (s *Server) handleSoundType(w http.ResponseWriter, r *http.Request) {
	seconds := DefaultSoundTypeSeconds
	if v := r.URL.Query().Get("seconds"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f <= 0 || f > MaxSoundTypeSeconds {
			writeError(w, r, apperrors.Newf(apperrors.CodeInvalidArgument, "seconds must be in (0, %g]", MaxSoundTypeSeconds))
			return
		}
		seconds = f
	}
	writeJSON(w, http.StatusOK, s.det.RecognizeType(seconds))
}

func (s *Server) handleDetections(w http.ResponseWriter, r *http.Request) {
	limit := DefaultDetectionLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, r, apperrors.Newf(apperrors.CodeInvalidArgument, "invalid limit %q", v))
			return
		}
		limit = min(n, MaxDetectionLimit)
	}
	if s.store == nil {
		writeJSON(w, http.StatusOK, []store.DetectionRecord{})
		return
	}
	recs, err := s.store.RecentDetections(limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if recs == nil {
		recs = []store.DetectionRecord{}
	}
	writeJSON(w, http.StatusOK, recs)
}

// feedbackRequest optionally names the detection so the verdict is kept in
// history.
type feedbackRequest struct {
	Accepted  *bool     `json:"accepted"`
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
}

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	pattern := r.PathValue("pattern")
	var req feedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Accepted == nil {
		writeError(w, r, apperrors.New(apperrors.CodeInvalidArgument, `body must include "accepted"`))
		return
	}
	if _, ok := s.det.Patterns().Get(pattern); !ok {
		writeError(w, r, apperrors.Newf(apperrors.CodeNotFound, "pattern %q not found", pattern))
		return
	}
	if s.store != nil && req.ID != "" {
		if err := s.store.SetDetectionFeedback(req.ID, req.Timestamp, *req.Accepted); err != nil {
			writeError(w, r, err)
			return
		}
	}
	s.det.Feedback(pattern, *req.Accepted)
	trace.Logger(r.Context()).Info("detection feedback", "pattern", pattern, "accepted", *req.Accepted)
	writeJSON(w, http.StatusOK, map[string]any{"pattern": pattern, "accepted": *req.Accepted})
}
