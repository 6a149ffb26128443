package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/banshee-data/trajectory.report/internal/evaluation"
	"github.com/banshee-data/trajectory.report/internal/fusion"
	"github.com/banshee-data/trajectory.report/internal/httputil"
	"github.com/banshee-data/trajectory.report/internal/monitoring"
	"github.com/banshee-data/trajectory.report/internal/report"
	"github.com/banshee-data/trajectory.report/internal/store"
	"github.com/banshee-data/trajectory.report/internal/sweep"
)

// DefaultSweepPoints is how many values per axis a sweep without explicit
// candidates takes from the configured ranges.
const DefaultSweepPoints = 10

// Estimate is one fused step on the wire.
type Estimate struct {
	Index int     `json:"index"`
	Time  float64 `json:"time"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	VX    float64 `json:"vx"`
	VY    float64 `json:"vy"`
}

func toEstimates(steps []fusion.Step) []Estimate {
	out := make([]Estimate, len(steps))
	for i, st := range steps {
		out[i] = Estimate{
			Index: st.Index, Time: st.Timestamp,
			X: st.Position.X, Y: st.Position.Y,
			VX: st.Velocity.X, VY: st.Velocity.Y,
		}
	}
	return out
}

type datasetSummary struct {
	Name     string `json:"name"`
	Samples  int    `json:"samples"`
	HasTruth bool   `json:"has_truth"`
	ID       string `json:"id,omitempty"`
}

type paramsResponse struct {
	Params  fusion.Params              `json:"params"`
	Ranges  map[string]sweep.RangeSpec `json:"ranges"`
	Dataset datasetSummary             `json:"dataset"`
}

func (s *Server) handleParams(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, paramsResponse{
		Params: s.cfg.Params(),
		Ranges: map[string]sweep.RangeSpec{
			"process_variance":     s.cfg.GetProcessVarianceRange(),
			"measurement_variance": s.cfg.GetMeasurementVarianceRange(),
		},
		Dataset: datasetSummary{
			Name:     s.dataset.Name,
			Samples:  s.dataset.Len(),
			HasTruth: s.dataset.HasTruth(),
			ID:       s.datasetID,
		},
	})
}

type runRequest struct {
	ProcessVariance     *float64 `json:"process_variance"`
	MeasurementVariance *float64 `json:"measurement_variance"`
	Save                bool     `json:"save"`
}

type runResponse struct {
	Params        fusion.Params       `json:"params"`
	Estimates     []Estimate          `json:"estimates"`
	Metrics       *evaluation.Metrics `json:"metrics,omitempty"`
	InnovationRMS float64             `json:"innovation_rms"`
	RunID         string              `json:"run_id,omitempty"`
}

// fuseResult is one complete run over the served dataset.
type fuseResult struct {
	steps         []fusion.Step
	metrics       *evaluation.Metrics
	innovationRMS float64
}

func (f fuseResult) positions() []fusion.Vec2 {
	out := make([]fusion.Vec2, len(f.steps))
	for i, st := range f.steps {
		out[i] = st.Position
	}
	return out
}

func (s *Server) fuse(p fusion.Params) (fuseResult, error) {
	col := fusion.NewCollector()
	runner, err := fusion.NewRunner(p, fusion.WithRecorder(col))
	if err != nil {
		return fuseResult{}, err
	}
	var res fuseResult
	if _, err := runner.Stream(s.dataset.Measurements(), func(st fusion.Step) error {
		res.steps = append(res.steps, st)
		return nil
	}); err != nil {
		return fuseResult{}, err
	}
	res.innovationRMS = col.InnovationRMS()
	if m, err := evaluation.ForDataset(s.dataset, res.positions()); err == nil {
		res.metrics = &m
	} else if !errors.Is(err, evaluation.ErrNoTruth) {
		return fuseResult{}, err
	}
	return res, nil
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	var req runRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	p := s.cfg.Params()
	if req.ProcessVariance != nil {
		p.ProcessVariance = *req.ProcessVariance
	}
	if req.MeasurementVariance != nil {
		p.MeasurementVariance = *req.MeasurementVariance
	}
	if req.Save && s.store == nil {
		httputil.BadRequest(w, "save requested but no archive is attached")
		return
	}

	start := s.clock.Now()
	res, fuseErr := s.fuse(p)
	resp := runResponse{
		Params:        p,
		Estimates:     toEstimates(res.steps),
		Metrics:       res.metrics,
		InnovationRMS: res.innovationRMS,
	}

	// Failed runs are archived too, unless the parameters never made it
	// past validation.
	if req.Save && !errors.Is(fuseErr, fusion.ErrInvalidParameter) {
		run := &store.Run{
			DatasetID:     s.datasetID,
			Params:        p,
			Metrics:       res.metrics,
			InnovationRMS: res.innovationRMS,
			Duration:      s.clock.Since(start),
		}
		if fuseErr != nil {
			run.Status = store.StatusFailed
			run.Error = fuseErr.Error()
		}
		id, err := s.store.SaveRun(r.Context(), run, res.steps)
		if err != nil {
			httputil.InternalServerError(w, fmt.Sprintf("save run: %v", err))
			return
		}
		resp.RunID = id
		monitoring.Debugf("api: archived run %s (%s)", id, run.Status)
	}

	if fuseErr != nil {
		httputil.WriteError(w, fuseErr)
		return
	}
	httputil.WriteJSONOK(w, resp)
}

type sweepResponse struct {
	Points  int            `json:"points"`
	Best    *sweep.Result  `json:"best,omitempty"`
	Results []sweep.Result `json:"results"`
}

func (s *Server) handleSweep(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	q := r.URL.Query()
	pvs, err := sweepValues(q.Get("pv"), s.cfg.GetProcessVarianceRange())
	if err != nil {
		httputil.BadRequest(w, "pv: "+err.Error())
		return
	}
	mvs, err := sweepValues(q.Get("mv"), s.cfg.GetMeasurementVarianceRange())
	if err != nil {
		httputil.BadRequest(w, "mv: "+err.Error())
		return
	}
	grid, err := sweep.Grid(pvs, mvs)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	workers := s.cfg.GetSweepWorkers()
	if v := q.Get("workers"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			httputil.BadRequest(w, "workers must be a positive integer")
			return
		}
		workers = n
	}

	results, err := sweep.Run(r.Context(), s.dataset, grid, workers)
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	sweep.Rank(results)
	resp := sweepResponse{Points: len(results), Results: results}
	if best, ok := sweep.Best(results); ok {
		resp.Best = &best
	}
	httputil.WriteJSONOK(w, resp)
}

func sweepValues(s string, def sweep.RangeSpec) ([]float64, error) {
	if s == "" {
		return def.Limit(DefaultSweepPoints).Values(), nil
	}
	return sweep.ParseValues(s)
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.store == nil {
		httputil.NotFound(w, "no archive attached")
		return
	}
	runs, err := s.store.ListRuns(r.Context(), s.datasetID)
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	if runs == nil {
		runs = []store.Run{}
	}
	httputil.WriteJSONOK(w, map[string]interface{}{"runs": runs})
}

type runDetailResponse struct {
	Run       *store.Run `json:"run"`
	Estimates []Estimate `json:"estimates"`
}

func (s *Server) handleRunDetail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.store == nil {
		httputil.NotFound(w, "no archive attached")
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/api/runs/")
	if id == "" || strings.Contains(id, "/") {
		httputil.NotFound(w, "run not found")
		return
	}
	run, err := s.store.GetRun(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		httputil.NotFound(w, err.Error())
		return
	}
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	steps, err := s.store.RunEstimates(r.Context(), id)
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	httputil.WriteJSONOK(w, runDetailResponse{Run: run, Estimates: toEstimates(steps)})
}

// queryParams reads pv and mv from the query string, falling back to the
// configured defaults.
func (s *Server) queryParams(r *http.Request) (fusion.Params, error) {
	p := s.cfg.Params()
	q := r.URL.Query()
	fields := []struct {
		name string
		dst  *float64
	}{
		{"pv", &p.ProcessVariance},
		{"mv", &p.MeasurementVariance},
	}
	for _, f := range fields {
		v := q.Get(f.name)
		if v == "" {
			continue
		}
		n, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return p, fmt.Errorf("%s: %w", f.name, err)
		}
		*f.dst = n
	}
	return p, nil
}

func (s *Server) handleChart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	p, err := s.queryParams(r)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	res, err := s.fuse(p)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	subtitle := fmt.Sprintf("process_variance=%g measurement_variance=%g", p.ProcessVariance, p.MeasurementVariance)
	if res.metrics != nil {
		subtitle += fmt.Sprintf(" rmse=%.3f m (gps %.3f m)", res.metrics.RMSE, res.metrics.RawRMSE)
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := report.RenderHTML(w, s.dataset.Name, subtitle, report.FromRun(s.dataset, res.positions())); err != nil {
		monitoring.Logf("render chart: %v", err)
	}
}

func (s *Server) handlePlot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	p, err := s.queryParams(r)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	res, err := s.fuse(p)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	if err := report.WritePNG(w, s.dataset.Name, report.FromRun(s.dataset, res.positions()),
		s.cfg.GetPlotWidthCM(), s.cfg.GetPlotHeightCM()); err != nil {
		monitoring.Logf("render plot: %v", err)
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		httputil.NotFound(w, "not found")
		return
	}
	http.Redirect(w, r, "/chart", http.StatusFound)
}
