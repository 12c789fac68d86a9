package api

import (
	"net/http"
	"strconv"

	"github.com/banshee-data/qbyte.report/internal/httputil"
	"github.com/banshee-data/qbyte.report/internal/monitoring"
	"github.com/banshee-data/qbyte.report/internal/reg"
	"github.com/banshee-data/qbyte.report/internal/regdb"
)

// runParamsFromQuery builds RunParams from query parameters, starting from
// the documented defaults. Unparseable values keep their default, matching
// the codec's tolerance for malformed fields.
func runParamsFromQuery(r *http.Request) reg.RunParams {
	p := reg.DefaultParams()
	q := r.URL.Query()

	if v := q.Get("color_z"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			p.ColorZ = f
		}
	}
	if v := q.Get("rot_z"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			p.RotZ = f
		}
	}
	if v := q.Get("width"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			p.SampleWidth = n
		}
	}
	if v := q.Get("truerng"); v != "" {
		p.UseTrueRNG = v == "true"
	}
	if v := q.Get("halo"); v != "" {
		p.Halo = v == "true"
	}
	if v := q.Get("turbo"); v != "" {
		p.Turbo = v == "true"
	}
	return p
}

// generate starts a generation run and streams it to the caller as
// server-sent events. ?continuous=true streams until the client disconnects;
// otherwise exactly ?iterations= trials run (default 60) and the final
// summary is sent before the stream ends. Either way the run is recorded in
// the catalog with the tallies that were actually persisted.
func (s *Server) generate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	params := runParamsFromQuery(r)
	continuous := r.URL.Query().Get("continuous") == "true"
	remarks := r.URL.Query().Get("remarks")
	iterations := 60
	if v := r.URL.Query().Get("iterations"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			httputil.BadRequest(w, "invalid 'iterations' parameter")
			return
		}
		iterations = n
	}

	cfg := reg.SessionConfig{
		Params:    params,
		OutputDir: s.dataDir,
		Remarks:   remarks,
		Delay:     s.trialDelay,
		Clock:     s.clock,
	}

	if params.UseTrueRNG && s.serialPath != "" {
		sampler, err := reg.OpenSerialSampler(s.serialPath)
		if err != nil {
			httputil.InternalServerError(w, err.Error())
			return
		}
		defer sampler.Close()
		cfg.Sampler = sampler
	}

	session, err := reg.NewSession(cfg)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	defer session.Close()

	run := regdb.NewRun(session.Name(), session.LogPath(), remarks, session.StartMillis(), params)
	if err := s.db.RecordRun(run); err != nil {
		monitoring.Logf("failed to record run %s: %v", session.Name(), err)
	}
	defer func() {
		if err := s.db.UpdateRunCounts(run.ID, session.Counts()); err != nil {
			monitoring.Logf("failed to update run counts for %s: %v", session.Name(), err)
		}
	}()

	sse, err := httputil.NewSSEWriter(w)
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}

	if continuous {
		for res := range session.Stream(r.Context()) {
			if err := sse.SendJSON(res); err != nil {
				// Client went away; r.Context() cancellation stops
				// the producer and the deferred catalog update runs.
				return
			}
		}
		return
	}

	summary, err := session.RunBounded(r.Context(), iterations)
	if err != nil {
		_ = sse.Send("Error: " + err.Error())
		_ = sse.Send("[END]")
		return
	}
	if err := sse.SendJSON(summary); err != nil {
		return
	}
	_ = sse.Send("[END]")
}
