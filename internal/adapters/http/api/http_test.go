package api_test

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/Brian-Chae/mind-breeze-ai-report-sub010/internal/adapters/http/api"
	"github.com/Brian-Chae/mind-breeze-ai-report-sub010/internal/adapters/repository"
	app "github.com/Brian-Chae/mind-breeze-ai-report-sub010/internal/app"
	"github.com/Brian-Chae/mind-breeze-ai-report-sub010/internal/domain/catalog"
	"github.com/Brian-Chae/mind-breeze-ai-report-sub010/internal/domain/model"
	"github.com/Brian-Chae/mind-breeze-ai-report-sub010/internal/domain/pipeline"
	"github.com/Brian-Chae/mind-breeze-ai-report-sub010/internal/domain/types"
	"github.com/Brian-Chae/mind-breeze-ai-report-sub010/pkg/logger"
)

// fakeService is an in-memory stand-in for the service layer.
type fakeService struct {
	mu        sync.Mutex
	gates     map[string]types.GateStatus
	sessions  map[string]model.MeasurementSession
	jobs      map[string]model.PipelineJob
	balances  map[string]int
	subs      map[string][]func(model.PipelineJob)
	queueFull bool
	lastRank  struct {
		required model.DataTypes
		budget   int
	}
}

func newFakeService() *fakeService {
	return &fakeService{
		gates:    map[string]types.GateStatus{},
		sessions: map[string]model.MeasurementSession{},
		jobs:     map[string]model.PipelineJob{},
		balances: map[string]int{},
		subs:     map[string][]func(model.PipelineJob){},
	}
}

func (f *fakeService) OpenGate(_ context.Context, req types.OpenGateRequest) (types.GateStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if req.OwnerUserID == "" {
		return types.GateStatus{}, fmt.Errorf("%w: ownerUserId is required", app.ErrInvalidArgument)
	}
	if _, ok := f.gates[req.SessionID]; ok {
		return types.GateStatus{}, app.ErrGateExists
	}
	st := types.GateStatus{SessionID: req.SessionID, Profile: "strict"}
	f.gates[req.SessionID] = st
	return st, nil
}

func (f *fakeService) AddSamples(_ context.Context, id string, batch types.SampleBatch) (types.GateStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st, ok := f.gates[id]
	if !ok {
		return types.GateStatus{}, app.ErrGateNotFound
	}
	if err := batch.Validate(); err != nil {
		return types.GateStatus{}, fmt.Errorf("%w: %w", app.ErrInvalidArgument, err)
	}
	st.Samples += int64(len(batch.Samples))
	f.gates[id] = st
	return st, nil
}

func (f *fakeService) GateState(_ context.Context, id string) (types.GateStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st, ok := f.gates[id]
	if !ok {
		return types.GateStatus{}, app.ErrGateNotFound
	}
	return st, nil
}

func (f *fakeService) ReopenGate(ctx context.Context, id string) (types.GateStatus, error) {
	return f.GateState(ctx, id)
}

func (f *fakeService) SealSession(_ context.Context, id string, req types.SealRequest) (model.MeasurementSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st, ok := f.gates[id]
	if !ok {
		return model.MeasurementSession{}, app.ErrGateNotFound
	}
	if !st.Ready {
		return model.MeasurementSession{}, app.ErrGateNotReady
	}
	s := model.MeasurementSession{SessionID: id, OwnerUserID: "u-1", EEGSummary: req.EEGSummary}.Seal(time.Now())
	f.sessions[id] = s
	delete(f.gates, id)
	return s, nil
}

func (f *fakeService) GetSession(_ context.Context, id string) (model.MeasurementSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok {
		return model.MeasurementSession{}, pipeline.ErrSessionNotFound
	}
	return s, nil
}

func (f *fakeService) SubmitJob(_ context.Context, req pipeline.SubmitRequest) (model.PipelineJob, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if req.SessionID == "" {
		return model.PipelineJob{}, false, fmt.Errorf("%w: sessionId is required", pipeline.ErrInvalidRequest)
	}
	if j, ok := f.jobs[req.JobID]; ok {
		return j, true, nil
	}
	j := model.NewPipelineJob(req.JobID, req.SessionID, "mindbreeze-basic", time.Now())
	f.jobs[req.JobID] = j
	if f.queueFull {
		return j, false, fmt.Errorf("%w: queue full", app.ErrQueueUnavailable)
	}
	return j, false, nil
}

func (f *fakeService) GetJob(_ context.Context, id string) (model.PipelineJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[id]
	if !ok {
		return model.PipelineJob{}, pipeline.ErrJobNotFound
	}
	return j, nil
}

func (f *fakeService) ListJobs(_ context.Context, filter repository.Filter) ([]model.PipelineJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.PipelineJob
	for _, j := range f.jobs {
		if filter.SessionID != "" && j.SessionID != filter.SessionID {
			continue
		}
		out = append(out, j)
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (f *fakeService) CancelJob(_ context.Context, id string) (model.PipelineJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[id]
	if !ok {
		return model.PipelineJob{}, pipeline.ErrJobNotFound
	}
	if j.IsTerminal() {
		return j, pipeline.ErrCancelRefused
	}
	if j.Stage == model.StageExecuting {
		j.CancelRequested = true
		f.jobs[id] = j
		return j, nil
	}
	j.Enter(model.StageCancelled, time.Now())
	f.jobs[id] = j
	return j, nil
}

func (f *fakeService) ResumeJob(ctx context.Context, id string) (model.PipelineJob, error) {
	return f.GetJob(ctx, id)
}

func (f *fakeService) SubscribeJob(id string, fn func(model.PipelineJob)) (func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs[id] = append(f.subs[id], fn)
	return func() {}, nil
}

// advance moves a stored job to stage and notifies subscribers.
func (f *fakeService) advance(id string, stage model.Stage) {
	f.mu.Lock()
	j := f.jobs[id]
	j.Enter(stage, time.Now().Add(time.Millisecond))
	f.jobs[id] = j
	subs := append([]func(model.PipelineJob){}, f.subs[id]...)
	f.mu.Unlock()
	for _, fn := range subs {
		fn(j)
	}
}

func (f *fakeService) subscribers(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs[id])
}

func (f *fakeService) RankEngines(_ context.Context, required model.DataTypes, budget int) ([]catalog.RankedEngine, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastRank.required, f.lastRank.budget = required, budget
	return []catalog.RankedEngine{{
		Engine:      model.EngineDescriptor{ID: "mindbreeze-basic", CostPerAnalysis: 1},
		Score:       70,
		Affordable:  true,
		Recommended: true,
	}}, nil
}

func (f *fakeService) RateEngine(_ context.Context, id string, rating float64) (model.EngineUsage, error) {
	if id != "mindbreeze-basic" {
		return model.EngineUsage{}, app.ErrEngineNotFound
	}
	if rating < 1 || rating > 5 {
		return model.EngineUsage{}, app.ErrInvalidArgument
	}
	return model.EngineUsage{RatingCount: 1, AverageRating: rating}, nil
}

func (f *fakeService) TopUp(_ context.Context, id string, amount int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if amount <= 0 {
		return 0, app.ErrInvalidArgument
	}
	f.balances[id] += amount
	return f.balances[id], nil
}

func (f *fakeService) Balance(_ context.Context, id string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.balances[id], nil
}

func (f *fakeService) GetStats(context.Context) types.Stats {
	f.mu.Lock()
	defer f.mu.Unlock()
	return types.Stats{Started: true, Jobs: len(f.jobs), ActiveGates: len(f.gates)}
}

func do(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var r io.Reader = http.NoBody
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode[T any](w *httptest.ResponseRecorder) T {
	var v T
	So(json.Unmarshal(w.Body.Bytes(), &v), ShouldBeNil)
	return v
}

func TestServer_Routes(t *testing.T) {
	Convey("Given an API server over a fake service", t, func() {
		svc := newFakeService()
		h := api.NewServer(svc, api.WithLogger(logger.Nop())).Handler()

		Convey("System endpoints", func() {
			Convey("GET /healthz serves Prometheus metrics", func() {
				w := do(h, http.MethodGet, "/healthz", "")
				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Header().Get("Content-Type"), ShouldContainSubstring, "text/plain")
			})

			Convey("GET /stats serves the service summary", func() {
				svc.jobs["job-1"] = model.NewPipelineJob("job-1", "s-1", "e", time.Now())
				w := do(h, http.MethodGet, "/stats", "")
				So(w.Code, ShouldEqual, http.StatusOK)
				stats := decode[types.Stats](w)
				So(stats.Started, ShouldBeTrue)
				So(stats.Jobs, ShouldEqual, 1)
			})

			Convey("Responses carry a request ID", func() {
				req := httptest.NewRequest(http.MethodGet, "/stats", http.NoBody)
				req.Header.Set("X-Request-Id", "req-42")
				w := httptest.NewRecorder()
				h.ServeHTTP(w, req)
				So(w.Code, ShouldEqual, http.StatusOK)
			})

			Convey("Unknown routes answer 404", func() {
				So(do(h, http.MethodGet, "/leaderboard", "").Code, ShouldEqual, http.StatusNotFound)
			})
		})

		Convey("Engine endpoints", func() {
			Convey("Listing parses data flags and budget", func() {
				w := do(h, http.MethodGet, "/api/v1/engines?eeg=true&ppg=1&budget=5", "")
				So(w.Code, ShouldEqual, http.StatusOK)
				list := decode[types.EngineList](w)
				So(list.Budget, ShouldEqual, 5)
				So(len(list.Engines), ShouldEqual, 1)
				So(svc.lastRank.required, ShouldResemble, model.DataTypes{EEG: true, PPG: true})
			})

			Convey("Listing without a budget is unlimited", func() {
				w := do(h, http.MethodGet, "/api/v1/engines", "")
				So(w.Code, ShouldEqual, http.StatusOK)
				So(svc.lastRank.budget, ShouldEqual, -1)
			})

			Convey("Invalid flags and budgets answer 400", func() {
				So(do(h, http.MethodGet, "/api/v1/engines?eeg=maybe", "").Code, ShouldEqual, http.StatusBadRequest)
				So(do(h, http.MethodGet, "/api/v1/engines?budget=-2", "").Code, ShouldEqual, http.StatusBadRequest)
				So(do(h, http.MethodGet, "/api/v1/engines?budget=lots", "").Code, ShouldEqual, http.StatusBadRequest)
			})

			Convey("Ratings are forwarded and validated", func() {
				w := do(h, http.MethodPost, "/api/v1/engines/mindbreeze-basic/ratings", `{"rating":4}`)
				So(w.Code, ShouldEqual, http.StatusOK)
				So(decode[model.EngineUsage](w).AverageRating, ShouldEqual, 4)

				So(do(h, http.MethodPost, "/api/v1/engines/mindbreeze-basic/ratings", `{"rating":9}`).Code, ShouldEqual, http.StatusBadRequest)
				So(do(h, http.MethodPost, "/api/v1/engines/nope/ratings", `{"rating":3}`).Code, ShouldEqual, http.StatusNotFound)
				So(do(h, http.MethodPost, "/api/v1/engines/mindbreeze-basic/ratings", `{"stars":3}`).Code, ShouldEqual, http.StatusBadRequest)
			})
		})

		Convey("Gate and session endpoints", func() {
			Convey("Opening a gate answers 201 with its location", func() {
				w := do(h, http.MethodPost, "/api/v1/gates", `{"sessionId":"s-1","ownerUserId":"u-1"}`)
				So(w.Code, ShouldEqual, http.StatusCreated)
				So(w.Header().Get("Location"), ShouldEqual, "/api/v1/gates/s-1")

				Convey("Opening it again conflicts", func() {
					w := do(h, http.MethodPost, "/api/v1/gates", `{"sessionId":"s-1","ownerUserId":"u-1"}`)
					So(w.Code, ShouldEqual, http.StatusConflict)
					So(decode[types.ErrorResponse](w).Code, ShouldEqual, "gate_exists")
				})

				Convey("Samples are accepted on known channels", func() {
					w := do(h, http.MethodPost, "/api/v1/gates/s-1/samples",
						`{"contacted":true,"samples":[{"channel":"EEG","score":90},{"channel":"PPG","score":88}]}`)
					So(w.Code, ShouldEqual, http.StatusOK)
					So(decode[types.GateStatus](w).Samples, ShouldEqual, 2)

					w = do(h, http.MethodPost, "/api/v1/gates/s-1/samples", `{"samples":[{"channel":"EMG","score":90}]}`)
					So(w.Code, ShouldEqual, http.StatusBadRequest)
				})

				Convey("Sealing before the gate fired conflicts", func() {
					w := do(h, http.MethodPost, "/api/v1/sessions/s-1/seal", "")
					So(w.Code, ShouldEqual, http.StatusConflict)
					So(decode[types.ErrorResponse](w).Code, ShouldEqual, "gate_not_ready")
				})

				Convey("A ready gate is sealed and the session readable", func() {
					svc.gates["s-1"] = types.GateStatus{SessionID: "s-1", Ready: true}
					w := do(h, http.MethodPost, "/api/v1/sessions/s-1/seal", `{"eegSummary":{"alphaPower":0.5}}`)
					So(w.Code, ShouldEqual, http.StatusOK)
					sealed := decode[model.MeasurementSession](w)
					So(sealed.IsSealed(), ShouldBeTrue)

					w = do(h, http.MethodGet, "/api/v1/sessions/s-1", "")
					So(w.Code, ShouldEqual, http.StatusOK)
					So(decode[model.MeasurementSession](w).EEGSummary["alphaPower"], ShouldEqual, 0.5)
				})

				Convey("Gate state and reopen are served", func() {
					So(do(h, http.MethodGet, "/api/v1/gates/s-1", "").Code, ShouldEqual, http.StatusOK)
					So(do(h, http.MethodPost, "/api/v1/gates/s-1/reopen", "").Code, ShouldEqual, http.StatusOK)
				})
			})

			Convey("Invalid bodies answer 400", func() {
				So(do(h, http.MethodPost, "/api/v1/gates", `{"ownerUserId":`).Code, ShouldEqual, http.StatusBadRequest)
				So(do(h, http.MethodPost, "/api/v1/gates", `{}`).Code, ShouldEqual, http.StatusBadRequest)
				So(do(h, http.MethodPost, "/api/v1/gates", "").Code, ShouldEqual, http.StatusBadRequest)
			})

			Convey("Unknown gates and sessions answer 404", func() {
				So(do(h, http.MethodGet, "/api/v1/gates/nope", "").Code, ShouldEqual, http.StatusNotFound)
				So(do(h, http.MethodGet, "/api/v1/sessions/nope", "").Code, ShouldEqual, http.StatusNotFound)
			})
		})

		Convey("Job endpoints", func() {
			Convey("A new job answers 202, a repeated ID 200", func() {
				w := do(h, http.MethodPost, "/api/v1/jobs", `{"jobId":"job-1","sessionId":"s-1"}`)
				So(w.Code, ShouldEqual, http.StatusAccepted)
				ack := decode[types.JobAck](w)
				So(ack.Status, ShouldEqual, types.AckAccepted)
				So(ack.Job.Stage, ShouldEqual, model.StageQueued)
				So(w.Header().Get("Location"), ShouldEqual, "/api/v1/jobs/job-1")

				w = do(h, http.MethodPost, "/api/v1/jobs", `{"jobId":"job-1","sessionId":"s-1"}`)
				So(w.Code, ShouldEqual, http.StatusOK)
				ack = decode[types.JobAck](w)
				So(ack.Duplicate, ShouldBeTrue)
				So(ack.Status, ShouldEqual, types.AckDuplicate)
			})

			Convey("A submission without a session answers 400", func() {
				So(do(h, http.MethodPost, "/api/v1/jobs", `{"jobId":"job-1"}`).Code, ShouldEqual, http.StatusBadRequest)
			})

			Convey("A full queue answers 503", func() {
				svc.queueFull = true
				w := do(h, http.MethodPost, "/api/v1/jobs", `{"jobId":"job-1","sessionId":"s-1"}`)
				So(w.Code, ShouldEqual, http.StatusServiceUnavailable)
				So(decode[types.ErrorResponse](w).Code, ShouldEqual, "backpressure")
			})

			Convey("Jobs can be read, listed, cancelled and resumed", func() {
				do(h, http.MethodPost, "/api/v1/jobs", `{"jobId":"job-1","sessionId":"s-1"}`)
				do(h, http.MethodPost, "/api/v1/jobs", `{"jobId":"job-2","sessionId":"s-2"}`)

				w := do(h, http.MethodGet, "/api/v1/jobs/job-1", "")
				So(w.Code, ShouldEqual, http.StatusOK)
				So(decode[model.PipelineJob](w).SessionID, ShouldEqual, "s-1")

				w = do(h, http.MethodGet, "/api/v1/jobs?sessionId=s-2", "")
				So(w.Code, ShouldEqual, http.StatusOK)
				So(len(decode[[]model.PipelineJob](w)), ShouldEqual, 1)
				So(do(h, http.MethodGet, "/api/v1/jobs?limit=x", "").Code, ShouldEqual, http.StatusBadRequest)

				w = do(h, http.MethodDelete, "/api/v1/jobs/job-1", "")
				So(w.Code, ShouldEqual, http.StatusOK)
				So(decode[model.PipelineJob](w).Stage, ShouldEqual, model.StageCancelled)

				svc.advance("job-2", model.StageExecuting)
				w = do(h, http.MethodDelete, "/api/v1/jobs/job-2", "")
				So(w.Code, ShouldEqual, http.StatusAccepted)
				pending := decode[model.PipelineJob](w)
				So(pending.Stage, ShouldEqual, model.StageExecuting)
				So(pending.CancelRequested, ShouldBeTrue)

				w = do(h, http.MethodDelete, "/api/v1/jobs/job-1", "")
				So(w.Code, ShouldEqual, http.StatusConflict)
				So(decode[types.ErrorResponse](w).Code, ShouldEqual, "cancel_refused")

				So(do(h, http.MethodPost, "/api/v1/jobs/job-2/resume", "").Code, ShouldEqual, http.StatusAccepted)
				So(do(h, http.MethodGet, "/api/v1/jobs/nope", "").Code, ShouldEqual, http.StatusNotFound)
			})

			Convey("An empty listing is a JSON array", func() {
				w := do(h, http.MethodGet, "/api/v1/jobs", "")
				So(w.Code, ShouldEqual, http.StatusOK)
				So(strings.TrimSpace(w.Body.String()), ShouldEqual, "[]")
			})
		})

		Convey("Account endpoints", func() {
			w := do(h, http.MethodPost, "/api/v1/accounts/org-1/credits", `{"amount":25}`)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(decode[types.Balance](w), ShouldResemble, types.Balance{AccountID: "org-1", Balance: 25})

			w = do(h, http.MethodGet, "/api/v1/accounts/org-1/balance", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(decode[types.Balance](w).Balance, ShouldEqual, 25)

			So(do(h, http.MethodPost, "/api/v1/accounts/org-1/credits", `{"amount":0}`).Code, ShouldEqual, http.StatusBadRequest)
		})
	})
}

func TestServer_CORS(t *testing.T) {
	Convey("Given a server with an allowed origin", t, func() {
		h := api.NewServer(newFakeService(),
			api.WithLogger(logger.Nop()),
			api.WithCORSOrigins([]string{"https://app.example.com"})).Handler()

		Convey("Preflight requests from that origin are allowed", func() {
			req := httptest.NewRequest(http.MethodOptions, "/api/v1/jobs", http.NoBody)
			req.Header.Set("Origin", "https://app.example.com")
			req.Header.Set("Access-Control-Request-Method", http.MethodPost)
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)

			So(w.Header().Get("Access-Control-Allow-Origin"), ShouldEqual, "https://app.example.com")
		})

		Convey("Other origins get no CORS headers", func() {
			req := httptest.NewRequest(http.MethodGet, "/stats", http.NoBody)
			req.Header.Set("Origin", "https://evil.example.com")
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)

			So(w.Header().Get("Access-Control-Allow-Origin"), ShouldBeEmpty)
		})
	})
}

func TestServer_Mounts(t *testing.T) {
	Convey("Given a server with an extra mount", t, func() {
		h := api.NewServer(newFakeService(), api.WithLogger(logger.Nop()),
			api.WithMount(func(r chi.Router) {
				r.Get("/extra", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusTeapot) })
			})).Handler()

		Convey("The mounted route is served", func() {
			So(do(h, http.MethodGet, "/extra", "").Code, ShouldEqual, http.StatusTeapot)
		})
	})
}

func TestServer_JobEvents(t *testing.T) {
	Convey("Given a running server and a queued job", t, func() {
		svc := newFakeService()
		svc.jobs["job-1"] = model.NewPipelineJob("job-1", "s-1", "mindbreeze-basic", time.Now())
		srv := httptest.NewServer(api.NewServer(svc, api.WithLogger(logger.Nop())).Handler())
		Reset(srv.Close)

		Convey("The stream sends the current state, each change and ends on a terminal stage", func() {
			resp, err := http.Get(srv.URL + "/api/v1/jobs/job-1/events")
			So(err, ShouldBeNil)
			defer resp.Body.Close()
			So(resp.StatusCode, ShouldEqual, http.StatusOK)
			So(resp.Header.Get("Content-Type"), ShouldEqual, "text/event-stream")

			events := make(chan types.JobEvent, 16)
			go func() {
				defer close(events)
				sc := bufio.NewScanner(resp.Body)
				for sc.Scan() {
					line := sc.Text()
					if !strings.HasPrefix(line, "data: ") {
						continue
					}
					var ev types.JobEvent
					if json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev) == nil {
						events <- ev
					}
				}
			}()

			first := <-events
			So(first.Stage, ShouldEqual, model.StageQueued)
			So(svc.subscribers("job-1"), ShouldEqual, 1)

			svc.advance("job-1", model.StageExecuting)
			So((<-events).Stage, ShouldEqual, model.StageExecuting)

			svc.advance("job-1", model.StageCompleted)
			last := <-events
			So(last.Stage, ShouldEqual, model.StageCompleted)
			So(last.Terminal, ShouldBeTrue)

			_, open := <-events
			So(open, ShouldBeFalse)
		})

		Convey("An unknown job answers 404", func() {
			resp, err := http.Get(srv.URL + "/api/v1/jobs/nope/events")
			So(err, ShouldBeNil)
			defer resp.Body.Close()
			So(resp.StatusCode, ShouldEqual, http.StatusNotFound)
		})
	})
}
