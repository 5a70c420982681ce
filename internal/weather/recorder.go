package weather

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/BridgeDigitalHealth/MobilePassiveData-SDK/internal/action"
	"github.com/BridgeDigitalHealth/MobilePassiveData-SDK/internal/distance"
	"github.com/BridgeDigitalHealth/MobilePassiveData-SDK/internal/recorder"
)

// LocationProvider returns the position the weather is fetched for.
type LocationProvider interface {
	Location(ctx context.Context) (Coordinates, error)
}

// StaticLocation always reports the same position.
type StaticLocation Coordinates

func (s StaticLocation) Location(context.Context) (Coordinates, error) {
	return Coordinates(s), nil
}

// FirstFix waits for the first accurate fix of a location source.
type FirstFix struct {
	Source distance.LocationSource
}

func (f FirstFix) Location(ctx context.Context) (Coordinates, error) {
	fixes := make(chan distance.Location, 1)
	err := f.Source.Start(ctx, func(l distance.Location) {
		if l.HorizontalAccuracy < 0 {
			return
		}
		select {
		case fixes <- l:
		default:
		}
	})
	if err != nil {
		return Coordinates{}, err
	}
	defer f.Source.Stop()

	select {
	case l := <-fixes:
		return Coordinates{Latitude: l.Latitude, Longitude: l.Longitude}, nil
	case <-ctx.Done():
		return Coordinates{}, ctx.Err()
	}
}

type Options struct {
	Configuration action.WeatherConfiguration
	// Services defaults to one service per configured provider.
	Services   []Service
	HTTPClient *http.Client
	Location   LocationProvider
	Base       recorder.Options
}

// Recorder fetches every configured service once, right after it starts,
// and hands the combined response back when it stops.
type Recorder struct {
	*recorder.Recorder

	services []Service
	location LocationProvider

	mu          sync.Mutex
	cancelFetch context.CancelFunc
	fetched     chan struct{}
	res         *Result
	fetchErr    error
}

func New(opts Options) (*Recorder, error) {
	if opts.Location == nil {
		return nil, errors.New("weather recorder needs a location provider")
	}
	services := opts.Services
	if services == nil {
		for _, cfg := range opts.Configuration.Services {
			s, err := NewService(cfg, opts.HTTPClient)
			if err != nil {
				return nil, err
			}
			services = append(services, s)
		}
	}

	w := &Recorder{
		services: services,
		location: opts.Location,
		fetched:  make(chan struct{}),
	}
	base := opts.Base
	base.Configuration = opts.Configuration
	base.Driver = w
	base.NoLoggers = true
	w.Recorder = recorder.New(base)
	return w, nil
}

func (w *Recorder) StartRecorder(ctx context.Context, r *recorder.Recorder, done func(action.Status, error)) {
	fetchCtx, cancel := context.WithCancel(ctx)
	w.mu.Lock()
	w.cancelFetch = cancel
	w.mu.Unlock()

	go w.fetch(fetchCtx, r)
	done(action.Running, nil)
}

func (w *Recorder) fetch(ctx context.Context, r *recorder.Recorder) {
	defer close(w.fetched)

	res := NewResult(r.Identifier(), r.TimeSource().Now())
	at, err := w.location.Location(ctx)
	if err != nil {
		w.finishFetch(r, nil, fmt.Errorf("weather location: %w", err))
		return
	}

	responses := make([][]ServiceResult, len(w.services))
	g, gctx := errgroup.WithContext(ctx)
	for i, s := range w.services {
		g.Go(func() error {
			out, err := s.Fetch(gctx, at)
			if err != nil {
				return fmt.Errorf("%s: %w", s.Configuration().Identifier, err)
			}
			responses[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		w.finishFetch(r, nil, err)
		return
	}
	for _, out := range responses {
		for _, s := range out {
			res.Add(s)
		}
	}
	res.End = r.TimeSource().Now()
	w.finishFetch(r, res, nil)
}

func (w *Recorder) finishFetch(r *recorder.Recorder, res *Result, err error) {
	w.mu.Lock()
	w.res, w.fetchErr = res, err
	w.mu.Unlock()
	if err != nil {
		r.Logger().Error("Weather fetch failed", "error", err)
		r.DidFail(err)
		return
	}
	r.Logger().Info("Weather fetched", "weather", res.Weather != nil, "airQuality", res.AirQuality != nil)
}

// StopRecorder waits for the fetch. A cancelled recorder abandons it.
func (w *Recorder) StopRecorder(_ context.Context, r *recorder.Recorder, done func(action.Status)) {
	w.mu.Lock()
	cancel := w.cancelFetch
	w.mu.Unlock()
	if cancel == nil {
		done(action.Finished)
		return
	}
	if s := r.Status(); s == action.Cancelled || s == action.Failed {
		cancel()
	}

	go func() {
		<-w.fetched
		cancel()
		w.mu.Lock()
		res, err := w.res, w.fetchErr
		w.mu.Unlock()
		if err != nil {
			r.RecordError(err)
		} else if res != nil {
			r.AppendResults(res)
		}
		done(action.Finished)
	}()
}
