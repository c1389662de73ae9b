package engine

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
	"golang.org/x/text/language"

	"github.com/menu-lens/server/internal/analysis/cache"
	"github.com/menu-lens/server/internal/analysis/extractor"
	"github.com/menu-lens/server/internal/analysis/model"
	"github.com/menu-lens/server/internal/analysis/projector"
	errx "github.com/menu-lens/server/internal/core/error"
	logx "github.com/menu-lens/server/pkg/logger"
)

// Analyzer runs one analysis call. It returns a response for every outcome
// except an invalid request.
type Analyzer interface {
	Analyze(ctx context.Context, req *model.AnalysisRequest) (*model.AnalysisResponse, error)
	AnalyzeMultimodal(ctx context.Context, req *model.AnalysisRequest) (*model.AnalysisResponse, error)
}

// DocumentFetcher returns the body of a menu web page.
type DocumentFetcher interface {
	Fetch(ctx context.Context, rawURL string) (string, error)
}

// Deps are the collaborators of an Engine. Cache and Fetcher may be nil.
type Deps struct {
	Analyzer  Analyzer
	Cache     model.ResultCache
	Extractor *extractor.Extractor
	Fetcher   DocumentFetcher
	Projector *projector.Projector
}

// Engine is the caller-facing surface: it fingerprints inputs, consults the
// result cache, runs the analysis and stores successful responses.
type Engine struct {
	analyzer  Analyzer
	cache     model.ResultCache
	extractor *extractor.Extractor
	fetcher   DocumentFetcher
	projector *projector.Projector
	cfg       model.CacheConfig

	group singleflight.Group
	newID func() string
}

func New(deps Deps, cfg model.CacheConfig) (*Engine, error) {
	if deps.Analyzer == nil {
		return nil, fmt.Errorf("analyzer is nil")
	}
	if deps.Extractor == nil {
		deps.Extractor = extractor.New(model.ExtractorConfig{})
	}
	if deps.Projector == nil {
		deps.Projector = projector.New(language.Und)
	}
	if cfg.TextWindow <= 0 {
		cfg.TextWindow = cache.DefaultTextWindow
	}
	return &Engine{
		analyzer:  deps.Analyzer,
		cache:     deps.Cache,
		extractor: deps.Extractor,
		fetcher:   deps.Fetcher,
		projector: deps.Projector,
		cfg:       cfg,
		newID:     uuid.NewString,
	}, nil
}

// job is one cacheable analysis. build runs only on a cache miss, so a
// document is fetched only when its analysis is not already stored.
type job struct {
	meta      model.CacheMeta
	prefs     model.DietaryPreferences
	requestID string
	build     func(ctx context.Context) (*model.AnalysisRequest, error)
	call      func(ctx context.Context, req *model.AnalysisRequest) (*model.AnalysisResponse, error)
}

// AnalyzeMenu analyzes caller-supplied items. A missing requestId is filled in.
func (e *Engine) AnalyzeMenu(ctx context.Context, req *model.AnalysisRequest) (*model.AnalysisResponse, error) {
	r, err := e.prepare(req)
	if err != nil {
		return nil, err
	}
	return e.run(ctx, job{
		meta:      model.CacheMeta{InputType: model.InputText, Source: cache.NormalizeText(itemsText(r.Items), e.cfg.TextWindow)},
		prefs:     r.DietaryPreferences,
		requestID: r.RequestID,
		build:     func(context.Context) (*model.AnalysisRequest, error) { return r, nil },
		call:      e.analyzer.Analyze,
	})
}

// AnalyzeMenuMultimodal analyzes caller-supplied content parts.
func (e *Engine) AnalyzeMenuMultimodal(ctx context.Context, req *model.AnalysisRequest) (*model.AnalysisResponse, error) {
	r, err := e.prepare(req)
	if err != nil {
		return nil, err
	}
	return e.run(ctx, job{
		meta:      model.CacheMeta{InputType: model.InputImage, Source: imagesSource(r.ContentParts)},
		prefs:     r.DietaryPreferences,
		requestID: r.RequestID,
		build:     func(context.Context) (*model.AnalysisRequest, error) { return r, nil },
		call:      e.analyzer.AnalyzeMultimodal,
	})
}

// AnalyzeText extracts items from pasted menu text and analyzes them.
func (e *Engine) AnalyzeText(ctx context.Context, raw string, prefs model.DietaryPreferences) (*model.AnalysisResponse, error) {
	if err := prefs.Validate(); err != nil {
		return nil, err
	}
	items, err := e.extractor.Extract(raw)
	if err != nil {
		return nil, err
	}
	req := &model.AnalysisRequest{RequestID: e.newID(), DietaryPreferences: prefs, Items: items}
	return e.run(ctx, job{
		meta:      model.CacheMeta{InputType: model.InputText, Source: cache.NormalizeText(raw, e.cfg.TextWindow)},
		prefs:     prefs,
		requestID: req.RequestID,
		build:     func(context.Context) (*model.AnalysisRequest, error) { return req, nil },
		call:      e.analyzer.Analyze,
	})
}

// AnalyzeDocument fetches a menu page, extracts its items and analyzes them.
// The page is fetched only on a cache miss.
func (e *Engine) AnalyzeDocument(ctx context.Context, rawURL string, prefs model.DietaryPreferences) (*model.AnalysisResponse, error) {
	if e.fetcher == nil {
		return nil, fmt.Errorf("no document fetcher configured")
	}
	if err := prefs.Validate(); err != nil {
		return nil, err
	}
	source := cache.NormalizeURL(rawURL)
	if u, err := url.ParseRequestURI(source); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, errx.Newf(errx.ErrInvalidRequest, "menu url %q is not an http(s) URL", rawURL)
	}

	requestID := e.newID()
	return e.run(ctx, job{
		meta:      model.CacheMeta{InputType: model.InputURL, Source: source},
		prefs:     prefs,
		requestID: requestID,
		build: func(ctx context.Context) (*model.AnalysisRequest, error) {
			doc, err := e.fetcher.Fetch(ctx, source)
			if err != nil {
				return nil, err
			}
			items, err := e.extractor.ExtractFromDocument(doc)
			if err != nil {
				return nil, err
			}
			return &model.AnalysisRequest{
				RequestID:          requestID,
				DietaryPreferences: prefs,
				Items:              items,
				Context:            "Menu published at " + source,
			}, nil
		},
		call: e.analyzer.Analyze,
	})
}

// AnalyzeImage analyzes one menu photo. An empty mimeType is sniffed.
func (e *Engine) AnalyzeImage(ctx context.Context, data []byte, mimeType string, prefs model.DietaryPreferences) (*model.AnalysisResponse, error) {
	if len(data) == 0 {
		return nil, errx.Newf(errx.ErrInvalidRequest, "image is empty")
	}
	if mimeType == "" {
		mimeType = http.DetectContentType(data)
	}
	req := &model.AnalysisRequest{
		RequestID:          e.newID(),
		DietaryPreferences: prefs,
		ContentParts: []model.ContentPart{
			model.ImagePart("data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)),
		},
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return e.run(ctx, job{
		meta:      model.CacheMeta{InputType: model.InputImage, Source: cache.NormalizeImage(data)},
		prefs:     prefs,
		requestID: req.RequestID,
		build:     func(context.Context) (*model.AnalysisRequest, error) { return req, nil },
		call:      e.analyzer.AnalyzeMultimodal,
	})
}

// History lists cached analyses, newest first.
func (e *Engine) History(ctx context.Context) ([]*model.CacheEntry, error) {
	if e.cache == nil {
		return []*model.CacheEntry{}, nil
	}
	return e.cache.List(ctx)
}

// Prune drops cached analyses older than maxAge.
func (e *Engine) Prune(ctx context.Context, maxAge time.Duration) (int, error) {
	if e.cache == nil {
		return 0, nil
	}
	return e.cache.Prune(ctx, time.Now().Add(-maxAge))
}

// ApplyFilter projects results for display.
func (e *Engine) ApplyFilter(results []model.FoodAnalysisResult, filter model.ResultsFilter) []model.FoodAnalysisResult {
	return e.projector.Apply(results, filter)
}

// Categorize buckets results by verdict.
func (e *Engine) Categorize(results []model.FoodAnalysisResult) model.CategorizedResults {
	return projector.Categorize(results)
}

func (e *Engine) prepare(req *model.AnalysisRequest) (*model.AnalysisRequest, error) {
	if req == nil {
		return nil, errx.Newf(errx.ErrInvalidRequest, "request is nil")
	}
	r := *req
	if strings.TrimSpace(r.RequestID) == "" {
		r.RequestID = e.newID()
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return &r, nil
}

func (e *Engine) run(ctx context.Context, j job) (*model.AnalysisResponse, error) {
	fp := cache.Fingerprint(j.meta.InputType, j.meta.Source, j.prefs)

	if e.cfg.CacheFirst {
		if hit := e.lookup(ctx, fp); hit != nil {
			logx.Info().
				Str("request_id", j.requestID).
				Str("fingerprint", fp).
				Str("input_type", string(j.meta.InputType)).
				Msg("Serving analysis from cache")
			return withRequestID(hit, j.requestID), nil
		}
	}

	exec := func() (*model.AnalysisResponse, error) {
		req, err := j.build(ctx)
		if err != nil {
			return nil, err
		}
		resp, err := j.call(ctx, req)
		if err != nil {
			return nil, err
		}
		if resp.Success {
			e.store(ctx, fp, resp, j.meta)
		}
		return resp, nil
	}

	if !e.cfg.Coalesce {
		return exec()
	}

	v, err, shared := e.group.Do(fp, func() (any, error) {
		resp, err := exec()
		return resp, err
	})
	if err != nil {
		return nil, err
	}
	resp := v.(*model.AnalysisResponse)
	if shared {
		logx.Debug().Str("request_id", j.requestID).Str("fingerprint", fp).Msg("Joined in-flight analysis")
		resp = withRequestID(resp, j.requestID)
	}
	return resp, nil
}

// lookup treats storage failures as misses.
func (e *Engine) lookup(ctx context.Context, fp string) *model.AnalysisResponse {
	if e.cache == nil {
		return nil
	}
	entry, err := e.cache.Get(ctx, fp)
	if err != nil {
		logx.Warn().Err(err).Str("fingerprint", fp).Msg("Cache read failed; analyzing")
		return nil
	}
	if entry == nil {
		return nil
	}
	return &entry.Response
}

// store never fails the analysis that produced resp.
func (e *Engine) store(ctx context.Context, fp string, resp *model.AnalysisResponse, meta model.CacheMeta) {
	if e.cache == nil {
		return
	}
	meta.Timestamp = time.Now().UTC()
	if err := e.cache.Put(ctx, fp, resp, meta); err != nil {
		logx.Warn().Err(err).Str("fingerprint", fp).Str("request_id", resp.RequestID).Msg("Cache write failed")
	}
}

// withRequestID returns a copy of resp answering requestID.
func withRequestID(resp *model.AnalysisResponse, requestID string) *model.AnalysisResponse {
	out := *resp
	out.RequestID = requestID
	return &out
}

// itemsText is the text a list of items was extracted from. Items built by
// the caller without raw text contribute their name, description and price.
func itemsText(items []model.MenuItem) string {
	lines := make([]string, 0, len(items))
	for _, it := range items {
		if it.RawText != "" {
			lines = append(lines, it.RawText)
			continue
		}
		lines = append(lines, strings.Join([]string{it.Name, it.Description, it.Price}, " | "))
	}
	return strings.Join(lines, "\n")
}

// imagesSource hashes every image part in order.
func imagesSource(parts []model.ContentPart) string {
	var hashes []string
	for _, p := range parts {
		if p.Type != model.ContentImage {
			continue
		}
		data, _, err := p.DecodeImage()
		if err != nil {
			data = []byte(p.Data)
		}
		hashes = append(hashes, cache.NormalizeImage(data))
	}
	return strings.Join(hashes, ",")
}
