package dispatch

import (
	"bytes"
	"context"
	"log/slog"
	"path/filepath"
	"text/template"
	"time"

	"golang.org/x/time/rate"

	"git.home.luguber.info/inful/dispatchbuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/dispatchbuilder/internal/history"
	"git.home.luguber.info/inful/dispatchbuilder/internal/logfields"
	"git.home.luguber.info/inful/dispatchbuilder/internal/metrics"
	"git.home.luguber.info/inful/dispatchbuilder/internal/retry"
)

// DefaultPlaceholder is the text posted when creating a dispatch.
const DefaultPlaceholder = "Placeholder"

// TemplateData is passed to dispatch templates.
type TemplateData struct {
	// Name of the dispatch being rendered.
	Name string
	// Dispatch is the context of the dispatch being rendered.
	Dispatch Context
	// Dispatches holds the contexts of every dispatch of the run, so templates can link to each other.
	Dispatches map[string]Context
	// Data holds the values computed by Stat plugins.
	Data map[string]any
}

// Publisher renders dispatch templates and submits them through a Client,
// recording the IDs issued for new dispatches in an IDStore.
type Publisher struct {
	client       Client
	store        *IDStore
	templatesDir string
	placeholder  string
	funcs        template.FuncMap
	limiter      *rate.Limiter
	retry        retry.Policy
	history      history.Recorder
	recorder     metrics.Recorder
	logger       *slog.Logger
	runID        string
}

// PublisherOption configures a Publisher.
type PublisherOption func(*Publisher)

// WithTemplatesDir sets the directory relative template paths resolve against.
func WithTemplatesDir(dir string) PublisherOption {
	return func(p *Publisher) { p.templatesDir = dir }
}

// WithPlaceholder sets the text posted when a dispatch is created.
func WithPlaceholder(text string) PublisherOption {
	return func(p *Publisher) {
		if text != "" {
			p.placeholder = text
		}
	}
}

// WithFuncs adds template functions, usually selected from a FuncTable.
// dispatchID is always bound to the ID store and cannot be replaced.
func WithFuncs(funcs template.FuncMap) PublisherOption {
	return func(p *Publisher) {
		for k, v := range funcs {
			p.funcs[k] = v
		}
	}
}

// WithInterval sets the minimum spacing between two requests. Zero disables limiting.
func WithInterval(d time.Duration) PublisherOption {
	return func(p *Publisher) {
		if d <= 0 {
			p.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		p.limiter = rate.NewLimiter(rate.Every(d), 1)
	}
}

// WithRetry sets the policy applied to failed edits. Creates are never
// retried, a lost response would otherwise produce a duplicate dispatch.
func WithRetry(policy retry.Policy) PublisherOption {
	return func(p *Publisher) { p.retry = policy }
}

// WithHistory sets where publish attempts are recorded.
func WithHistory(h history.Recorder) PublisherOption {
	return func(p *Publisher) {
		if h != nil {
			p.history = h
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(r metrics.Recorder) PublisherOption {
	return func(p *Publisher) {
		if r != nil {
			p.recorder = r
		}
	}
}

// WithPublisherLogger sets the logger.
func WithPublisherLogger(logger *slog.Logger) PublisherOption {
	return func(p *Publisher) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithRunID tags history entries and log lines with the run id.
func WithRunID(id string) PublisherOption {
	return func(p *Publisher) { p.runID = id }
}

// NewPublisher creates a publisher. Without options requests are not rate limited
// and no history is kept.
func NewPublisher(client Client, store *IDStore, opts ...PublisherOption) *Publisher {
	p := &Publisher{
		client:      client,
		store:       store,
		placeholder: DefaultPlaceholder,
		funcs:       template.FuncMap{},
		limiter:     rate.NewLimiter(rate.Inf, 1),
		retry:       retry.None(),
		history:     history.Noop{},
		recorder:    metrics.NoopRecorder{},
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.funcs["dispatchID"] = p.store.Get
	return p
}

// Render executes the template named by the dispatch's template field.
func (p *Publisher) Render(data TemplateData) (string, error) {
	name := data.Dispatch.String(FieldTemplate)
	if name == "" {
		return "", errors.ValidationError("dispatch has no template").
			WithContext("dispatch", data.Name).
			Build()
	}
	path := name
	if !filepath.IsAbs(path) && p.templatesDir != "" {
		path = filepath.Join(p.templatesDir, path)
	}

	tmpl, err := template.New(filepath.Base(path)).
		Funcs(p.funcs).
		Option("missingkey=error").
		ParseFiles(path)
	if err != nil {
		return "", errors.WrapError(err, errors.CategoryValidation, "failed to parse dispatch template").
			WithContext("dispatch", data.Name).
			WithContext("path", path).
			Build()
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", errors.WrapError(err, errors.CategoryValidation, "failed to render dispatch template").
			WithContext("dispatch", data.Name).
			WithContext("path", path).
			Build()
	}
	return buf.String(), nil
}

// Publish submits text for the dispatch name. A context without id creates the
// dispatch and records the id extracted from the response; otherwise the
// existing dispatch is edited. It returns the dispatch id.
func (p *Publisher) Publish(ctx context.Context, name string, dctx Context, text string) (int64, error) {
	req := Request{
		Name:        name,
		ID:          dctx.ID(),
		Title:       dctx.String(FieldTitle),
		Category:    intField(dctx, FieldCategory),
		Subcategory: intField(dctx, FieldSubcategory),
		Text:        text,
	}
	if req.Title == "" {
		req.Title = name
	}

	action := history.ActionEdit
	if req.ID == 0 {
		action = history.ActionCreate
	}

	id, err := p.submit(ctx, action, req)
	p.record(ctx, name, id, action, err)
	if err != nil {
		return 0, err
	}
	return id, nil
}

// wait blocks until the limiter admits another request. Every request, retries
// included, passes through it.
func (p *Publisher) wait(ctx context.Context, name string) error {
	if err := p.limiter.Wait(ctx); err != nil {
		return errors.WrapError(err, errors.CategoryRuntime, "publish rate limiter aborted").
			WithContext("dispatch", name).
			Build()
	}
	return nil
}

func (p *Publisher) submit(ctx context.Context, action history.Action, req Request) (int64, error) {
	if action == history.ActionEdit {
		err := p.retry.Do(ctx, func() error {
			if err := p.wait(ctx, req.Name); err != nil {
				return err
			}
			_, err := p.client.Edit(ctx, req)
			return err
		}, func(attempt int, delay time.Duration, err error) {
			p.logger.Warn("Retrying dispatch edit",
				logfields.Dispatch(req.Name), slog.Int("attempt", attempt),
				slog.Duration("delay", delay), logfields.Error(err))
			p.recorder.IncPublishRetry()
		})
		if err != nil {
			return req.ID, err
		}
		return req.ID, nil
	}

	if err := p.wait(ctx, req.Name); err != nil {
		return 0, err
	}
	body, err := p.client.Create(ctx, req)
	if err != nil {
		return 0, err
	}
	return p.store.RecordFromResponse(req.Name, body)
}

func (p *Publisher) record(ctx context.Context, name string, id int64, action history.Action, err error) {
	entry := history.Entry{
		RunID:      p.runID,
		Dispatch:   name,
		DispatchID: id,
		Action:     action,
		Timestamp:  time.Now(),
	}
	result := metrics.ResultSuccess
	if err != nil {
		entry.Error = err.Error()
		result = metrics.ResultFailed
		p.logger.Error("Failed to publish dispatch",
			logfields.Dispatch(name), logfields.Action(string(action)), logfields.Error(err))
	} else {
		p.logger.Info("Published dispatch",
			logfields.Dispatch(name), logfields.DispatchID(id), logfields.Action(string(action)))
	}
	p.recorder.IncPublish(string(action), result)

	if herr := p.history.Append(ctx, entry); herr != nil {
		p.logger.Warn("Failed to record publish history", logfields.Dispatch(name), logfields.Error(herr))
	}
}

// Report summarizes a PublishAll call.
type Report struct {
	Created []string
	Edited  []string
	// Failed maps dispatch names to the error that stopped them.
	Failed map[string]error
}

// OK reports whether every dispatch was published.
func (r *Report) OK() bool {
	return len(r.Failed) == 0
}

// PublishAll publishes every definition. Dispatches without an id are first
// created with placeholder text so that all ids are known; then every dispatch
// is rendered with the full set of contexts and submitted as an edit.
// A failing dispatch is reported and does not stop the others. The store is
// not saved.
func (p *Publisher) PublishAll(ctx context.Context, defs Definitions, data map[string]any) (*Report, error) {
	report := &Report{Failed: make(map[string]error)}

	for _, name := range defs.Names() {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if p.store.Contains(name) {
			continue
		}
		pending := Context(deepCopyMap(defs[name]))
		delete(pending, FieldID)
		if _, err := p.Publish(ctx, name, pending, p.placeholder); err != nil {
			report.Failed[name] = err
			continue
		}
		report.Created = append(report.Created, name)
	}

	ready := make(Definitions, len(defs))
	for name, def := range defs {
		if _, failed := report.Failed[name]; !failed {
			ready[name] = def
		}
	}
	contexts, err := Compose(ready, p.store)
	if err != nil {
		return report, err
	}

	for _, name := range ready.Names() {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		dctx := contexts[name]
		text, err := p.Render(TemplateData{Name: name, Dispatch: dctx, Dispatches: contexts, Data: data})
		if err != nil {
			p.logger.Error("Failed to render dispatch", logfields.Dispatch(name), logfields.Error(err))
			report.Failed[name] = err
			continue
		}
		if _, err := p.Publish(ctx, name, dctx, text); err != nil {
			report.Failed[name] = err
			continue
		}
		report.Edited = append(report.Edited, name)
	}
	return report, nil
}

func intField(c Context, field string) int64 {
	n, _ := asInt64(c[field])
	return n
}
