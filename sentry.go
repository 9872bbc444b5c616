package sanitizex

import (
	"encoding/json"
	"net/url"
	"strings"

	"github.com/getsentry/sentry-go"
	"go.uber.org/zap"
)

// BeforeSend redacts a Sentry event. It has the signature of
// sentry.ClientOptions.BeforeSend:
//
//	sentry.Init(sentry.ClientOptions{
//	    Dsn:        dsn,
//	    BeforeSend: r.BeforeSend,
//	})
//
// Extra, contexts, tags, breadcrumb data, user data, stack frame variables
// and the request (headers, env, body, query string, cookies) are redacted.
// JSON and form-encoded bodies and the query string are redacted field by
// field. Only the newest MaxItems breadcrumbs are kept. If the event cannot
// be redacted it is dropped rather than sent as is.
func (r *Redactor) BeforeSend(event *sentry.Event, hint *sentry.EventHint) *sentry.Event {
	if event == nil {
		return nil
	}

	view := newEventView(event)
	if _, err := r.Process(view.payload); err != nil {
		r.logger.Error("dropping sentry event that could not be redacted",
			zap.String("severity", severityError),
			zap.String("event_id", string(event.EventID)),
			zap.Error(err),
		)
		return nil
	}
	view.apply(event)
	return event
}

// EventProcessor returns BeforeSend as a sentry.EventProcessor for
// sentry.Client.AddEventProcessor or sentry.Scope.AddEventProcessor.
func (r *Redactor) EventProcessor() sentry.EventProcessor {
	return r.BeforeSend
}

// Integration installs a Redactor on a Sentry client.
//
//	sentry.Init(sentry.ClientOptions{
//	    Integrations: func(i []sentry.Integration) []sentry.Integration {
//	        return append(i, &sanitizex.Integration{Redactor: r})
//	    },
//	})
type Integration struct {
	Redactor *Redactor
}

var _ sentry.Integration = (*Integration)(nil)

// Name implements sentry.Integration.
func (i *Integration) Name() string { return "Sanitizex" }

// SetupOnce implements sentry.Integration.
func (i *Integration) SetupOnce(client *sentry.Client) {
	r := i.Redactor
	if r == nil {
		r = Default()
	}
	client.AddEventProcessor(r.EventProcessor())
}

// eventView exposes the redactable parts of a Sentry event as one payload.
// Maps are shared with the event, so most of the redaction lands in the
// event directly; apply copies back what had to be rebuilt.
type eventView struct {
	payload    *Map
	contexts   map[string]any
	crumbsSkip int
	request    *Map
	body       bodyKind
	form       *pairList
	query      *pairList
	cookies    *pairList
}

type bodyKind int

const (
	bodyText bodyKind = iota
	bodyJSON
	bodyForm
)

func newEventView(event *sentry.Event) *eventView {
	v := &eventView{payload: NewMap()}

	if event.Extra != nil {
		v.payload.Set("extra", event.Extra)
	}
	if len(event.Contexts) > 0 {
		v.contexts = make(map[string]any, len(event.Contexts))
		for name, c := range event.Contexts {
			v.contexts[name] = map[string]any(c)
		}
		v.payload.Set("contexts", v.contexts)
	}
	if event.Tags != nil {
		v.payload.Set("tags", event.Tags)
	}
	if len(event.Breadcrumbs) > 0 {
		// Breadcrumbs are oldest first; keep the newest.
		crumbs := event.Breadcrumbs
		if len(crumbs) > MaxItems {
			v.crumbsSkip = len(crumbs) - MaxItems
			crumbs = crumbs[v.crumbsSkip:]
		}
		data := make([]any, len(crumbs))
		for i, b := range crumbs {
			if b != nil {
				data[i] = b.Data
			}
		}
		v.payload.Set("breadcrumbs", data)
	}
	if event.User.Data != nil {
		user := NewMap()
		user.Set("data", event.User.Data)
		v.payload.Set("user", user)
	}
	if len(event.Exception) > 0 {
		list := make([]any, len(event.Exception))
		for i, e := range event.Exception {
			list[i] = stacktraceView(e.Stacktrace)
		}
		v.payload.Set("exception", list)
	}
	if len(event.Threads) > 0 {
		list := make([]any, len(event.Threads))
		for i, t := range event.Threads {
			list[i] = stacktraceView(t.Stacktrace)
		}
		v.payload.Set("threads", list)
	}

	if req := event.Request; req != nil {
		v.request = NewMap()
		if req.Headers != nil {
			v.request.Set("headers", req.Headers)
		}
		if req.Env != nil {
			v.request.Set("env", req.Env)
		}
		v.request.Set("data", v.decodeBody(req))
		if query, ok := parseForm(req.QueryString); ok {
			v.query = query
			v.request.Set("query_string", query.values)
		} else {
			v.request.Set("query_string", req.QueryString)
		}
		v.cookies = parseCookies(req.Cookies)
		v.request.Set("cookies", v.cookies.values)
		v.payload.Set("request", v.request)
	}
	return v
}

// decodeBody returns the request body in its most structured form.
func (v *eventView) decodeBody(req *sentry.Request) any {
	if looksLikeJSON(req.Data) {
		if decoded, err := decodeOrdered([]byte(req.Data)); err == nil {
			v.body = bodyJSON
			return decoded
		}
		return req.Data
	}
	contentType := headerValue(req.Headers, "Content-Type")
	isForm := strings.HasPrefix(strings.ToLower(contentType), "application/x-www-form-urlencoded")
	if isForm || (contentType == "" && strings.Contains(req.Data, "=")) {
		if form, ok := parseForm(req.Data); ok {
			v.body = bodyForm
			v.form = form
			return form.values
		}
	}
	return req.Data
}

// stacktraceView exposes the variables of every frame in st.
func stacktraceView(st *sentry.Stacktrace) *Map {
	frames := make([]any, 0)
	if st != nil {
		for _, f := range st.Frames {
			frames = append(frames, f.Vars)
		}
	}
	m := NewMap()
	m.Set("frames", frames)
	return m
}

// apply writes rebuilt values back into event after redaction.
func (v *eventView) apply(event *sentry.Event) {
	for name := range event.Contexts {
		if _, ok := v.contexts[name]; !ok {
			delete(event.Contexts, name)
		}
	}
	if v.crumbsSkip > 0 {
		event.Breadcrumbs = event.Breadcrumbs[v.crumbsSkip:]
	}
	if crumbs, ok := v.payload.Get("breadcrumbs"); ok {
		if n := len(crumbs.([]any)); n < len(event.Breadcrumbs) {
			event.Breadcrumbs = event.Breadcrumbs[:n]
		}
	}

	exceptions := v.list("exception")
	for i := range event.Exception {
		dropFrameVars(event.Exception[i].Stacktrace, exceptions, i)
	}
	threads := v.list("threads")
	for i := range event.Threads {
		dropFrameVars(event.Threads[i].Stacktrace, threads, i)
	}

	if v.request == nil {
		return
	}
	req := event.Request
	data, _ := v.request.Get("data")
	switch v.body {
	case bodyJSON:
		if b, err := json.Marshal(data); err == nil {
			req.Data = string(b)
		}
	case bodyForm:
		req.Data = v.form.String()
	default:
		if s, ok := data.(string); ok {
			req.Data = s
		}
	}
	if v.query != nil {
		req.QueryString = v.query.String()
	} else if qs, ok := v.request.Get("query_string"); ok {
		req.QueryString, _ = qs.(string)
	}
	req.Cookies = v.cookies.String()
}

func (v *eventView) list(key string) []any {
	l, _ := v.payload.Get(key)
	out, _ := l.([]any)
	return out
}

// dropFrameVars clears the variables of frames that were cut from the
// redacted view of st, which is kept[i].
func dropFrameVars(st *sentry.Stacktrace, kept []any, i int) {
	if st == nil {
		return
	}
	n := 0
	if i < len(kept) {
		if m, ok := kept[i].(*Map); ok {
			frames, _ := m.Get("frames")
			l, _ := frames.([]any)
			n = len(l)
		}
	}
	for j := n; j < len(st.Frames); j++ {
		st.Frames[j].Vars = nil
	}
}

func headerValue(headers map[string]string, name string) string {
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func looksLikeJSON(s string) bool {
	s = strings.TrimSpace(s)
	return len(s) > 0 && (s[0] == '{' || s[0] == '[')
}

// pairList is a parsed Cookie header or form-encoded string that can be
// written back without losing pairs that have no value. Repeated names hold
// a []string.
type pairList struct {
	values *Map
	bare   map[string]bool
	sep    string
	escape func(string) string
}

func newPairList(sep string, escape func(string) string) *pairList {
	return &pairList{values: NewMap(), bare: make(map[string]bool), sep: sep, escape: escape}
}

func (p *pairList) add(name, value string, hasValue bool) {
	if !hasValue {
		p.bare[name] = true
	}
	existing, ok := p.values.Get(name)
	if !ok {
		p.values.Set(name, value)
		return
	}
	switch e := existing.(type) {
	case string:
		p.values.Set(name, []string{e, value})
	case []string:
		p.values.Set(name, append(e, value))
	}
}

func parseCookies(header string) *pairList {
	jar := newPairList("; ", func(s string) string { return s })
	for _, part := range strings.Split(header, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, value, found := strings.Cut(part, "=")
		jar.add(name, value, found)
	}
	return jar
}

// parseForm parses an application/x-www-form-urlencoded string, keeping the
// order of the fields. It fails on malformed escapes.
func parseForm(s string) (*pairList, bool) {
	form := newPairList("&", formEscape)
	for _, part := range strings.Split(s, "&") {
		if part == "" {
			continue
		}
		rawName, rawValue, found := strings.Cut(part, "=")
		name, err := url.QueryUnescape(rawName)
		if err != nil {
			return nil, false
		}
		value, err := url.QueryUnescape(rawValue)
		if err != nil {
			return nil, false
		}
		form.add(name, value, found)
	}
	return form, true
}

// formEscape leaves '*' readable so masked values stay recognisable.
func formEscape(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "%2A", "*")
}

// String formats the pairs in their original order.
func (p *pairList) String() string {
	var parts []string
	for _, name := range p.values.keys {
		switch v := p.values.values[name].(type) {
		case string:
			parts = append(parts, p.pair(name, v))
		case []string:
			for _, value := range v {
				parts = append(parts, p.pair(name, value))
			}
		}
	}
	return strings.Join(parts, p.sep)
}

func (p *pairList) pair(name, value string) string {
	if p.bare[name] && value == "" {
		return p.escape(name)
	}
	return p.escape(name) + "=" + p.escape(value)
}
