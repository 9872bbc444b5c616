package sanitizex_test

import (
	"bytes"
	"strconv"
	"testing"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/muhammadluth/sanitizex"
)

func newSentryEvent() *sentry.Event {
	event := sentry.NewEvent()
	event.Message = "boom"
	event.Extra["password"] = "hunter2"
	event.Extra["order"] = map[string]interface{}{"card": "4242 4242 4242 4242", "qty": 2}
	event.Tags["client_secret"] = "s3cr3t"
	event.Tags["env"] = "prod"
	event.Contexts["app"] = sentry.Context{"auth_pw": "pw", "name": "shop"}
	event.Breadcrumbs = []*sentry.Breadcrumb{
		{Message: "login", Data: map[string]interface{}{"passwd": "p", "user": "bob"}},
		nil,
	}
	event.User = sentry.User{ID: "1", Data: map[string]string{"password": "pw", "plan": "pro"}}
	event.Request = &sentry.Request{
		URL:         "https://shop.example.com/checkout",
		Method:      "POST",
		Data:        `{"user":"bob","password":"pw","items":[{"card_number":"x"}]}`,
		QueryString: "q=4111111111111111&page=2",
		Cookies:     "PHPSESSID=abc123; theme=dark; flag",
		Headers:     map[string]string{"Authorization": "Bearer abc", "Accept": "*/*"},
		Env:         map[string]string{"REMOTE_ADDR": "127.0.0.1", "DB_PASSWORD": "pw"},
	}
	return event
}

func TestBeforeSend(t *testing.T) {
	r := newRedactor(t, sanitizex.WithSessionCookieName("PHPSESSID"))
	event := newSentryEvent()

	got := r.BeforeSend(event, nil)
	require.Same(t, event, got)

	assert.Equal(t, sanitizex.Mask, event.Extra["password"])
	order := event.Extra["order"].(map[string]interface{})
	assert.Equal(t, sanitizex.Mask, order["card"])
	assert.Equal(t, 2, order["qty"])

	assert.Equal(t, sanitizex.Mask, event.Tags["client_secret"])
	assert.Equal(t, "prod", event.Tags["env"])

	assert.Equal(t, sanitizex.Mask, event.Contexts["app"]["auth_pw"])
	assert.Equal(t, "shop", event.Contexts["app"]["name"])

	assert.Equal(t, sanitizex.Mask, event.Breadcrumbs[0].Data["passwd"])
	assert.Equal(t, "bob", event.Breadcrumbs[0].Data["user"])
	assert.Len(t, event.Breadcrumbs, 2)

	assert.Equal(t, sanitizex.Mask, event.User.Data["password"])
	assert.Equal(t, "pro", event.User.Data["plan"])

	req := event.Request
	assert.Equal(t, `{"user":"bob","password":"********","items":[{"card_number":"********"}]}`, req.Data)
	assert.Equal(t, "q=********&page=2", req.QueryString)
	assert.Equal(t, "PHPSESSID=********; theme=dark; flag", req.Cookies)
	assert.Equal(t, sanitizex.Mask, req.Headers["Authorization"])
	assert.Equal(t, "*/*", req.Headers["Accept"])
	assert.Equal(t, sanitizex.Mask, req.Env["DB_PASSWORD"])
	assert.Equal(t, "https://shop.example.com/checkout", req.URL)
}

func TestBeforeSend_PlainBody(t *testing.T) {
	r := newRedactor(t)
	event := sentry.NewEvent()
	event.Request = &sentry.Request{Data: "4242-4242-4242-4242"}

	r.BeforeSend(event, nil)
	assert.Equal(t, sanitizex.Mask, event.Request.Data)

	event.Request = &sentry.Request{Data: "{not json"}
	r.BeforeSend(event, nil)
	assert.Equal(t, "{not json", event.Request.Data)
}

func TestBeforeSend_TruncatesLargeCollections(t *testing.T) {
	r := newRedactor(t)
	event := sentry.NewEvent()
	for i := 0; i < 150; i++ {
		event.Contexts[strconv.Itoa(i)] = sentry.Context{"i": i}
		event.Breadcrumbs = append(event.Breadcrumbs, &sentry.Breadcrumb{Data: map[string]interface{}{"i": i}})
	}

	r.BeforeSend(event, nil)

	assert.Len(t, event.Contexts, sanitizex.MaxItems)
	assert.Contains(t, event.Contexts, "99")
	assert.NotContains(t, event.Contexts, "100")
	require.Len(t, event.Breadcrumbs, sanitizex.MaxItems)
	assert.Equal(t, 50, event.Breadcrumbs[0].Data["i"], "the newest breadcrumbs are kept")
	assert.Equal(t, 149, event.Breadcrumbs[99].Data["i"])
}

func TestBeforeSend_FrameVars(t *testing.T) {
	r := newRedactor(t)
	event := sentry.NewEvent()
	event.Exception = []sentry.Exception{{
		Type: "*errors.errorString",
		Stacktrace: &sentry.Stacktrace{Frames: []sentry.Frame{
			{Function: "login", Vars: map[string]interface{}{"password": "hunter2", "user": "bob"}},
			{Function: "main"},
		}},
	}, {Type: "no stacktrace"}}
	event.Threads = []sentry.Thread{{
		ID: "1",
		Stacktrace: &sentry.Stacktrace{Frames: []sentry.Frame{
			{Vars: map[string]interface{}{"card": "4242 4242 4242 4242"}},
		}},
	}}

	require.NotNil(t, r.BeforeSend(event, nil))

	vars := event.Exception[0].Stacktrace.Frames[0].Vars
	assert.Equal(t, sanitizex.Mask, vars["password"])
	assert.Equal(t, "bob", vars["user"])
	assert.Equal(t, sanitizex.Mask, event.Threads[0].Stacktrace.Frames[0].Vars["card"])
}

func TestBeforeSend_DropsVarsOfTruncatedFrames(t *testing.T) {
	r := newRedactor(t)
	event := sentry.NewEvent()
	frames := make([]sentry.Frame, 120)
	for i := range frames {
		frames[i].Vars = map[string]interface{}{"secret": "s"}
	}
	event.Exception = []sentry.Exception{{Stacktrace: &sentry.Stacktrace{Frames: frames}}}

	require.NotNil(t, r.BeforeSend(event, nil))

	got := event.Exception[0].Stacktrace.Frames
	require.Len(t, got, 120)
	assert.Equal(t, sanitizex.Mask, got[99].Vars["secret"])
	assert.Nil(t, got[100].Vars, "variables that were not redacted are not sent")
	assert.Nil(t, got[119].Vars)
}

func TestBeforeSend_FormBody(t *testing.T) {
	r := newRedactor(t)

	tests := []struct {
		name     string
		data     string
		headers  map[string]string
		expected string
	}{
		{
			name:     "ContentType",
			data:     "user=a&password=hunter2",
			headers:  map[string]string{"content-type": "application/x-www-form-urlencoded; charset=UTF-8"},
			expected: "user=a&password=********",
		},
		{
			name:     "NoContentType",
			data:     "user=a+b&password=hunter2&password=again&remember",
			expected: "user=a+b&password=********&password=********&remember",
		},
		{
			name:     "CardValue",
			data:     "note=4242-4242-4242-4242",
			expected: "note=********",
		},
		{
			name:     "PlainText",
			data:     "user=a&password=hunter2",
			headers:  map[string]string{"Content-Type": "text/plain"},
			expected: "user=a&password=hunter2",
		},
		{
			name:     "MalformedEscape",
			data:     "password=%zz",
			expected: "password=%zz",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event := sentry.NewEvent()
			event.Request = &sentry.Request{Data: tt.data, Headers: tt.headers}

			require.NotNil(t, r.BeforeSend(event, nil))
			assert.Equal(t, tt.expected, event.Request.Data)
		})
	}
}

func TestBeforeSend_QueryString(t *testing.T) {
	r := newRedactor(t)
	event := sentry.NewEvent()
	event.Request = &sentry.Request{QueryString: "token=abc&auth_pw=x&auth_pw=y"}

	r.BeforeSend(event, nil)
	assert.Equal(t, "token=abc&auth_pw=********&auth_pw=********", event.Request.QueryString)

	event.Request = &sentry.Request{QueryString: "bad=%zz&password=x"}
	r.BeforeSend(event, nil)
	assert.Equal(t, "bad=%zz&password=x", event.Request.QueryString, "unparsable query strings are kept as a single value")
}

func TestBeforeSend_DropsUnredactableEvent(t *testing.T) {
	buf := &bytes.Buffer{}
	r := newRedactor(t, sanitizex.WithOutput(buf))
	event := sentry.NewEvent()
	event.Extra["bad"] = map[any]any{struct{}{}: "x"}

	assert.Nil(t, r.BeforeSend(event, nil))
	assert.Contains(t, buf.String(), "dropping sentry event")
	assert.Nil(t, r.BeforeSend(nil, nil))
}

// captureTransport records events instead of sending them.
type captureTransport struct {
	events []*sentry.Event
}

func (t *captureTransport) Flush(time.Duration) bool       { return true }
func (t *captureTransport) Configure(sentry.ClientOptions) {}
func (t *captureTransport) SendEvent(event *sentry.Event)  { t.events = append(t.events, event) }

func TestIntegration(t *testing.T) {
	r := newRedactor(t, sanitizex.WithSessionCookieName("PHPSESSID"))
	transport := &captureTransport{}
	integration := &sanitizex.Integration{Redactor: r}
	assert.Equal(t, "Sanitizex", integration.Name())

	client, err := sentry.NewClient(sentry.ClientOptions{
		Transport: transport,
		Integrations: func(i []sentry.Integration) []sentry.Integration {
			return append(i, integration)
		},
	})
	require.NoError(t, err)

	client.CaptureEvent(newSentryEvent(), nil, nil)

	require.Len(t, transport.events, 1)
	sent := transport.events[0]
	assert.Equal(t, sanitizex.Mask, sent.Extra["password"])
	assert.Equal(t, "PHPSESSID=********; theme=dark; flag", sent.Request.Cookies)
}

func TestEventProcessorWithBeforeSendOption(t *testing.T) {
	r := newRedactor(t)
	transport := &captureTransport{}

	client, err := sentry.NewClient(sentry.ClientOptions{
		Transport:  transport,
		BeforeSend: r.BeforeSend,
	})
	require.NoError(t, err)
	client.AddEventProcessor(r.EventProcessor())

	client.CaptureEvent(newSentryEvent(), nil, nil)

	require.Len(t, transport.events, 1)
	assert.Equal(t, sanitizex.Mask, transport.events[0].Tags["client_secret"])
}
