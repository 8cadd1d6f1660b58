package render

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caffeineduck/wikilua/content"
	"github.com/caffeineduck/wikilua/executor"
	"github.com/caffeineduck/wikilua/hostfunc"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

const greetModule = `
local p = {}

function p.hello(frame)
	local name = frame.args[1] or "world"
	return "Hello, " .. name .. "!"
end

function p.shout(frame)
	return mw.ustring.upper(frame.args.text or "")
end

function p.box(frame)
	return frame:expandTemplate{ title = "Box", args = { frame.args[1] } }
end

function p.count(frame)
	local s, n = string.gsub(frame.args[1], "%a+", "<%0>")
	return s .. " (" .. n .. ")"
end

function p.wrap(frame)
	return frame:expandTemplate{ title = "Wrap", args = { who = "Ann" } }
end

function p.nowiki(frame)
	return frame:callParserFunction("#tag:nowiki", "[[not a link]]")
end

function p.markers(frame)
	local s = frame:preprocess("a<nowiki>''b''</nowiki>c")
	return mw.text.unstripNoWiki(s) .. "|" .. mw.text.unstrip(s) .. "|" ..
		mw.text.unstripOrig(s) .. "|" .. mw.text.killMarkers(s)
end

function p.refs(frame)
	local s = frame:preprocess("x<ref>note</ref>y")
	return mw.text.unstrip(s) .. "|" .. mw.text.unstripNoWiki(s)
end

function p.params(frame)
	return frame:preprocess("{{{1}}}-{{{x|dflt}}}-{{#if:{{{1}}}|yes|no}}")
end

function p.missing(frame)
	local ok, err = pcall(frame.expandTemplate, frame, { title = "Nope" })
	return tostring(ok) .. ":" .. tostring(string.find(err, "page not found", 1, true) ~= nil)
end

function p.broken(frame)
	local ok = pcall(frame.expandTemplate, frame, { title = "Broken" })
	return "survived"
end

function p.spin()
	while true do end
end

return p
`

var pages = map[string]string{
	"Module:Greet":  greetModule,
	"Template:Box":  "[{{{1|empty}}}]",
	"Template:Wrap": "{{#invoke:Greet|hello|{{{who}}}}}",
	"Main Page": `== Demo ==
{{#invoke:Greet|hello}}
{{#invoke:Greet|hello|Bob}}
{{#invoke:Greet|shout|text=grün}}
{{#invoke:Greet|box|inside}}
{{#invoke:Greet|count|one two three}}
{{#invoke:Greet|wrap}}
{{#invoke:Greet|nowiki}}
{{uc:done}}
<nowiki>{{#invoke:Greet|hello}}</nowiki>
`,
}

// brokenStore fails hard for one title.
type brokenStore struct {
	content.Store
}

func (b brokenStore) Page(ctx context.Context, title string) (content.Page, error) {
	if content.NormalizeTitle(title) == "Template:Broken" {
		return content.Page{}, errors.New("disk on fire")
	}
	return b.Store.Page(ctx, title)
}

// countingRunner counts the executions that reach the executor.
type countingRunner struct {
	*executor.Executor
	runs atomic.Int32
}

func (c *countingRunner) Run(ctx context.Context, req executor.Request, opts ...executor.Option) executor.Result {
	c.runs.Add(1)
	return c.Executor.Run(ctx, req, opts...)
}

func setup(t *testing.T, opts ...Option) (*Renderer, *countingRunner) {
	t.Helper()
	ctx := context.Background()
	mem := content.NewMemoryStore()
	for title, text := range pages {
		_, err := mem.Put(ctx, title, text)
		require.NoError(t, err)
	}

	r := New(brokenStore{mem}, nil, append([]Option{WithLogger(discard)}, opts...)...)
	e, err := executor.New(r, mem,
		executor.WithGCMeasurement(false),
		executor.WithLogger(discard),
		executor.WithDefaults(executor.WithTimeout(300*time.Millisecond)))
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return r, &countingRunner{Executor: e}
}

func TestRenderPageGolden(t *testing.T) {
	r, runner := setup(t)

	out, err := r.RenderPage(context.Background(), runner, "Main Page")
	require.NoError(t, err)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"))
	g.Assert(t, "main_page", []byte(out))
}

func TestRender(t *testing.T) {
	tests := []struct {
		name     string
		function string
		args     map[string]string
		want     string
	}{
		{name: "default argument", function: "hello", want: "Hello, world!"},
		{name: "positional argument", function: "hello", args: map[string]string{"1": "Eve"}, want: "Hello, Eve!"},
		{name: "template", function: "box", want: "[empty]"},
		{name: "nested invoke", function: "wrap", want: "Hello, Ann!"},
		{name: "unstrip modes", function: "markers", want: "a''b''c|a''b''c|a<nowiki>''b''</nowiki>c|ac"},
		{name: "general markers", function: "refs", want: "xy|x<ref>note</ref>y"},
		{name: "preprocess", function: "params", args: map[string]string{"1": "v"}, want: "v-dflt-yes"},
		{name: "missing template", function: "missing", want: "false:true"},
	}

	r, runner := setup(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := r.Render(context.Background(), runner, "Module:Greet", tt.function, tt.args)
			require.NoError(t, err)
			assert.Equal(t, tt.want, out)
		})
	}
}

func TestRenderCachesOutput(t *testing.T) {
	r, runner := setup(t)
	ctx := context.Background()
	args := map[string]string{"1": "Cache"}

	for i := 0; i < 3; i++ {
		out, err := r.Render(ctx, runner, "Module:Greet", "hello", args)
		require.NoError(t, err)
		assert.Equal(t, "Hello, Cache!", out)
	}
	assert.Equal(t, int32(1), runner.runs.Load())

	r.Invalidate()
	_, err := r.Render(ctx, runner, "Module:Greet", "hello", args)
	require.NoError(t, err)
	assert.Equal(t, int32(2), runner.runs.Load())
	assert.Equal(t, 1, runner.Stats().Compiles)
}

func TestCachedOutputOutlivesMarkers(t *testing.T) {
	r, runner := setup(t, WithStripCacheSize(4096))
	ctx := context.Background()

	out, err := r.Render(ctx, runner, "Module:Greet", "nowiki", nil)
	require.NoError(t, err)
	assert.Equal(t, "[[not a link]]", out)

	// Evict the marker the cached output refers to.
	_, err = r.Strip(strings.Repeat("<nowiki>"+strings.Repeat("z", 200)+"</nowiki>", 64))
	require.NoError(t, err)

	out, err = r.Render(ctx, runner, "Module:Greet", "nowiki", nil)
	require.NoError(t, err)
	assert.Equal(t, "[[not a link]]", out)
	assert.EqualValues(t, 1, runner.runs.Load())
}

func TestRenderFailures(t *testing.T) {
	tests := []struct {
		name     string
		function string
		check    func(t *testing.T, err error)
	}{
		{
			name:     "budget exceeded",
			function: "spin",
			check: func(t *testing.T, err error) {
				assert.True(t, executor.IsResourceExceeded(err))
			},
		},
		{
			name:     "fatal store failure",
			function: "broken",
			check: func(t *testing.T, err error) {
				assert.True(t, hostfunc.IsFatal(err))
			},
		},
		{
			name:     "unknown function",
			function: "nope",
			check: func(t *testing.T, err error) {
				var se *executor.ScriptError
				assert.ErrorAs(t, err, &se)
			},
		},
	}

	r, runner := setup(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := r.Render(context.Background(), runner, "Module:Greet", tt.function, nil)
			require.Error(t, err)
			assert.Equal(t, ErrorPlaceholder, out)
			tt.check(t, err)
		})
	}
}

func TestSubstituteParams(t *testing.T) {
	args := map[string]string{"1": "one", "name": "N"}
	tests := []struct {
		in, want string
	}{
		{"{{{1}}}", "one"},
		{"{{{ name }}}!", "N!"},
		{"{{{2|two}}}", "two"},
		{"{{{2|}}}", ""},
		{"{{{2}}}", "{{{2}}}"},
		{"a {{{1}}} b {{{3|c|d}}}", "a one b c|d"},
	}
	for _, tt := range tests {
		got, err := substituteParams(tt.in, args)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestParseInvokeBody(t *testing.T) {
	inv, ok, err := parseInvokeBody("  {{#invoke: Greet | hello | a |k = v}}\n")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Module:Greet", inv.module)
	assert.Equal(t, "hello", inv.function)
	assert.Equal(t, map[string]string{"1": " a ", "k": "v"}, inv.args)

	_, ok, err = parseInvokeBody("x {{#invoke:Greet|hello}}")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStripRoundTrip(t *testing.T) {
	r := New(content.NewMemoryStore(), nil, WithLogger(discard))
	s, err := r.Strip("a<nowiki>[[b]]</nowiki>c<NOWIKI>d</NOWIKI>")
	require.NoError(t, err)
	assert.NotContains(t, s, "[[b]]")
	assert.Contains(t, s, "UNIQ--nowiki-")

	out, err := r.strips.unstrip(s, hostfunc.ModeUnstripNoWiki)
	require.NoError(t, err)
	assert.Equal(t, "a[[b]]cd", out)

	out, err = r.strips.unstrip("x"+Marker(kindNoWiki, 0xffffffff)+"y", hostfunc.ModeUnstrip)
	require.NoError(t, err)
	assert.Equal(t, "xy", out)
}
