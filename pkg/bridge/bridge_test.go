package bridge

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mgiordano/wabridge/pkg/page"
	"github.com/mgiordano/wabridge/pkg/page/pagetest"
)

func TestSerialize(t *testing.T) {
	src, err := Serialize("(a, b) => a + b", 1, "two")
	require.NoError(t, err)
	require.Equal(t, `((a, b) => a + b)(1, "two")`, src)
}

func TestSerializeNoArgs(t *testing.T) {
	src, err := Serialize("() => 42")
	require.NoError(t, err)
	require.Equal(t, "(() => 42)()", src)
}

func TestSerializeStructuredArg(t *testing.T) {
	src, err := Serialize("(o) => o.x", map[string]any{"x": true})
	require.NoError(t, err)
	require.Equal(t, `((o) => o.x)({"x":true})`, src)
}

func TestEvaluateRetriesTimeoutOnce(t *testing.T) {
	fake := pagetest.New()
	calls := 0
	fake.Stub("flaky", func(string) (any, error) {
		calls++
		if calls == 1 {
			return nil, page.ErrEvaluateTimeout
		}
		return "ok", nil
	})

	b := New(fake, nil)
	v, err := b.Evaluate(context.Background(), "() => flaky()")
	require.NoError(t, err)
	require.Equal(t, "ok", v)
	require.Equal(t, 2, calls)
}

func TestEvaluateSecondTimeoutSurfaces(t *testing.T) {
	fake := pagetest.New()
	calls := 0
	fake.Stub("flaky", func(string) (any, error) {
		calls++
		return nil, page.ErrEvaluateTimeout
	})

	b := New(fake, nil)
	_, err := b.Evaluate(context.Background(), "() => flaky()")
	require.Error(t, err)
	require.Equal(t, 2, calls, "a timeout is retried exactly once")
	require.ErrorIs(t, err, ErrTransportTimeout)

	var failure *EvalFailure
	require.ErrorAs(t, err, &failure)
}

func TestEvaluateFailureCarriesSnippet(t *testing.T) {
	fake := pagetest.New()
	fake.Stub("boom", func(string) (any, error) {
		return nil, &page.EvalError{Message: "boom"}
	})

	long := "() => boom(" + strings.Repeat("x", 2000) + ")"
	b := New(fake, nil)
	_, err := b.Evaluate(context.Background(), long)
	require.Error(t, err)

	var failure *EvalFailure
	require.ErrorAs(t, err, &failure)
	require.Len(t, failure.Snippet, 500)

	var evalErr *page.EvalError
	require.ErrorAs(t, err, &evalErr)
}

func TestEvaluateNonTimeoutNotRetried(t *testing.T) {
	fake := pagetest.New()
	calls := 0
	fake.Stub("boom", func(string) (any, error) {
		calls++
		return nil, errors.New("broken pipe")
	})

	b := New(fake, nil)
	_, err := b.Evaluate(context.Background(), "() => boom()")
	require.Error(t, err)
	require.Equal(t, 1, calls)
}

func TestEvaluateInto(t *testing.T) {
	fake := pagetest.New()
	fake.StubValue("identity", map[string]any{"pushname": "Tester", "platform": "web"})

	var out struct {
		Pushname string `json:"pushname"`
		Platform string `json:"platform"`
	}
	b := New(fake, nil)
	require.NoError(t, b.EvaluateInto(context.Background(), &out, "() => identity()"))
	require.Equal(t, "Tester", out.Pushname)
	require.Equal(t, "web", out.Platform)
}

func TestExposeIsIdempotent(t *testing.T) {
	fake := pagetest.New()
	fake.Stub("!!window[", func(string) (any, error) {
		return fake.Exposed("onThing"), nil
	})

	b := New(fake, nil)
	registrations := 0
	handler := func([]any) (any, error) {
		registrations++
		return nil, nil
	}

	require.NoError(t, b.Expose(context.Background(), "onThing", handler))
	require.NoError(t, b.Expose(context.Background(), "onThing", handler))
	require.Equal(t, 1, fake.ExposedCount())

	_, err := fake.Invoke("onThing")
	require.NoError(t, err)
	require.Equal(t, 1, registrations)
}
