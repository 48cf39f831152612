package filter

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/edgegw/internal/auth/jwt"
	"github.com/vyrodovalexey/edgegw/internal/router"
)

type recordingFilter struct {
	name       string
	precedence int
	log        *[]string
	stop       error
}

func (f *recordingFilter) Name() string    { return f.name }
func (f *recordingFilter) Precedence() int { return f.precedence }

func (f *recordingFilter) Handle(c *Context, next Next) error {
	*f.log = append(*f.log, "before:"+f.name)
	if f.stop != nil {
		return f.stop
	}
	err := next(c)
	*f.log = append(*f.log, "after:"+f.name)
	return err
}

func newTestContext() *Context {
	r := httptest.NewRequest(http.MethodGet, "/user-service/users", nil)
	return NewContext(httptest.NewRecorder(), r, time.Now())
}

func TestChain_OrdersByPrecedence(t *testing.T) {
	t.Parallel()

	var log []string
	chain, err := NewChain(
		&recordingFilter{name: "ratelimit", precedence: 300, log: &log},
		&recordingFilter{name: "access", precedence: 0, log: &log},
		nil,
		&recordingFilter{name: "auth", precedence: 200, log: &log},
	)
	require.NoError(t, err)
	assert.Equal(t, []string{"access", "auth", "ratelimit"}, chain.Names())

	err = chain.Execute(newTestContext(), func(*Context) error {
		log = append(log, "terminal")
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"before:access", "before:auth", "before:ratelimit",
		"terminal",
		"after:ratelimit", "after:auth", "after:access",
	}, log)
}

func TestChain_ShortCircuit(t *testing.T) {
	t.Parallel()

	var log []string
	stop := errors.New("denied")
	chain, err := NewChain(
		&recordingFilter{name: "access", precedence: 0, log: &log},
		&recordingFilter{name: "auth", precedence: 200, log: &log, stop: stop},
		&recordingFilter{name: "ratelimit", precedence: 300, log: &log},
	)
	require.NoError(t, err)

	terminalCalled := false
	err = chain.Execute(newTestContext(), func(*Context) error {
		terminalCalled = true
		return nil
	})

	assert.ErrorIs(t, err, stop)
	assert.False(t, terminalCalled)
	assert.Equal(t, []string{"before:access", "before:auth", "after:access"}, log)
}

func TestChain_DuplicatePrecedence(t *testing.T) {
	t.Parallel()

	var log []string
	_, err := NewChain(
		&recordingFilter{name: "a", precedence: 1, log: &log},
		&recordingFilter{name: "b", precedence: 1, log: &log},
	)
	assert.Error(t, err)
}

func TestChain_NilTerminal(t *testing.T) {
	t.Parallel()

	chain, err := NewChain()
	require.NoError(t, err)
	assert.NoError(t, chain.Execute(newTestContext(), nil))
	assert.Empty(t, chain.Names())
}

func TestContext_Accessors(t *testing.T) {
	t.Parallel()

	c := newTestContext()
	c.ClientIP = "192.0.2.1"
	assert.Equal(t, "/user-service/users", c.Path)
	assert.Empty(t, c.Subject())
	assert.Empty(t, c.Route())
	assert.Empty(t, c.Service())
	assert.Equal(t, "192.0.2.1", c.Caller().ClientIP)

	c.Claims = &jwt.Claims{Subject: "alice"}
	c.Rule = &router.Rule{PathPrefix: "/user-service", ServiceName: "user-service"}
	assert.Equal(t, "alice", c.Caller().Subject)
	assert.Equal(t, "/user-service", c.Route())
	assert.Equal(t, "user-service", c.Service())
}

func TestResponseWriter(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	rw := NewResponseWriter(rec)
	assert.False(t, rw.Written())
	assert.Zero(t, rw.Status())

	_, err := rw.Write([]byte("hello"))
	require.NoError(t, err)
	rw.WriteHeader(http.StatusTeapot)

	assert.True(t, rw.Written())
	assert.Equal(t, http.StatusOK, rw.Status())
	assert.Equal(t, int64(5), rw.Size())
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Same(t, rec, rw.Unwrap())
}

type headerLog struct {
	http.ResponseWriter
	codes []int
}

func (h *headerLog) WriteHeader(code int) {
	h.codes = append(h.codes, code)
	h.ResponseWriter.WriteHeader(code)
}

func TestResponseWriter_InformationalNotRecorded(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		codes     []int
		want      int
		forwarded []int
	}{
		{name: "early hints then not found", codes: []int{http.StatusEarlyHints, http.StatusNotFound}, want: http.StatusNotFound, forwarded: []int{http.StatusEarlyHints, http.StatusNotFound}},
		{name: "continue then error", codes: []int{http.StatusContinue, http.StatusBadGateway}, want: http.StatusBadGateway, forwarded: []int{http.StatusContinue, http.StatusBadGateway}},
		{name: "switching protocols is final", codes: []int{http.StatusSwitchingProtocols, http.StatusOK}, want: http.StatusSwitchingProtocols, forwarded: []int{http.StatusSwitchingProtocols}},
		{name: "informational after final dropped", codes: []int{http.StatusInternalServerError, http.StatusEarlyHints}, want: http.StatusInternalServerError, forwarded: []int{http.StatusInternalServerError}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			log := &headerLog{ResponseWriter: httptest.NewRecorder()}
			rw := NewResponseWriter(log)
			for i, code := range tt.codes {
				rw.WriteHeader(code)
				if i == 0 && code < 200 && code != http.StatusSwitchingProtocols {
					assert.False(t, rw.Written())
				}
			}

			assert.Equal(t, tt.want, rw.Status())
			assert.Equal(t, tt.forwarded, log.codes)
		})
	}
}
