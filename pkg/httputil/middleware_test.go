package httputil

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"
)

func TestRecover(t *testing.T) {
	handler := Recover(zerolog.Nop())(func(ctx *fasthttp.RequestCtx) {
		panic("boom")
	})

	ctx := &fasthttp.RequestCtx{}
	handler(ctx)

	if ctx.Response.StatusCode() != fasthttp.StatusInternalServerError {
		t.Errorf("status = %d, want 500", ctx.Response.StatusCode())
	}
}

func TestPathInt64(t *testing.T) {
	ctx := &fasthttp.RequestCtx{}

	if _, err := PathInt64(ctx, "user_id"); err == nil {
		t.Error("missing parameter should fail")
	}

	ctx.SetUserValue("user_id", "abc")
	if _, err := PathInt64(ctx, "user_id"); err == nil {
		t.Error("non-numeric parameter should fail")
	}

	ctx.SetUserValue("user_id", "42")
	got, err := PathInt64(ctx, "user_id")
	if err != nil || got != 42 {
		t.Errorf("PathInt64() = %d, %v", got, err)
	}
}
