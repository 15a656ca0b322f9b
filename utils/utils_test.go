package utils_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"bitbucket.org/mmdatafocus/rfid_backend/utils"
)

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{nil, http.StatusOK},
		{fmt.Errorf("epc: %w", utils.ErrBadRequest), http.StatusBadRequest},
		{fmt.Errorf("tag: %w", utils.ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("lock: %w", utils.ErrConflict), http.StatusConflict},
		{errors.New("driver: bad connection"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := utils.HTTPStatus(tc.err); got != tc.want {
			t.Fatalf("HTTPStatus(%v)=%d want %d", tc.err, got, tc.want)
		}
	}
}

func TestPublicMessageHidesInternalErrors(t *testing.T) {
	if got := utils.PublicMessage(errors.New("dial tcp 10.0.0.3:3306: refused")); got != utils.ErrInternal.Error() {
		t.Fatalf("got %q", got)
	}
	nf := fmt.Errorf("tag code %q: %w", "E1", utils.ErrNotFound)
	if got := utils.PublicMessage(nf); got != nf.Error() {
		t.Fatalf("got %q", got)
	}
}

func TestLockName(t *testing.T) {
	a := utils.LockName("receipt", "PO-1")
	b := utils.LockName("receipt", "PO-2")
	if a == b {
		t.Fatalf("distinct keys produced the same lock")
	}
	if a != utils.LockName("receipt", "PO-1") {
		t.Fatalf("lock name is not stable")
	}
	long := utils.LockName("presence", strings.Repeat("E", 500))
	if len(long) > 64 {
		t.Fatalf("lock name exceeds MySQL limit: %d", len(long))
	}
	if !strings.HasPrefix(long, "presence:") {
		t.Fatalf("scope prefix missing: %s", long)
	}
}

func TestValidateStruct(t *testing.T) {
	type input struct {
		EPC   string `validate:"required"`
		Value string `validate:"required"`
	}
	err := utils.ValidateStruct(input{})
	if !errors.Is(err, utils.ErrBadRequest) {
		t.Fatalf("err=%v", err)
	}
	if !strings.Contains(err.Error(), "EPC required") || !strings.Contains(err.Error(), "Value required") {
		t.Fatalf("message=%q", err.Error())
	}
	if err := utils.ValidateStruct(input{EPC: "E1", Value: "1"}); err != nil {
		t.Fatalf("valid input rejected: %v", err)
	}
}

func TestContextHelpers(t *testing.T) {
	ctx := utils.SetCorrelationIdInContext(context.Background(), "cid-1")
	ctx = utils.SetDeviceIdInContext(ctx, "gate-1")
	ctx = utils.SetUserIdInContext(ctx, 7)

	if v, ok := utils.GetCorrelationIdFromContext(ctx); !ok || v != "cid-1" {
		t.Fatalf("correlation id=%q ok=%v", v, ok)
	}
	if v, ok := utils.GetDeviceIdFromContext(ctx); !ok || v != "gate-1" {
		t.Fatalf("device id=%q ok=%v", v, ok)
	}
	if v, ok := utils.GetUserIdFromContext(ctx); !ok || v != 7 {
		t.Fatalf("user id=%d ok=%v", v, ok)
	}
	if _, ok := utils.GetUserIdFromContext(context.Background()); ok {
		t.Fatalf("empty context should report missing user id")
	}
}
