package handler

import (
	"testing"

	rhttp "github.com/AlexaFrom/routine-http"
	"github.com/AlexaFrom/routine-http/body"
)

func TestBasePrepareInstallsMemorySinkExceptHead(t *testing.T) {
	req := &rhttp.Request{Method: rhttp.MethodPost}
	if resp := (Base{}).Prepare(req); resp != nil {
		t.Fatalf("Base.Prepare short-circuited with %v, want nil", resp)
	}
	if _, ok := req.Body.(*body.MemoryBody); !ok {
		t.Fatalf("Body = %T, want *body.MemoryBody", req.Body)
	}

	head := &rhttp.Request{Method: rhttp.MethodHead}
	if resp := (Base{}).Prepare(head); resp != nil {
		t.Fatalf("Base.Prepare(HEAD) short-circuited with %v, want nil", resp)
	}
	if head.Body != nil {
		t.Fatalf("Body = %v for HEAD request, want nil", head.Body)
	}
}

func TestFactoryFuncProducesFreshHandlerPerCall(t *testing.T) {
	calls := 0
	factory := FactoryFunc(func(req *rhttp.Request) *rhttp.Response {
		calls++
		return rhttp.NewTextResponse(rhttp.StatusOK, "ok")
	})

	h1 := factory()
	h2 := factory()
	if h1 == h2 {
		t.Fatal("expected distinct Handler values from repeated Factory calls")
	}

	req := &rhttp.Request{}
	resp := h1.Process(req)
	if resp == nil || resp.Status != rhttp.StatusOK {
		t.Fatalf("Process() = %v, want 200", resp)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}
