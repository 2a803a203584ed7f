// parlor-probe watches a parlor server's readiness endpoint and
// re-serves the last verdict on its own port, so aggressive load
// balancer probes never touch the main mux. With -once it performs a
// single check and exits 0 or 1, which suits container healthchecks.
package main

import (
	"flag"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/valyala/fasthttp"
)

func main() {
	addr := flag.String("addr", ":8081", "listen address for the probe")
	target := flag.String("target", "http://127.0.0.1:8080/readyz", "parlor readiness URL to watch")
	interval := flag.Duration("interval", 5*time.Second, "poll interval")
	timeout := flag.Duration("timeout", 3*time.Second, "per-check timeout")
	once := flag.Bool("once", false, "check once, print the verdict and exit")
	flag.Parse()

	if v := os.Getenv("PARLOR_PROBE_TARGET"); v != "" {
		*target = v
	}

	if *once {
		ok, body := check(*target, *timeout)
		fmt.Printf("%s\n", verdict(ok, body))
		if !ok {
			os.Exit(1)
		}
		return
	}

	var ready atomic.Bool
	var last atomic.Value
	last.Store([]byte(`{"status":"unknown"}`))

	go func() {
		for {
			ok, body := check(*target, *timeout)
			ready.Store(ok)
			if len(body) > 0 {
				last.Store(body)
			}
			time.Sleep(*interval)
		}
	}()

	h := func(ctx *fasthttp.RequestCtx) {
		ctx.Response.Header.Set("Content-Type", "application/json")
		switch string(ctx.Path()) {
		case "/healthz":
			// the probe process itself is alive
			ctx.SetStatusCode(fasthttp.StatusOK)
			_, _ = ctx.WriteString(`{"status":"ok"}`)
		case "/readyz":
			if !ready.Load() {
				ctx.SetStatusCode(fasthttp.StatusServiceUnavailable)
			} else {
				ctx.SetStatusCode(fasthttp.StatusOK)
			}
			_, _ = ctx.Write(last.Load().([]byte))
		default:
			ctx.SetStatusCode(fasthttp.StatusNotFound)
		}
	}

	fmt.Printf("parlor-probe watching %s, serving on %s\n", *target, *addr)
	srv := &fasthttp.Server{
		Handler:            h,
		Name:               "parlor-probe",
		ReadTimeout:        5 * time.Second,
		WriteTimeout:       5 * time.Second,
		MaxRequestBodySize: 1 << 20,
	}
	if err := srv.ListenAndServe(*addr); err != nil {
		fmt.Printf("probe server exit: %v\n", err)
		os.Exit(1)
	}
}

// check fetches the readiness endpoint once. Any transport error or
// non-200 status counts as not ready.
func check(target string, timeout time.Duration) (bool, []byte) {
	status, body, err := fasthttp.GetTimeout(nil, target, timeout)
	if err != nil {
		return false, []byte(fmt.Sprintf(`{"status":"unreachable","error":%q}`, err.Error()))
	}
	return status == fasthttp.StatusOK, body
}

func verdict(ok bool, body []byte) string {
	if ok {
		return "ready: " + string(body)
	}
	return "not ready: " + string(body)
}
