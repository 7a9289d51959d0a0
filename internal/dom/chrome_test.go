package dom

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os/exec"
	"testing"
	"time"
)

// chromePath finds a local browser or skips the test
func chromePath(t *testing.T) string {
	t.Helper()
	for _, name := range []string{"google-chrome", "google-chrome-stable", "chromium", "chromium-browser"} {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}
	t.Skip("no chrome or chromium binary on PATH")
	return ""
}

func TestChromeDriverSession(t *testing.T) {
	path := chromePath(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprintf(w, `<html><body><h1 id="title">sayfa %s</h1><p class="price" data-v="%s">1.250.000 TL</p></body></html>`,
			r.URL.Query().Get("page"), r.URL.Query().Get("page"))
	}))
	defer srv.Close()

	// a short startup ctx must not take the browser down with it
	startCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
	d, err := NewChromeDriver(startCtx, ChromeOptions{
		Headless:        true,
		DisableImages:   true,
		ChromePath:      path,
		PageLoadTimeout: 20 * time.Second,
	})
	cancel()
	if err != nil {
		t.Fatalf("NewChromeDriver: %v", err)
	}
	defer d.Close()

	ctx := context.Background()
	for _, n := range []string{"1", "2"} {
		if err := d.Open(ctx, srv.URL+"/?page="+n); err != nil {
			t.Fatalf("Open page %s: %v", n, err)
		}
		if err := d.WaitPresent(ctx, "#title", 5*time.Second); err != nil {
			t.Fatalf("WaitPresent page %s: %v", n, err)
		}
		p, err := d.Snapshot(ctx)
		if err != nil {
			t.Fatalf("Snapshot page %s: %v", n, err)
		}
		if got, want := p.Text("#title"), "sayfa "+n; got != want {
			t.Errorf("title = %q; want %q", got, want)
		}

		var attr string
		if err := d.ExecuteScriptOn(ctx, ".price", `function() { return this.getAttribute("data-v"); }`, &attr); err != nil {
			t.Fatalf("ExecuteScriptOn page %s: %v", n, err)
		}
		if attr != n {
			t.Errorf("data-v = %q; want %q", attr, n)
		}
	}

	if err := d.ExecuteScriptOn(ctx, ".missing", `function() { return 1; }`, nil); err == nil {
		t.Error("ExecuteScriptOn on a missing element succeeded")
	}

	d.Close()
	if err := d.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}
