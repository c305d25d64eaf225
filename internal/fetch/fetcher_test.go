package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"
)

func TestFetchSendsBrowserHeaders(t *testing.T) {
	var gotUA, gotEncoding, gotLang string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotEncoding = r.Header.Get("Accept-Encoding")
		gotLang = r.Header.Get("Accept-Language")
		fmt.Fprint(w, "<html>ok</html>")
	}))
	defer srv.Close()

	f := New()
	body, err := f.Fetch(context.Background(), srv.URL, 5*time.Second)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if string(body) != "<html>ok</html>" {
		t.Fatalf("unexpected body: %q", body)
	}
	if gotUA == "" || gotEncoding != "identity" || gotLang != "en-US,en;q=0.9" {
		t.Fatalf("headers ua=%q encoding=%q lang=%q", gotUA, gotEncoding, gotLang)
	}
}

// redirectChain serves length consecutive 302s before answering 200.
func redirectChain(t *testing.T, length int) *httptest.Server {
	t.Helper()
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hop, _ := strconv.Atoi(r.URL.Query().Get("hop"))
		if hop < length {
			http.Redirect(w, r, srv.URL+fmt.Sprintf("/?hop=%d", hop+1), http.StatusFound)
			return
		}
		fmt.Fprint(w, "arrived")
	}))
	return srv
}

func TestFetchFollowsFiveRedirects(t *testing.T) {
	srv := redirectChain(t, 5)
	defer srv.Close()

	f := New()
	body, err := f.Fetch(context.Background(), srv.URL+"/?hop=0", 5*time.Second)
	if err != nil {
		t.Fatalf("expected 5 redirects to succeed: %v", err)
	}
	if string(body) != "arrived" {
		t.Fatalf("unexpected body: %q", body)
	}
}

func TestFetchRejectsSixthRedirect(t *testing.T) {
	srv := redirectChain(t, 6)
	defer srv.Close()

	f := New()
	_, err := f.Fetch(context.Background(), srv.URL+"/?hop=0", 5*time.Second)
	var nerr *NetworkError
	if !errors.As(err, &nerr) || nerr.Kind != KindTooManyRedirects {
		t.Fatalf("expected tooManyRedirects, got %v", err)
	}
}

func TestFetchRejectsRedirectLoop(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, srv.URL+"/loop", http.StatusFound)
	}))
	defer srv.Close()

	f := New()
	_, err := f.Fetch(context.Background(), srv.URL, 5*time.Second)
	var nerr *NetworkError
	if !errors.As(err, &nerr) || nerr.Kind != KindTooManyRedirects {
		t.Fatalf("expected tooManyRedirects, got %v", err)
	}
}

func TestFetchStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	f := New()
	_, err := f.Fetch(context.Background(), srv.URL, 5*time.Second)
	var nerr *NetworkError
	if !errors.As(err, &nerr) {
		t.Fatalf("expected NetworkError, got %v", err)
	}
	if nerr.Kind != KindHTTPStatus || nerr.StatusCode != http.StatusForbidden {
		t.Fatalf("unexpected error: %+v", nerr)
	}
}

func TestFetchTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
	}))
	defer srv.Close()

	f := New()
	_, err := f.Fetch(context.Background(), srv.URL, 50*time.Millisecond)
	var nerr *NetworkError
	if !errors.As(err, &nerr) || nerr.Kind != KindTimeout {
		t.Fatalf("expected timeout, got %v", err)
	}
}

func TestFetchRobotsDenied(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			fmt.Fprint(w, "User-agent: *\nDisallow: /private/\n")
			return
		}
		fmt.Fprint(w, "page")
	}))
	defer srv.Close()

	f := New(WithRobots(true))

	if _, err := f.Fetch(context.Background(), srv.URL+"/open", 5*time.Second); err != nil {
		t.Fatalf("allowed path should fetch: %v", err)
	}

	_, err := f.Fetch(context.Background(), srv.URL+"/private/page", 5*time.Second)
	var nerr *NetworkError
	if !errors.As(err, &nerr) || nerr.Kind != KindRobotsDenied {
		t.Fatalf("expected robotsDenied, got %v", err)
	}
}
