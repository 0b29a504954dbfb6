package authstore

import (
	"context"
	"fmt"
	"net"
	"net/http"
)

// callbackResult carries the authorization code (or error) the
// loopback listener received on its one-shot /oauth/callback request.
type callbackResult struct {
	code  string
	state string
	err   error
}

// loopbackCallback binds an ephemeral loopback port, serves exactly
// one /oauth/callback request, and reports the result on the returned
// channel. The caller must call the returned stop func once done
// (either after the channel fires or on timeout) to release the
// listener.
func loopbackCallback() (redirectURI string, results <-chan callbackResult, stop func(), err error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", nil, nil, fmt.Errorf("binding loopback callback listener: %w", err)
	}

	port := listener.Addr().(*net.TCPAddr).Port
	redirectURI = fmt.Sprintf("http://127.0.0.1:%d/oauth/callback", port)

	ch := make(chan callbackResult, 1)
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/callback", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if errParam := q.Get("error"); errParam != "" {
			ch <- callbackResult{err: fmt.Errorf("authorization server returned error: %s", errParam)}
		} else {
			ch <- callbackResult{code: q.Get("code"), state: q.Get("state")}
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte("<html><body>Authorization complete. You may close this window.</body></html>"))
	})

	server := &http.Server{Handler: mux}
	go func() { _ = server.Serve(listener) }()

	return redirectURI, ch, func() { _ = server.Close() }, nil
}

// waitForCallback blocks until either a result arrives on results or
// ctx is done.
func waitForCallback(ctx context.Context, results <-chan callbackResult) (callbackResult, error) {
	select {
	case r := <-results:
		return r, nil
	case <-ctx.Done():
		return callbackResult{}, ctx.Err()
	}
}
