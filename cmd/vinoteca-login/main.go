// Command vinoteca-login drives the manual authorization-code flow from a
// terminal, standing in for the native shell: it opens the system browser on
// the hosted login page, catches the redirect on a loopback listener, and
// hands the callback URL to the flow the same way the app-link listener
// does on device.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/pkg/browser"

	"github.com/franduoc2023/vinoteca/appauth"
	"github.com/franduoc2023/vinoteca/internal/config"
	"github.com/franduoc2023/vinoteca/nativeauth"
	"github.com/franduoc2023/vinoteca/platform"
	"github.com/franduoc2023/vinoteca/tokenstore"
)

type systemBrowser struct{}

func (systemBrowser) Open(_ context.Context, url string) error { return browser.OpenURL(url) }

// Close is a no-op: there is no in-app browser to dismiss on desktop.
func (systemBrowser) Close(context.Context) error { return nil }

func main() {
	if err := run(context.Background()); err != nil {
		slog.Error("vinoteca-login failed", slog.String("err", err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	var (
		listenAddr = flag.String("listen", "localhost:8533", "loopback address for the redirect listener")
		timeout    = flag.Duration("timeout", 5*time.Minute, "how long to wait for the login to finish")
	)
	flag.Parse()

	config.LoadEnv("")
	env, err := config.FromEnv()
	if err != nil {
		return err
	}

	lis, err := net.Listen("tcp", *listenAddr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", *listenAddr, err)
	}

	authority := env.Authority()
	authority.RedirectURI = fmt.Sprintf("http://%s/callback", lis.Addr().String())

	store := tokenstore.New()
	flow, err := nativeauth.New(nativeauth.Config{
		Authority:    authority,
		Store:        store,
		Browser:      systemBrowser{},
		LoginTimeout: *timeout,
	})
	if err != nil {
		return err
	}

	manager, err := appauth.New(appauth.Config{
		Platform: platform.Native,
		Native:   flow,
		Store:    store,
	})
	if err != nil {
		return err
	}

	// The loopback listener forwards each redirect into the same app-URL
	// stream a device deep link would arrive on.
	urls := make(chan string, 1)
	srv := &http.Server{Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		urls <- "http://" + r.Host + r.URL.String()
		fmt.Fprintln(w, "Login received, you can close this tab.")
	})}
	go func() { _ = srv.Serve(lis) }()
	defer func() { _ = srv.Shutdown(context.Background()) }()

	runCtx, cancel := context.WithTimeout(ctx, *timeout+time.Minute)
	defer cancel()
	go flow.Run(runCtx, urls)

	updates := manager.Subscribe()
	defer manager.Unsubscribe(updates)

	if err := manager.Login(runCtx, nil); err != nil {
		return fmt.Errorf("starting login: %w", err)
	}
	fmt.Println("Waiting for the browser login to finish...")

	for {
		select {
		case <-runCtx.Done():
			if err := flow.LastError(); err != nil {
				return fmt.Errorf("login did not complete: %w", err)
			}
			return fmt.Errorf("login did not complete: %w", runCtx.Err())
		case p := <-updates:
			if p == nil {
				continue
			}
			fmt.Printf("Logged in as %s <%s> (id %s)\n", p.Name, p.Email, p.OID)
			tok, err := manager.BearerToken(runCtx)
			if err != nil {
				return err
			}
			fmt.Printf("Bearer token: %s\n", tok)
			return nil
		}
	}
}
