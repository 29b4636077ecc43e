// roclient logs into a login server and prints the character servers it
// offers.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"

	"badc0de.net/pkg/flagutil/v1"
	"github.com/golang/glog"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"badc0de.net/pkg/go-ragnarok/config"
	"badc0de.net/pkg/go-ragnarok/login"
	"badc0de.net/pkg/go-ragnarok/loop"
	"badc0de.net/pkg/go-ragnarok/network"
	"badc0de.net/pkg/go-ragnarok/paths"
	"badc0de.net/pkg/go-ragnarok/web"
)

var (
	configPath string

	username      = flag.String("username", "", "account to log in with")
	password      = flag.String("password", "", "password of the account; defaults to $ROCLIENT_PASSWORD")
	clientVersion = flag.Uint("client_version", 55, "client version sent with the credentials")
	packetDump    = flag.Bool("packet_dump", false, "log every frame sent and received, overriding the config file")
	stay          = flag.Bool("stay", false, "keep the login session alive until interrupted")
	debugWeb      = flag.String("debug_web_server_listen_address", "", "where the debug server will listen, overriding the config file")
)

func main() {
	paths.SetupFilePathFlag(flag.CommandLine, config.FileName, "config", &configPath)
	flagutil.Parse()

	cfg := config.Default()
	if configPath != "" {
		var err error
		if cfg, err = config.Load(configPath); err != nil {
			glog.Exitf("%s", err)
		}
	}
	if *packetDump {
		cfg.PacketDump = true
	}
	if *debugWeb != "" {
		cfg.DebugListenAddress = *debugWeb
	}
	if *password == "" {
		*password = os.Getenv("ROCLIENT_PASSWORD")
	}
	if *username == "" {
		glog.Exitf("-username is required")
	}

	if err := run(cfg); err != nil {
		glog.Exitf("%s", err)
	}
}

func run(cfg config.Config) error {
	out := newStatus(os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	l := loop.New()
	loopCtx, stopLoop := context.WithCancel(context.Background())
	defer stopLoop()
	go l.Run(loopCtx)

	m, err := network.New(network.Options{
		Loop:              l,
		Transport:         cfg.TransportOptions(),
		NewCipher:         cfg.NewCipher(),
		PacketDump:        cfg.PacketDump,
		KeepaliveInterval: cfg.KeepaliveInterval,
		ConnectTimeout:    cfg.ConnectTimeout,
		OnDisconnect: func() {
			out.failure("disconnected from server")
			stop()
		},
	})
	if err != nil {
		return err
	}
	if err := m.Init(ctx, cfg.PacketVersion); err != nil {
		return err
	}
	glog.Infof("using packet version %d (table %d)", cfg.PacketVersion, m.Table().Threshold)

	g, ctx := errgroup.WithContext(ctx)

	if cfg.DebugListenAddress != "" {
		srv := &http.Server{Addr: cfg.DebugListenAddress, Handler: web.NewHandler(m, l).Router()}
		g.Go(func() error {
			glog.Infof("debug server listening on %s", cfg.DebugListenAddress)
			if err := srv.ListenAndServe(); err != http.ErrServerClosed {
				return errors.Wrap(err, "debug server")
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			return srv.Close()
		})
	}

	var loginErr error
	g.Go(func() error {
		done := make(chan struct{})
		posted := l.Post(func() {
			c, err := login.NewClient(m, uint32(*clientVersion), *username, *password)
			if err != nil {
				loginErr = err
				close(done)
				return
			}
			err = c.Login(cfg.LoginHost, cfg.LoginPort, func(r login.Result) {
				loginErr = report(out, r)
				close(done)
			})
			if err != nil {
				loginErr = err
				close(done)
			}
		})
		if !posted {
			return errors.New("event loop stopped")
		}

		select {
		case <-done:
		case <-ctx.Done():
			return nil
		}
		if loginErr != nil || !*stay {
			stop()
			return loginErr
		}
		<-ctx.Done()
		return nil
	})

	err = g.Wait()
	l.Call(m.Teardown)
	return err
}

func report(out *status, r login.Result) error {
	switch {
	case r.Err != nil:
		out.failure("%s", r.Err)
		return r.Err
	case r.Refused != nil:
		out.failure("login refused: %s", r.Refused.Reason())
		return errors.New(r.Refused.Reason())
	case r.Banned != nil:
		out.failure("banned by server (code %d)", r.Banned.Code)
		return errors.Errorf("banned with code %d", r.Banned.Code)
	}

	a := r.Accepted
	out.success("logged in as account %d", a.AccountID)
	for _, s := range a.Servers {
		out.line("  %-20s %-21s %5d users", s.Name, s.Addr(), s.Users)
	}
	return nil
}
