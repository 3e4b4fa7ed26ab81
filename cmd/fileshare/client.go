package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/exec"
	"time"

	"github.com/avast/retry-go/v4"

	"fileshare/internal/api"
	"fileshare/internal/config"
)

const (
	serverStartTimeout = 3 * time.Second
	serverStopTimeout  = 5 * time.Second
	serverPollInterval = 100 * time.Millisecond
	serverProbeTimeout = 500 * time.Millisecond
)

var errServerNotReady = errors.New("server did not start in time")

// withClient runs fn against the configured API, starting a local
// `fileshare srv` for the duration of fn when nothing answers.
func withClient(cfg *config.Config, fn func(*api.Client) error) error {
	child, err := ensureServer(cfg)
	if err != nil {
		return err
	}
	defer child.stop()
	return fn(api.NewClient(cfg.APIURL))
}

// localServer is a server process started on behalf of one command.
// A nil *localServer means an existing server was reused.
type localServer struct {
	cmd  *exec.Cmd
	done chan struct{}
}

func ensureServer(cfg *config.Config) (*localServer, error) {
	client := api.NewClient(cfg.APIURL)
	ctx, cancel := context.WithTimeout(context.Background(), serverProbeTimeout)
	defer cancel()
	if err := client.Ping(ctx); err == nil {
		return nil, nil
	}

	child, err := startServerProcess(cfg)
	if err != nil {
		return nil, fmt.Errorf("start local server: %w", err)
	}
	if err := waitForServer(client, serverStartTimeout); err != nil {
		child.stop()
		return nil, err
	}
	return child, nil
}

func startServerProcess(cfg *config.Config) (*localServer, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, err
	}

	cmd := exec.Command(exe, "srv")
	cmd.Env = append(os.Environ(),
		"FILESHARE_DATA_DIR="+cfg.DataDir,
		"FILESHARE_API_URL="+cfg.APIURL,
	)
	cmd.Stdout = io.Discard
	cmd.Stderr = io.Discard
	if err := cmd.Start(); err != nil {
		return nil, err
	}

	child := &localServer{cmd: cmd, done: make(chan struct{})}
	go func() {
		_ = cmd.Wait()
		close(child.done)
	}()
	return child, nil
}

// stop interrupts the child so it closes the registry, and kills it if it
// has not exited within serverStopTimeout.
func (s *localServer) stop() {
	if s == nil {
		return
	}
	if err := s.cmd.Process.Signal(os.Interrupt); err != nil {
		_ = s.cmd.Process.Kill()
	}
	select {
	case <-s.done:
	case <-time.After(serverStopTimeout):
		_ = s.cmd.Process.Kill()
		<-s.done
	}
}

type pinger interface {
	Ping(ctx context.Context) error
}

// waitForServer polls until the API answers. Connection errors are retried;
// anything else means the port belongs to something that is not fileshare.
func waitForServer(client pinger, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	err := retry.Do(
		func() error {
			pingCtx, pingCancel := context.WithTimeout(ctx, 200*time.Millisecond)
			defer pingCancel()
			return client.Ping(pingCtx)
		},
		retry.Context(ctx),
		retry.Attempts(0),
		retry.Delay(serverPollInterval),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(isConnRefused),
	)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return errServerNotReady
	}
	return err
}

func isConnRefused(err error) bool {
	var netErr *net.OpError
	return errors.As(err, &netErr)
}
